// Package httpclient provides basic http functions
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// RemoteFileInfo contains caching headers reported for a remote file
type RemoteFileInfo struct {
	ETag                  string
	LastModifiedTimestamp int64
	Path                  string
}

func getRemoteFileInfo(url string, resp *http.Response) RemoteFileInfo {
	result := RemoteFileInfo{
		Path: url,
		ETag: resp.Header.Get("ETag"),
	}
	if lastModified := resp.Header.Get("Last-Modified"); len(lastModified) > 0 {
		if parsedTime, err := time.Parse(time.RFC1123, lastModified); err == nil {
			result.LastModifiedTimestamp = parsedTime.Unix()
		}
	}
	return result
}

// DownloadedFile contains information about a file that has been downloaded to the local file system
type DownloadedFile struct {
	RemoteFileInfo RemoteFileInfo
	LocalFilePath  string
	Size           int64
	DownloadedAt   time.Time
}

func (d DownloadedFile) String() string {
	return fmt.Sprintf("%s -> %s (%d bytes, etag:%q)", d.RemoteFileInfo.Path, d.LocalFilePath, d.Size,
		d.RemoteFileInfo.ETag)
}

// DownloadRemoteFile retrieves a file from url into destinationFileName.
// The file is written next to its destination and renamed once complete so a failed download never leaves
// a partial file behind. Responses other than 200 are errors.
func DownloadRemoteFile(ctx context.Context,
	client *http.Client,
	destinationFileName string,
	url string) (*DownloadedFile, error) {

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download %s: status %d", url, resp.StatusCode)
	}

	out, err := os.CreateTemp(filepath.Dir(destinationFileName), filepath.Base(destinationFileName)+".*.part")
	if err != nil {
		return nil, err
	}
	tempName := out.Name()
	bytesWritten, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tempName, destinationFileName)
	}
	if err != nil {
		_ = os.Remove(tempName)
		return nil, err
	}

	return &DownloadedFile{
		RemoteFileInfo: getRemoteFileInfo(url, resp),
		LocalFilePath:  destinationFileName,
		Size:           bytesWritten,
		DownloadedAt:   time.Now(),
	}, nil
}
