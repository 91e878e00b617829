package ztmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

const (
	positionsEndpoint = "busestrams_get"
	positionsResource = "f2e5503e-927d-4ad3-9500-4ab9e55deb59"

	dbStoreEndpoint = "dbstore_get"
	stopsResource   = "ab75c33d-3a26-4342-b36a-6e5fef0a3ac3"

	routesEndpoint = "public_transport_routes"

	timetableEndpoint = "dbtimetable_get"
	timetableResource = "e923fa0e-d96c-43f9-ae6e-60518c9f3238"
)

// BusPositions returns the current position of every vehicle of vehicleType.
// Records missing a line or vehicle number are skipped.
func (c *Client) BusPositions(ctx context.Context, vehicleType ztm.VehicleType) ([]ztm.PositionRecord, error) {
	params := url.Values{}
	params.Set("resource_id", positionsResource)
	params.Set("type", strconv.Itoa(int(vehicleType)))

	var records []ztm.PositionRecord
	err := c.request(ctx, positionsEndpoint, params, func(result json.RawMessage) error {
		list, err := resultList(positionsEndpoint, result)
		if err != nil {
			return err
		}
		records = make([]ztm.PositionRecord, 0, len(list))
		for _, item := range list {
			var record ztm.PositionRecord
			if err = json.Unmarshal(item, &record); err != nil {
				continue
			}
			if err = c.validate.Struct(record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// StopLocations returns the location of every stop post. Records with missing identifiers or
// unparseable coordinates are skipped.
func (c *Client) StopLocations(ctx context.Context) ([]ztm.StopLocation, error) {
	params := url.Values{}
	params.Set("id", stopsResource)

	var stops []ztm.StopLocation
	err := c.request(ctx, dbStoreEndpoint, params, func(result json.RawMessage) error {
		rows, err := valuesRows(dbStoreEndpoint, result)
		if err != nil {
			return err
		}
		stops = make([]ztm.StopLocation, 0, len(rows))
		for _, row := range rows {
			stop, err := c.stopLocation(row)
			if err != nil {
				continue
			}
			stops = append(stops, stop)
		}
		return nil
	})
	return stops, err
}

func (c *Client) stopLocation(row map[string]string) (ztm.StopLocation, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(row["szer_geo"]), 64)
	if err != nil {
		return ztm.StopLocation{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(row["dlug_geo"]), 64)
	if err != nil {
		return ztm.StopLocation{}, err
	}
	stop := ztm.StopLocation{
		StopGroup: row["zespol"],
		Post:      row["slupek"],
		Latitude:  lat,
		Longitude: lon,
	}
	return stop, c.validate.Struct(stop)
}

type routeStop struct {
	StopGroup string `json:"nr_zespolu"`
	Post      string `json:"nr_przystanku"`
}

// Routes returns every distinct (line, stop group, post) served, sorted by line then stop
func (c *Client) Routes(ctx context.Context) ([]ztm.RouteStop, error) {
	var result []ztm.RouteStop
	err := c.request(ctx, routesEndpoint, url.Values{}, func(raw json.RawMessage) error {
		object, err := resultObject(routesEndpoint, raw)
		if err != nil {
			return err
		}
		var routes map[string]map[string]map[string]routeStop
		if err = json.Unmarshal(object, &routes); err != nil {
			return &APIError{Endpoint: routesEndpoint, Message: fmt.Sprintf("malformed routes: %v", err)}
		}
		result = flattenRoutes(routes)
		return nil
	})
	return result, err
}

func flattenRoutes(routes map[string]map[string]map[string]routeStop) []ztm.RouteStop {
	seen := make(map[ztm.RouteStop]struct{})
	var result []ztm.RouteStop
	for line, variants := range routes {
		for _, sequence := range variants {
			for _, stop := range sequence {
				if stop.StopGroup == "" || stop.Post == "" {
					continue
				}
				rs := ztm.RouteStop{Line: line, StopGroup: stop.StopGroup, Post: stop.Post}
				if _, present := seen[rs]; present {
					continue
				}
				seen[rs] = struct{}{}
				result = append(result, rs)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Line != result[j].Line {
			return result[i].Line < result[j].Line
		}
		if result[i].StopGroup != result[j].StopGroup {
			return result[i].StopGroup < result[j].StopGroup
		}
		return result[i].Post < result[j].Post
	})
	return result
}

// Timetable returns the departures of line from a stop post
func (c *Client) Timetable(ctx context.Context, stopGroup, post, line string) ([]ztm.TimetableEntry, error) {
	params := url.Values{}
	params.Set("id", timetableResource)
	params.Set("busstopId", stopGroup)
	params.Set("busstopNr", post)
	params.Set("line", line)

	var entries []ztm.TimetableEntry
	err := c.request(ctx, timetableEndpoint, params, func(result json.RawMessage) error {
		rows, err := valuesRows(timetableEndpoint, result)
		if err != nil {
			return err
		}
		entries = make([]ztm.TimetableEntry, 0, len(rows))
		for _, row := range rows {
			e := ztm.TimetableEntry{
				Line:          line,
				StopGroup:     stopGroup,
				Post:          post,
				Brigade:       row["brygada"],
				ScheduledTime: row["czas"],
				Route:         row["trasa"],
				Direction:     row["kierunek"],
			}
			if err = c.validate.Struct(e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type valuesRow struct {
	Values []keyValue `json:"values"`
}

// valuesRows normalizes the key/value list form used by dbstore_get and dbtimetable_get into maps
func valuesRows(endpoint string, result json.RawMessage) ([]map[string]string, error) {
	list, err := resultList(endpoint, result)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(list))
	for _, item := range list {
		var row valuesRow
		if err = json.Unmarshal(item, &row); err != nil {
			continue
		}
		m := make(map[string]string, len(row.Values))
		for _, kv := range row.Values {
			m[kv.Key] = kv.Value
		}
		rows = append(rows, m)
	}
	return rows, nil
}
