package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lon1, lat1, lon2, lat2 float64
		want                   float64
	}{
		{
			name: "krakow area to north of warsaw",
			lon1: 21.1816406, lat1: 50.0077390,
			lon2: 19.8632813, lat2: 52.6097194,
			want: 303.5,
		},
		{
			name: "poland to chukotka",
			lon1: 19.3798828, lat1: 52.6097194,
			lon2: 176.4843750, lat2: 63.1543552,
			want: 6989.0,
		},
		{
			name: "same point",
			lon1: 21.0123688, lat1: 52.2296133,
			lon2: 21.0123688, lat2: 52.2296133,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got := Distance(tt.lon1, tt.lat1, tt.lon2, tt.lat2)
			is.True(math.Abs(got-tt.want) < 0.05) // distance within 50m
			reverse := Distance(tt.lon2, tt.lat2, tt.lon1, tt.lat1)
			is.True(math.Abs(got-reverse) < 1e-9) // symmetric
		})
	}
}

func TestDistance_symmetry(t *testing.T) {
	is := is.New(t)
	points := [][2]float64{
		{21.0, 52.2}, {-73.9, 40.7}, {179.9, -16.5}, {-179.9, -16.5}, {0, 0}, {139.7, 35.7},
	}
	for _, a := range points {
		is.True(Distance(a[0], a[1], a[0], a[1]) < 1e-9)
		for _, b := range points {
			is.True(math.Abs(Distance(a[0], a[1], b[0], b[1])-Distance(b[0], b[1], a[0], a[1])) < 1e-9)
		}
	}
}

func TestSecondsSinceMidnight(t *testing.T) {
	tests := []struct {
		at   time.Time
		want int
	}{
		{at: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), want: 0},
		{at: time.Date(2021, 1, 1, 12, 0, 30, 0, time.UTC), want: 43230},
		{at: time.Date(2021, 1, 1, 23, 59, 59, 999, time.UTC), want: 86399},
		{at: time.Date(2022, 7, 9, 12, 0, 30, 0, time.UTC), want: 43230},
	}
	for _, tt := range tests {
		t.Run(tt.at.String(), func(t *testing.T) {
			is := is.New(t)
			is.Equal(SecondsSinceMidnight(tt.at), tt.want)
		})
	}
}
