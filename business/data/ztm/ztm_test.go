package ztm

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "api layout",
			value: "2024-02-14 12:00:30",
			want:  time.Date(2024, 2, 14, 12, 0, 30, 0, time.UTC),
		},
		{
			name:  "iso layout without zone",
			value: "2024-02-14T12:00:30",
			want:  time.Date(2024, 2, 14, 12, 0, 30, 0, time.UTC),
		},
		{
			name:  "rfc3339 keeps the wall clock",
			value: "2024-02-14T12:00:30+01:00",
			want:  time.Date(2024, 2, 14, 12, 0, 30, 0, time.UTC),
		},
		{
			name:    "garbage",
			value:   "not a time",
			wantErr: true,
		},
		{
			name:    "empty",
			value:   "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got, err := ParseTimestamp(tt.value)
			if tt.wantErr {
				is.True(err != nil)
				return
			}
			is.NoErr(err)
			is.True(got.Equal(tt.want))
			is.Equal(got.Hour(), tt.want.Hour())
		})
	}
}

func TestSamplesFromRecords(t *testing.T) {
	is := is.New(t)
	records := []PositionRecord{
		{Lines: "100", Lat: 52.1, Lon: 21.0, VehicleNumber: "1001", Brigade: "1", Time: "2024-02-14 12:00:00"},
		{Lines: "100", Lat: 52.2, Lon: 21.1, VehicleNumber: "1002", Brigade: "2", Time: "yesterday"},
		{Lines: "180", Lat: 52.3, Lon: 21.2, VehicleNumber: "1003", Brigade: "3", Time: "2024-02-14 12:00:05"},
	}
	samples, dropped := SamplesFromRecords(records)
	is.Equal(dropped, 1)
	is.Equal(len(samples), 2)
	is.Equal(samples[0].VehicleNumber, "1001")
	is.Equal(samples[1].Line, "180")
	is.Equal(samples[1].Latitude, 52.3)
	is.Equal(samples[1].Time, time.Date(2024, 2, 14, 12, 0, 5, 0, time.UTC))
}

func TestSecondsFromScheduleTime(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{value: "00:00:00", want: 0},
		{value: "05:11:00", want: 18660},
		{value: "23:59:59", want: 86399},
		{value: "24:10:00", want: 87000},
		{value: "25:00:01", want: 90001},
		{value: "5:11", wantErr: true},
		{value: "aa:11:00", wantErr: true},
		{value: "10:60:00", wantErr: true},
		{value: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			is := is.New(t)
			got, err := SecondsFromScheduleTime(tt.value)
			if tt.wantErr {
				is.True(err != nil)
				return
			}
			is.NoErr(err)
			is.Equal(got, tt.want)
		})
	}
}

func TestParseVehicleType(t *testing.T) {
	is := is.New(t)
	v, err := ParseVehicleType("bus")
	is.NoErr(err)
	is.Equal(v, Bus)
	v, err = ParseVehicleType("2")
	is.NoErr(err)
	is.Equal(v, Tram)
	_, err = ParseVehicleType("ferry")
	is.True(err != nil)
}

func TestServiceCalendar_DayType(t *testing.T) {
	calendar := MakeServiceCalendar()
	tests := []struct {
		name string
		at   time.Time
		want DayType
	}{
		{name: "tuesday", at: time.Date(2024, 11, 12, 8, 0, 0, 0, time.UTC), want: Weekday},
		{name: "saturday", at: time.Date(2024, 11, 9, 8, 0, 0, 0, time.UTC), want: Saturday},
		{name: "sunday", at: time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC), want: Sunday},
		{name: "independence day on a monday", at: time.Date(2024, 11, 11, 8, 0, 0, 0, time.UTC), want: Sunday},
		{name: "christmas", at: time.Date(2024, 12, 25, 8, 0, 0, 0, time.UTC), want: Sunday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(calendar.DayType(tt.at), tt.want)
		})
	}
}
