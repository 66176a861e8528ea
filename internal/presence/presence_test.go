package presence

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"wire format", "2025-06-15T06:00:00Z", time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC), false},
		{"offset converted to utc", "2025-06-15T09:00:00+03:00", time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"date only", "2025-06-15", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedTimestamp) {
					t.Fatalf("ParseTimestamp(%q) error = %v, want ErrMalformedTimestamp", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestFormatTimestamp_RoundTrip(t *testing.T) {
	const in = "2025-01-02T03:04:05Z"
	ts, err := ParseTimestamp(in)
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if got := FormatTimestamp(ts); got != in {
		t.Errorf("FormatTimestamp = %q, want %q", got, in)
	}
}

func TestFormatOffset(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		in   *float64
		want string
	}{
		{nil, "N/A"},
		{f(0), "UTC+0"},
		{f(3), "UTC+3"},
		{f(-5), "UTC-5"},
		{f(5.5), "UTC+5:30"},
		{f(-3.5), "UTC-3:30"},
		{f(14), "UTC+14"},
	}

	for _, tt := range tests {
		if got := FormatOffset(tt.in); got != tt.want {
			t.Errorf("FormatOffset(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" Online "); err != nil || s != Online {
		t.Errorf("ParseStatus(Online) = %q, %v", s, err)
	}
	if s, err := ParseStatus("offline"); err != nil || s != Offline {
		t.Errorf("ParseStatus(offline) = %q, %v", s, err)
	}
	if _, err := ParseStatus("away"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseStatus(away) error = %v, want ErrInvalidStatus", err)
	}
}
