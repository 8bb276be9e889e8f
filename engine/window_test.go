package engine

import (
	"testing"
	"time"

	"coldreach/models"
)

func campaignWindow(tz, start, end string, days []int) *models.Campaign {
	return &models.Campaign{
		Timezone:     tz,
		SendingStart: start,
		SendingEnd:   end,
		SendingDays:  days,
	}
}

func TestWindowOpenBusinessHours(t *testing.T) {
	weekdays := []int{1, 2, 3, 4, 5}
	c := campaignWindow("UTC", "09:00", "17:00", weekdays)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday mid-morning", time.Date(2025, 6, 9, 10, 30, 0, 0, time.UTC), true},
		{"monday before open", time.Date(2025, 6, 9, 8, 59, 0, 0, time.UTC), false},
		{"monday at open", time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC), true},
		{"monday at close", time.Date(2025, 6, 9, 17, 0, 0, 0, time.UTC), false},
		{"saturday excluded", time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC), false},
		{"sunday excluded", time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WindowOpen(c, tt.at)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("WindowOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestWindowOpenOvernight(t *testing.T) {
	c := campaignWindow("UTC", "22:00", "06:00", nil)

	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2025, 6, 9, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 6, 9, 3, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC), false},
		{time.Date(2025, 6, 9, 6, 0, 0, 0, time.UTC), false},
		{time.Date(2025, 6, 9, 22, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		got, err := WindowOpen(c, tt.at)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("WindowOpen(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestWindowOpenTimezone(t *testing.T) {
	// 14:00 UTC is 09:00 in New York during June (UTC-5 -> DST UTC-4: 10:00).
	c := campaignWindow("America/New_York", "09:00", "17:00", nil)

	at := time.Date(2025, 6, 9, 14, 0, 0, 0, time.UTC) // 10:00 in New York
	got, err := WindowOpen(c, at)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("expected window open at 10:00 local")
	}

	at = time.Date(2025, 6, 9, 4, 0, 0, 0, time.UTC) // 00:00 in New York
	got, err = WindowOpen(c, at)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Fatal("expected window closed at midnight local")
	}
}

func TestWindowOpenEmptyDaysAllowsAll(t *testing.T) {
	c := campaignWindow("UTC", "00:00", "00:00", nil)
	got, err := WindowOpen(c, time.Date(2025, 6, 14, 3, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("identical start and end should mean always open")
	}
}

func TestWindowOpenMalformedClock(t *testing.T) {
	c := campaignWindow("UTC", "9am", "17:00", nil)
	if _, err := WindowOpen(c, time.Now()); err == nil {
		t.Fatal("expected error for malformed start time")
	}
}

func TestEligibleAt(t *testing.T) {
	step := &models.SequenceStep{StepNumber: 2, DelayDays: 3}

	if got := EligibleAt(nil, step); !got.IsZero() {
		t.Fatalf("first send should be immediately eligible, got %s", got)
	}

	sent := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	want := time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)
	if got := EligibleAt(&sent, step); !got.Equal(want) {
		t.Fatalf("EligibleAt = %s, want %s", got, want)
	}
}
