package engine

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/models"
)

func TestCooledDown(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		lastUsed *time.Time
		delay    int
		want     bool
	}{
		{"never used", nil, 300, true},
		{"delay pending", ago(10 * time.Second), 300, false},
		{"delay elapsed", ago(400 * time.Second), 300, true},
		{"exactly elapsed", ago(300 * time.Second), 300, true},
		{"just sent, minimum delay", ago(0), 0, false},
	}
	for _, tt := range tests {
		account := &models.EmailAccount{LastUsed: tt.lastUsed}
		campaign := &models.Campaign{EmailDelaySeconds: tt.delay}
		if got := cooledDown(account, campaign, now); got != tt.want {
			t.Errorf("%s: cooledDown = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// The inter-send delay spans ticks: an account that sent moments ago on
// a previous tick must not be assigned again until the delay elapses.
func TestAssignHonorsDelayAcrossTicks(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	o := &Orchestrator{logger: logger}
	now := time.Now()

	newWork := func(lastUsed *time.Time) Work {
		return Work{
			Campaign: &models.Campaign{
				Model:             gorm.Model{ID: 1},
				EmailDelaySeconds: 300,
				Accounts: []models.EmailAccount{
					{Model: gorm.Model{ID: 7}, IsActive: true, DailyLimit: 50, LastUsed: lastUsed},
				},
			},
			Contact: &models.Contact{},
			Step:    &models.SequenceStep{StepNumber: 1},
			Owner:   &models.User{},
		}
	}

	recent := now.Add(-10 * time.Second)
	queues, _ := o.assign([]Work{newWork(&recent)}, now)
	if len(queues) != 0 {
		t.Fatalf("account assigned %d sends while delay pending", len(queues[7]))
	}

	old := now.Add(-400 * time.Second)
	queues, _ = o.assign([]Work{newWork(&old), newWork(&old)}, now)
	if len(queues[7]) != 2 {
		t.Fatalf("cooled account queued %d sends, want 2", len(queues[7]))
	}
}
