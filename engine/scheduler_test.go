package engine

import (
	"testing"
	"time"

	"coldreach/models"
)

func validSteps() []models.SequenceStep {
	return []models.SequenceStep{
		{StepNumber: 2, DelayDays: 3, IsActive: true, Subject: "Follow up", Content: "Any thoughts?"},
		{StepNumber: 1, DelayDays: 0, IsActive: true, Subject: "Intro", Content: "Hello"},
		{StepNumber: 3, DelayDays: 5, IsActive: true, Subject: "Last try", Content: "Closing the loop"},
	}
}

func TestNextStepOrdersByStepNumber(t *testing.T) {
	steps := validSteps()

	got := NextStep(steps, 0, nil)
	if got == nil || got.StepNumber != 1 {
		t.Fatalf("fresh contact should get step 1, got %+v", got)
	}

	got = NextStep(steps, 1, nil)
	if got == nil || got.StepNumber != 2 {
		t.Fatalf("after one send should get step 2, got %+v", got)
	}

	if got := NextStep(steps, 3, nil); got != nil {
		t.Fatalf("completed sequence should return nil, got %+v", got)
	}
}

func TestNextStepSkipsInactive(t *testing.T) {
	steps := validSteps()
	steps[0].IsActive = false // step 2 disabled

	got := NextStep(steps, 1, nil)
	if got == nil || got.StepNumber != 3 {
		t.Fatalf("disabled step should be skipped, got %+v", got)
	}
}

func TestNextStepSkipsMalformed(t *testing.T) {
	steps := validSteps()
	steps[1].Subject = "" // step 1 has no subject and no ai prompt

	var skipped []int
	got := NextStep(steps, 0, func(st *models.SequenceStep, err error) {
		skipped = append(skipped, st.StepNumber)
	})
	if got == nil || got.StepNumber != 2 {
		t.Fatalf("malformed step should be skipped, got %+v", got)
	}
	if len(skipped) != 1 || skipped[0] != 1 {
		t.Fatalf("skip callback got %v", skipped)
	}
}

func TestNextStepAiPromptSatisfiesValidation(t *testing.T) {
	steps := []models.SequenceStep{{
		StepNumber:      1,
		IsActive:        true,
		UseAiForSubject: true,
		AiSubjectPrompt: "Write a subject about {{company}}",
		Content:         "Hello {{firstName}}",
	}}
	got := NextStep(steps, 0, nil)
	if got == nil {
		t.Fatal("ai-subject step should validate")
	}
}

func TestPickAccountLeastRecentlyUsed(t *testing.T) {
	old := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

	a := &models.EmailAccount{IsActive: true, DailyLimit: 50, SentToday: 0, LastUsed: &recent}
	b := &models.EmailAccount{IsActive: true, DailyLimit: 50, SentToday: 0, LastUsed: &old}
	c := &models.EmailAccount{IsActive: true, DailyLimit: 50, SentToday: 50} // exhausted
	d := &models.EmailAccount{IsActive: false, DailyLimit: 50}               // disabled

	a.ID, b.ID, c.ID, d.ID = 1, 2, 3, 4

	if got := PickAccount([]*models.EmailAccount{a, b, c, d}); got != b {
		t.Fatalf("expected least recently used account, got %+v", got)
	}

	// An account never used wins over any used one.
	e := &models.EmailAccount{IsActive: true, DailyLimit: 50}
	e.ID = 5
	if got := PickAccount([]*models.EmailAccount{a, b, e}); got != e {
		t.Fatalf("expected never-used account, got %+v", got)
	}

	if got := PickAccount([]*models.EmailAccount{c, d}); got != nil {
		t.Fatalf("exhausted pool should return nil, got %+v", got)
	}
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		step    models.SequenceStep
		wantErr bool
	}{
		{"manual ok", models.SequenceStep{StepNumber: 1, Subject: "s", Content: "c"}, false},
		{"ai subject without prompt", models.SequenceStep{StepNumber: 1, UseAiForSubject: true, Content: "c"}, true},
		{"ai subject with prompt", models.SequenceStep{StepNumber: 1, UseAiForSubject: true, AiSubjectPrompt: "p", Content: "c"}, false},
		{"no subject at all", models.SequenceStep{StepNumber: 1, Content: "c"}, true},
		{"no content at all", models.SequenceStep{StepNumber: 1, Subject: "s"}, true},
		{"ai content with prompt", models.SequenceStep{StepNumber: 1, Subject: "s", UseAiForContent: true, AiContentPrompt: "p"}, false},
		{"zero step number", models.SequenceStep{StepNumber: 0, Subject: "s", Content: "c"}, true},
		{"negative delay", models.SequenceStep{StepNumber: 1, DelayDays: -1, Subject: "s", Content: "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStep(&tt.step)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStep() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
