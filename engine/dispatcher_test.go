package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"coldreach/models"
	"coldreach/personalize"
)

type stubBackend struct {
	name   string
	result string
	err    error
}

func (s *stubBackend) Name() string { return s.name }
func (s *stubBackend) Complete(ctx context.Context, system, user string) (string, error) {
	return s.result, s.err
}

type stubPersonalizer struct {
	backend *stubBackend
	website string
}

func (s *stubPersonalizer) FetchWebsite(ctx context.Context, contact *models.Contact) string {
	return s.website
}

func (s *stubPersonalizer) Personalize(ctx context.Context, contact *models.Contact, prompt, website string) (string, error) {
	return s.backend.Complete(ctx, "", prompt)
}

func (s *stubPersonalizer) Backend() personalize.Backend { return s.backend }

func testWork() Work {
	return Work{
		Campaign: &models.Campaign{UserID: 1},
		Contact:  &models.Contact{FirstName: "Ada", Company: "Acme"},
		Step:     &models.SequenceStep{StepNumber: 1},
		Owner:    &models.User{},
	}
}

func testDispatcher() *Dispatcher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Dispatcher{logger: logger}
}

func TestRenderManualTemplate(t *testing.T) {
	d := testDispatcher()
	w := testWork()

	got, entry := d.render(context.Background(), &stubPersonalizer{}, w, false, "Hi {{firstName}} at {{company}}", "", "subject", "", "")
	if got != "Hi Ada at Acme" {
		t.Fatalf("got %q", got)
	}
	if entry != nil {
		t.Fatal("manual render should not produce an audit entry")
	}
}

func TestRenderUsesAIResult(t *testing.T) {
	d := testDispatcher()
	w := testWork()
	p := &stubPersonalizer{backend: &stubBackend{name: "openai", result: "Custom opener for Acme"}}

	got, entry := d.render(context.Background(), p, w, true, "", "Write an opener for {{company}}", "content", "Title: Acme", "")
	if got != "Custom opener for Acme" {
		t.Fatalf("got %q", got)
	}
	if entry == nil {
		t.Fatal("ai render should produce an audit entry")
	}
	if entry.Provider != "openai" || !entry.UsedWebsite || entry.Kind != "content" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestRenderFallsBackToPromptTemplate(t *testing.T) {
	d := testDispatcher()
	w := testWork()
	p := &stubPersonalizer{backend: &stubBackend{name: "openai", err: errors.New("rate limited")}}

	got, entry := d.render(context.Background(), p, w, true, "", "Quick question for {{company}}", "subject", "", "")
	if got != "Quick question for Acme" {
		t.Fatalf("fallback got %q", got)
	}
	if entry == nil || entry.Provider != "manual" {
		t.Fatalf("fallback entry = %+v", entry)
	}
}

func TestRenderEmptyAIResultFallsBack(t *testing.T) {
	d := testDispatcher()
	w := testWork()
	p := &stubPersonalizer{backend: &stubBackend{name: "openai", result: ""}}

	got, entry := d.render(context.Background(), p, w, true, "", "Hello {{firstName}}", "content", "", "")
	if got != "Hello Ada" {
		t.Fatalf("got %q", got)
	}
	if entry == nil || entry.Provider != "manual" {
		t.Fatalf("entry = %+v", entry)
	}
}
