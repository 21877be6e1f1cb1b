package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

type MockEventSource struct {
	ReplaySinceFunc func(since int64) ([]domain.Event, error)
	SequenceFunc    func() int64
}

func (m *MockEventSource) ReplaySince(since int64) ([]domain.Event, error) {
	return m.ReplaySinceFunc(since)
}
func (m *MockEventSource) Sequence() int64 { return m.SequenceFunc() }

func TestEventsController_Replay(t *testing.T) {
	var gotSince int64
	mockBus := &MockEventSource{
		ReplaySinceFunc: func(since int64) ([]domain.Event, error) {
			gotSince = since
			return []domain.Event{
				{Sequence: 3, Kind: domain.EventExecutionStarted},
				{Sequence: 4, Kind: domain.EventExecutionCompleted},
			}, nil
		},
	}
	c := NewEventsController(mockBus, nil)

	req := httptest.NewRequest("GET", "/api/events?since=2", nil)
	w := httptest.NewRecorder()
	c.handleReplayEvents(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	if gotSince != 2 {
		t.Errorf("Expected since=2, got %d", gotSince)
	}
	var out []domain.Event
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(out) != 2 || out[0].Sequence != 3 {
		t.Errorf("Unexpected events %+v", out)
	}
}

func TestEventsController_ReplayDefaultsToZero(t *testing.T) {
	var gotSince int64 = -1
	mockBus := &MockEventSource{
		ReplaySinceFunc: func(since int64) ([]domain.Event, error) {
			gotSince = since
			return nil, nil
		},
	}
	c := NewEventsController(mockBus, nil)

	req := httptest.NewRequest("GET", "/api/events", nil)
	w := httptest.NewRecorder()
	c.handleReplayEvents(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	if gotSince != 0 {
		t.Errorf("Expected since=0, got %d", gotSince)
	}
	// nil replay still encodes as an empty array
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("Expected empty array, got %q", body)
	}
}

func TestEventsController_ReplayBadSince(t *testing.T) {
	c := NewEventsController(&MockEventSource{}, nil)

	for _, raw := range []string{"abc", "-1"} {
		req := httptest.NewRequest("GET", "/api/events?since="+raw, nil)
		w := httptest.NewRecorder()
		c.handleReplayEvents(w, req)
		if w.Result().StatusCode != http.StatusBadRequest {
			t.Errorf("since=%s: expected status 400, got %d", raw, w.Result().StatusCode)
		}
	}
}

func TestEventsController_Sequence(t *testing.T) {
	mockBus := &MockEventSource{
		SequenceFunc: func() int64 { return 42 },
	}
	c := NewEventsController(mockBus, nil)

	req := httptest.NewRequest("GET", "/api/events/sequence", nil)
	w := httptest.NewRecorder()
	c.handleEventSequence(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	var out map[string]int64
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out["sequence"] != 42 {
		t.Errorf("Expected sequence 42, got %d", out["sequence"])
	}
}
