package controllers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// EventSource is the replay surface of the propagation bus.
type EventSource interface {
	ReplaySince(since int64) ([]domain.Event, error)
	Sequence() int64
}

type EventsController struct {
	AuthController
	Bus EventSource
}

func NewEventsController(bus EventSource, userRepo UserRepo) *EventsController {
	return &EventsController{Bus: bus, AuthController: AuthController{
		UserRepo: userRepo,
	}}
}

// handleReplayEvents returns every event with a sequence greater than
// ?since=K, oldest first. A reconnecting observer passes the last sequence it
// saw and catches up without gaps.
func (c *EventsController) handleReplayEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			http.Error(w, "since is a non-negative integer", http.StatusBadRequest)
			return
		}
		since = v
	}

	events, err := c.Bus.ReplaySince(since)
	if err != nil {
		slog.Error("Failed to replay events", "since", since, "error", err)
		http.Error(w, "failed to replay events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(events)
}

func (c *EventsController) handleEventSequence(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int64{"sequence": c.Bus.Sequence()})
}
