package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/events"
)

const (
	streamBuffer      = 100
	heartbeatInterval = 30 * time.Second
)

// EventsStreamHandler streams bus events to clients over Server-Sent Events.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream. An optional types query
// parameter (comma-separated) filters the stream.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var allowed map[events.EventType]bool
	if filter := r.URL.Query().Get("types"); filter != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(filter, ",") {
			allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	stream, cancel := h.bus.Subscribe(streamBuffer)
	defer cancel()

	h.log.Info().Str("remote", r.RemoteAddr).Msg("client connected to event stream")

	h.send(w, map[string]any{"type": "connected"})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected from event stream")
			return

		case event, open := <-stream:
			if !open {
				return
			}
			if allowed != nil && !allowed[event.Type] {
				continue
			}
			h.send(w, event)
			flusher.Flush()

		case <-heartbeat.C:
			h.send(w, map[string]any{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) send(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
