package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	writeTimeout = 60 * time.Second
	retryHint    = 3 * time.Second
)

// Handler streams the change feed.
//
// Query parameters:
//
//	user_id        only deliver user-addressed events for this user
//	types          comma separated event types to deliver
//	last_event_id  resume after this seq (the Last-Event-ID header wins)
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler serving m.
func NewHandler(m *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: m, logger: logger}
}

// ConnectedEventData is the payload of the first frame on every stream.
type ConnectedEventData struct {
	ClientID string `json:"client_id"`
	LastSeq  uint64 `json:"last_seq"`
	Replayed int    `json:"replayed"`
	// Gap is set when the requested resume point cannot be replayed, because
	// it was evicted or was never issued by this feed, and the subscriber
	// should reload its view.
	Gap bool `json:"gap,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	filter := parseFilter(r)
	resume, resuming := resumePoint(r)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	out := &frameWriter{w: w, rc: http.NewResponseController(w), log: h.logger}
	if err := out.rc.Flush(); err != nil {
		h.logger.Error("streaming unsupported", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(filter)
	if err != nil {
		h.logger.Error("feed subscribe failed", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)
	log := h.logger.With(slog.String("client_id", client.ID))

	// Subscribe before reading history so nothing published in between is lost;
	// duplicates are skipped by seq below.
	var backlog []Event
	gap := false
	if resuming {
		var complete bool
		backlog, complete = h.manager.Since(resume, filter)
		gap = !complete
	}
	if gap {
		// The resume point predates this feed (evicted, or issued before a
		// restart reset the seq). Deliver everything from here on.
		resume = 0
	}

	hello := ConnectedEventData{
		ClientID: client.ID,
		LastSeq:  h.manager.LastSeq(),
		Replayed: len(backlog),
		Gap:      gap,
	}
	if err := out.retry(retryHint); err != nil {
		return
	}
	if err := out.frame("connected", 0, hello); err != nil {
		log.Warn("feed greeting failed", slog.String("error", err.Error()))
		return
	}

	sent := resume
	for _, e := range backlog {
		if err := out.frame(string(e.Type), e.Seq, e); err != nil {
			return
		}
		sent = e.Seq
	}

	keepalive := time.NewTicker(h.manager.heartbeatInterval)
	defer keepalive.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			log.Info("feed subscriber went away")
			return
		case <-client.Done:
			log.Info("feed closed by manager")
			return
		case <-keepalive.C:
			beat := NewHeartbeatEvent()
			err = out.frame(string(beat.Type), 0, beat)
		case e, ok := <-client.EventChan:
			if !ok {
				return
			}
			if e.Seq <= sent {
				continue
			}
			sent = e.Seq
			err = out.frame(string(e.Type), e.Seq, e)
		}
		if err != nil {
			log.Info("feed write failed, closing", slog.String("error", err.Error()))
			return
		}
	}
}

func parseFilter(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{UserID: q.Get("user_id")}
	for t := range strings.SplitSeq(q.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Types = append(f.Types, EventType(t))
		}
	}
	return f
}

func resumePoint(r *http.Request) (uint64, bool) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, false
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// frameWriter writes text/event-stream frames and flushes each one.
type frameWriter struct {
	w   io.Writer
	rc  *http.ResponseController
	log *slog.Logger
}

func (f *frameWriter) retry(d time.Duration) error {
	if _, err := fmt.Fprintf(f.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	return f.flush()
}

func (f *frameWriter) frame(event string, seq uint64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}

	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	if seq > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.FormatUint(seq, 10))
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(body)
	b.WriteString("\n\n")

	if _, err := io.WriteString(f.w, b.String()); err != nil {
		return err
	}
	return f.flush()
}

func (f *frameWriter) flush() error {
	if err := f.rc.Flush(); err != nil {
		return err
	}
	if err := f.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		f.log.Debug("write deadline unsupported", slog.String("error", err.Error()))
	}
	return nil
}
