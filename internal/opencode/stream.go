package opencode

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const reconnectDelay = 5 * time.Second

// EventSource consumes the server's SSE endpoint and hands each decoded
// event to a handler. It reconnects forever until the context ends.
type EventSource struct {
	baseURL string
	httpc   *http.Client
	handler func(Event)
}

// NewEventSource builds a source for baseURL's /event endpoint.
func NewEventSource(baseURL string, handler func(Event)) *EventSource {
	return &EventSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{}, // no timeout; the stream is long-lived
		handler: handler,
	}
}

// Run connects and reads until ctx is done, backing off between
// connection failures.
func (es *EventSource) Run(ctx context.Context) error {
	url := es.baseURL + "/event"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := es.connectAndRead(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("event stream disconnected", "error", err, "retry_in", reconnectDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
		}
	}
}

func (es *EventSource) connectAndRead(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := es.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	slog.Info("connected to event stream", "url", url)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		case line == "" && data.Len() > 0:
			es.dispatch(data.String())
			data.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed")
}

func (es *EventSource) dispatch(raw string) {
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		slog.Warn("malformed event", "error", err)
		return
	}
	es.handler(ev)
}
