// Package stream writes pipeline results as server-sent events.
//
// An Emitter enforces the event order
//
//	sql, explanation*, done
//	error, done
//
// and refuses to write anything after done.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event kinds.
const (
	EventSQL         = "sql"
	EventExplanation = "explanation"
	EventDone        = "done"
	EventError       = "error"
)

// ContentType is the response media type for event streams.
const ContentType = "text/event-stream"

var (
	// ErrFinished is returned for any write after done.
	ErrFinished = errors.New("stream already finished")
	// ErrOutOfOrder is returned when an event is not allowed in the current state.
	ErrOutOfOrder = errors.New("event out of order")
)

type state int

const (
	stateStart state = iota
	stateSQLSent
	stateExplaining
	stateDone
)

// SQLPayload is the data of the sql event.
type SQLPayload struct {
	SQLQuery   string   `json:"sql_query"`
	Confidence float64  `json:"confidence"`
	TablesUsed []string `json:"tables_used"`
}

type chunkPayload struct {
	Chunk string `json:"chunk"`
}

type errorPayload struct {
	Detail string `json:"detail"`
}

type flusher interface {
	Flush()
}

// Emitter serializes events for a single response. It is not safe for
// concurrent use; each request owns its emitter.
type Emitter struct {
	w     io.Writer
	delay time.Duration
	state state
}

// NewEmitter writes events to w, flushing after each one when w supports it.
// delay is the pause between explanation chunks.
func NewEmitter(w io.Writer, delay time.Duration) *Emitter {
	return &Emitter{w: w, delay: delay}
}

// Finished reports whether done has been written.
func (e *Emitter) Finished() bool {
	return e.state == stateDone
}

// SQL emits the generated query. It must be the first event.
func (e *Emitter) SQL(p SQLPayload) error {
	if e.state == stateDone {
		return ErrFinished
	}
	if e.state != stateStart {
		return fmt.Errorf("%w: sql after %s", ErrOutOfOrder, e.stateName())
	}
	if p.TablesUsed == nil {
		p.TablesUsed = []string{}
	}
	if err := e.write(EventSQL, p); err != nil {
		return err
	}
	e.state = stateSQLSent
	return nil
}

// Explanation emits text one whitespace-separated word at a time, pausing
// between words. It stops early when ctx is done.
func (e *Emitter) Explanation(ctx context.Context, text string) error {
	if e.state == stateDone {
		return ErrFinished
	}
	if e.state != stateSQLSent && e.state != stateExplaining {
		return fmt.Errorf("%w: explanation before sql", ErrOutOfOrder)
	}

	for i, word := range strings.Fields(text) {
		if i > 0 && e.delay > 0 {
			if err := sleep(ctx, e.delay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.write(EventExplanation, chunkPayload{Chunk: word + " "}); err != nil {
			return err
		}
		e.state = stateExplaining
	}
	return nil
}

// Done emits the terminal event after a successful sequence.
func (e *Emitter) Done() error {
	if e.state == stateDone {
		return ErrFinished
	}
	if e.state == stateStart {
		return fmt.Errorf("%w: done before sql", ErrOutOfOrder)
	}
	return e.finish()
}

// Error emits a client-safe message followed by done.
func (e *Emitter) Error(message string) error {
	if e.state == stateDone {
		return ErrFinished
	}
	if err := e.write(EventError, errorPayload{Detail: message}); err != nil {
		return err
	}
	return e.finish()
}

func (e *Emitter) finish() error {
	// Whatever happens on the wire, nothing more may be emitted.
	e.state = stateDone
	return e.write(EventDone, struct{}{})
}

func (e *Emitter) write(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	if f, ok := e.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

func (e *Emitter) stateName() string {
	switch e.state {
	case stateStart:
		return "start"
	case stateSQLSent:
		return EventSQL
	case stateExplaining:
		return EventExplanation
	default:
		return EventDone
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
