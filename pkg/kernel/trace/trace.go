// Package trace implements the append-only JSONL audit trail of a run.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventRunComplete    EventType = "run_complete"
	EventStepStart      EventType = "step_start"
	EventStepComplete   EventType = "step_complete"
	EventStepRetry      EventType = "step_retry"
	EventLoopStart      EventType = "loop_start"
	EventLoopIteration  EventType = "loop_iteration"
	EventLoopExit       EventType = "loop_exit"
	EventSwitchMatch    EventType = "switch_match"
	EventBranchEnter    EventType = "branch_enter"
	EventErrorReported  EventType = "error_reported"
	EventProgress       EventType = "progress"
	EventVariableChange EventType = "variable_change"
)

// StepStatus is the execution status of a step.
type StepStatus string

const (
	StatusSuccess  StepStatus = "success"
	StatusFailed   StepStatus = "failed"
	StatusSkipped  StepStatus = "skipped"
	StatusReported StepStatus = "reported"
	StatusIgnored  StepStatus = "ignored"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Failure describes why a step failed.
type Failure struct {
	Kind    string `json:"kind"` // syntax, unresolved, type, runtime, external, cancelled
	Message string `json:"message"`
}

// Writer writes trace events to an append-only JSONL stream. A nil *Writer
// discards every event, so callers never need a guard.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	c     io.Closer
	runID string
	enc   *json.Encoder
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.c = f
	return tw, nil
}

// Close closes the underlying file when the writer owns one.
func (tw *Writer) Close() error {
	if tw == nil || tw.c == nil {
		return nil
	}
	return tw.c.Close()
}

// RunID returns the run the writer stamps on events.
func (tw *Writer) RunID() string {
	if tw == nil {
		return ""
	}
	return tw.runID
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		Data:      data,
	}
	return tw.enc.Encode(evt)
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(script string, variables map[string]any) error {
	data := map[string]any{"script": script}
	if len(variables) > 0 {
		data["variables"] = variables
	}
	return tw.Emit(EventRunStart, data)
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(status string, duration time.Duration, failure *Failure) error {
	data := map[string]any{
		"status":   status,
		"duration": duration.String(),
	}
	if failure != nil {
		data["failure"] = failure.toMap()
	}
	return tw.Emit(EventRunComplete, data)
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(line int, command, display string) error {
	return tw.Emit(EventStepStart, map[string]any{
		"line":    line,
		"command": command,
		"display": display,
	})
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(line int, command string, status StepStatus, duration time.Duration, failure *Failure) error {
	data := map[string]any{
		"line":     line,
		"command":  command,
		"status":   string(status),
		"duration": duration.String(),
	}
	if failure != nil {
		data["failure"] = failure.toMap()
	}
	return tw.Emit(EventStepComplete, data)
}

// EmitLoop emits one of the loop_* events.
func (tw *Writer) EmitLoop(eventType EventType, line, iteration int) error {
	return tw.Emit(eventType, map[string]any{
		"line":      line,
		"iteration": iteration,
	})
}

// EmitSwitchMatch emits a switch_match event. arm is -1 when nothing matched.
func (tw *Writer) EmitSwitchMatch(line int, value string, arm int, label string) error {
	return tw.Emit(EventSwitchMatch, map[string]any{
		"line":  line,
		"value": value,
		"arm":   arm,
		"label": label,
	})
}

// EmitBranchEnter emits a branch_enter event for if/else and try arms.
func (tw *Writer) EmitBranchEnter(line int, label string) error {
	return tw.Emit(EventBranchEnter, map[string]any{
		"line":  line,
		"label": label,
	})
}

// EmitErrorReported emits an error_reported event.
func (tw *Writer) EmitErrorReported(line int, command, message string) error {
	return tw.Emit(EventErrorReported, map[string]any{
		"line":    line,
		"command": command,
		"message": message,
	})
}

func (f *Failure) toMap() map[string]any {
	return map[string]any{
		"kind":    f.Kind,
		"message": f.Message,
	}
}

// ReadEvents decodes a JSONL trace stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var events []Event
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return events, fmt.Errorf("decode event %d: %w", len(events)+1, err)
		}
		events = append(events, evt)
	}
	return events, scanner.Err()
}
