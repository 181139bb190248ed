// Package testutil contains helpers shared across package tests: a logger
// that records its lines for assertions and small agent doubles. These
// helpers are intentionally minimal and not intended for production usage.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mofa-org/mofa-go/core"
)

// CaptureLogger records every line it receives, prefixed with the level.
// Safe for concurrent use.
type CaptureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *CaptureLogger) log(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l.mu.Lock()
	l.lines = append(l.lines, b.String())
	l.mu.Unlock()
}

// Debug records a debug line.
func (l *CaptureLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }

// Info records an info line.
func (l *CaptureLogger) Info(msg string, args ...any) { l.log("INFO", msg, args...) }

// Warn records a warn line.
func (l *CaptureLogger) Warn(msg string, args ...any) { l.log("WARN", msg, args...) }

// Error records an error line.
func (l *CaptureLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

// Lines returns a copy of everything logged so far.
func (l *CaptureLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether any recorded line contains the substring.
func (l *CaptureLogger) Contains(substr string) bool {
	for _, line := range l.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// EchoAgent answers every task with its content and counts invocations.
type EchoAgent struct {
	AgentID string
	Calls   atomic.Int64
}

// ID returns the agent id.
func (a *EchoAgent) ID() string { return a.AgentID }

// Metadata returns minimal metadata for the id.
func (a *EchoAgent) Metadata() core.AgentMetadata {
	return core.AgentMetadata{ID: a.AgentID, Name: a.AgentID, Version: "test"}
}

// Initialize is a no-op.
func (a *EchoAgent) Initialize(ctx context.Context) error { return nil }

// Execute echoes the task content back as a successful response.
func (a *EchoAgent) Execute(ctx context.Context, msg core.AgentMessage) (core.AgentMessage, error) {
	a.Calls.Add(1)
	return core.NewTaskResponse(msg.TaskID, msg.Content, core.TaskStatusSuccess), nil
}

// HandleMessage counts the delivery.
func (a *EchoAgent) HandleMessage(ctx context.Context, msg core.AgentMessage) error {
	a.Calls.Add(1)
	return nil
}

// Shutdown is a no-op.
func (a *EchoAgent) Shutdown(ctx context.Context) error { return nil }

// FailNTimesAgent fails the first N Execute calls with a retryable error,
// then behaves like EchoAgent.
type FailNTimesAgent struct {
	EchoAgent
	N int

	failures atomic.Int64
}

// Execute fails while failures remain, then echoes.
func (a *FailNTimesAgent) Execute(ctx context.Context, msg core.AgentMessage) (core.AgentMessage, error) {
	if a.failures.Add(1) <= int64(a.N) {
		return core.AgentMessage{}, core.NewError(core.KindExecution, "transient failure %d", a.failures.Load())
	}
	return a.EchoAgent.Execute(ctx, msg)
}
