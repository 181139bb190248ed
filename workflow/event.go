package workflow

import "time"

// EventSchemaVersion is the current execution event schema.
const EventSchemaVersion = 1

// EventKind enumerates execution event kinds.
type EventKind string

const (
	EventWorkflowStarted        EventKind = "workflow_started"
	EventWorkflowCompleted      EventKind = "workflow_completed"
	EventWorkflowFailed         EventKind = "workflow_failed"
	EventWorkflowPaused         EventKind = "workflow_paused"
	EventNodeStarted            EventKind = "node_started"
	EventNodeCompleted          EventKind = "node_completed"
	EventNodeFailed             EventKind = "node_failed"
	EventNodeRetrying           EventKind = "node_retrying"
	EventBranchDecision         EventKind = "branch_decision"
	EventParallelGroupStarted   EventKind = "parallel_group_started"
	EventParallelGroupCompleted EventKind = "parallel_group_completed"
	EventStateUpdated           EventKind = "state_updated"
	EventToolInvoked            EventKind = "tool_invoked"
	EventToolCompleted          EventKind = "tool_completed"
	EventToolFailed             EventKind = "tool_failed"
)

// ExecutionEvent records one transition in an execution's trace. Events for
// a single execution are totally ordered by Sequence.
type ExecutionEvent struct {
	SchemaVersion int       `json:"schema_version" cbor:"1,keyasint"`
	Sequence      uint64    `json:"sequence" cbor:"2,keyasint"`
	Kind          EventKind `json:"kind" cbor:"3,keyasint"`
	ExecutionID   string    `json:"execution_id" cbor:"4,keyasint"`
	NodeID        string    `json:"node_id,omitempty" cbor:"5,keyasint,omitempty"`
	Attempt       int       `json:"attempt,omitempty" cbor:"6,keyasint,omitempty"`
	Detail        string    `json:"detail,omitempty" cbor:"7,keyasint,omitempty"`
	TimestampMS   int64     `json:"timestamp_ms" cbor:"8,keyasint"`
}

func newEvent(kind EventKind, executionID string) ExecutionEvent {
	return ExecutionEvent{
		SchemaVersion: EventSchemaVersion,
		Kind:          kind,
		ExecutionID:   executionID,
		TimestampMS:   time.Now().UnixMilli(),
	}
}
