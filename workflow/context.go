package workflow

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mofa-org/mofa-go/core"
)

// Status is the lifecycle position of one workflow execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further progress is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// WorkflowContext is the live state of one execution. The executor owns it
// while running and hands it back to the caller on pause.
type WorkflowContext struct {
	executionID string
	workflowID  string
	startedAtMS int64
	state       *State

	mu              sync.Mutex
	status          Status
	lastWaitingNode string
	waitInput       Value
	events          []ExecutionEvent
	eventSeq        uint64
	loopCounts      map[string]int
	joinArrivals    map[string]map[string]Value
}

// NewWorkflowContext creates a fresh running context for a graph.
func NewWorkflowContext(workflowID string) *WorkflowContext {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &WorkflowContext{
		executionID: id.String(),
		workflowID:  workflowID,
		startedAtMS: time.Now().UnixMilli(),
		state:       NewState(),
		status:      StatusRunning,
	}
}

// ExecutionID identifies this run.
func (c *WorkflowContext) ExecutionID() string { return c.executionID }

// WorkflowID identifies the graph this run evaluates.
func (c *WorkflowContext) WorkflowID() string { return c.workflowID }

// StartedAtMS is the unix-millisecond start time.
func (c *WorkflowContext) StartedAtMS() int64 { return c.startedAtMS }

// State is the shared execution state.
func (c *WorkflowContext) State() *State { return c.state }

// Status returns the current lifecycle position.
func (c *WorkflowContext) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *WorkflowContext) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// LastWaitingNode is the Wait node that paused this execution, if any.
func (c *WorkflowContext) LastWaitingNode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWaitingNode
}

func (c *WorkflowContext) setWaiting(nodeID string, input Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusPaused
	c.lastWaitingNode = nodeID
	c.waitInput = input
}

func (c *WorkflowContext) clearWaiting() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	in := c.waitInput
	c.lastWaitingNode = ""
	c.waitInput = Null()
	c.status = StatusRunning
	return in
}

// setProgress records loop iteration counts and pending join arrivals at a
// pause, so a resumed run continues counting where it stopped instead of
// granting every loop its full iteration budget again.
func (c *WorkflowContext) setProgress(loops map[string]int, joins map[string]map[string]Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopCounts = loops
	c.joinArrivals = joins
}

// progress returns copies of the recorded loop counts and join arrivals.
func (c *WorkflowContext) progress() (map[string]int, map[string]map[string]Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyLoopCounts(c.loopCounts), copyJoinArrivals(c.joinArrivals)
}

// Events returns a copy of the emitted event trace.
func (c *WorkflowContext) Events() []ExecutionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ExecutionEvent(nil), c.events...)
}

// emit appends an event, assigning the next sequence number.
func (c *WorkflowContext) emit(ev ExecutionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventSeq++
	ev.Sequence = c.eventSeq
	c.events = append(c.events, ev)
}

// Snapshot is the pure-data record a context is rebuilt from. JSON and
// CBOR renderings both round-trip exactly.
type Snapshot struct {
	SchemaVersion   int              `json:"schema_version" cbor:"1,keyasint"`
	ExecutionID     string           `json:"execution_id" cbor:"2,keyasint"`
	WorkflowID      string           `json:"workflow_id" cbor:"3,keyasint"`
	StartedAtMS     int64            `json:"started_at_ms" cbor:"4,keyasint"`
	StateVersion    uint64           `json:"state_version" cbor:"5,keyasint"`
	State           map[string]Value `json:"state" cbor:"6,keyasint"`
	Status          Status           `json:"status" cbor:"7,keyasint"`
	LastWaitingNode string           `json:"last_waiting_node,omitempty" cbor:"8,keyasint,omitempty"`
	WaitInput       Value            `json:"wait_input,omitempty" cbor:"9,keyasint,omitempty"`
	Events          []ExecutionEvent `json:"events,omitempty" cbor:"10,keyasint,omitempty"`

	LoopCounts   map[string]int              `json:"loop_counts,omitempty" cbor:"11,keyasint,omitempty"`
	JoinArrivals map[string]map[string]Value `json:"join_arrivals,omitempty" cbor:"12,keyasint,omitempty"`
}

// SnapshotSchemaVersion is the current snapshot schema.
const SnapshotSchemaVersion = 1

// Snapshot captures the context as a pure-data record.
func (c *WorkflowContext) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SchemaVersion:   SnapshotSchemaVersion,
		ExecutionID:     c.executionID,
		WorkflowID:      c.workflowID,
		StartedAtMS:     c.startedAtMS,
		StateVersion:    c.state.Version(),
		State:           c.state.Values(),
		Status:          c.status,
		LastWaitingNode: c.lastWaitingNode,
		WaitInput:       c.waitInput,
		Events:          append([]ExecutionEvent(nil), c.events...),
		LoopCounts:      copyLoopCounts(c.loopCounts),
		JoinArrivals:    copyJoinArrivals(c.joinArrivals),
	}
}

func copyLoopCounts(src map[string]int) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for id, n := range src {
		out[id] = n
	}
	return out
}

func copyJoinArrivals(src map[string]map[string]Value) map[string]map[string]Value {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]map[string]Value, len(src))
	for id, arrivals := range src {
		m := make(map[string]Value, len(arrivals))
		for from, v := range arrivals {
			m[from] = v
		}
		out[id] = m
	}
	return out
}

// FromSnapshot reconstructs a context from its snapshot.
func FromSnapshot(s Snapshot) (*WorkflowContext, error) {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return nil, core.NewError(core.KindConfiguration, "unsupported snapshot schema version %d", s.SchemaVersion)
	}
	c := &WorkflowContext{
		executionID:     s.ExecutionID,
		workflowID:      s.WorkflowID,
		startedAtMS:     s.StartedAtMS,
		state:           stateFromValues(s.StateVersion, s.State),
		status:          s.Status,
		lastWaitingNode: s.LastWaitingNode,
		waitInput:       s.WaitInput,
		events:          append([]ExecutionEvent(nil), s.Events...),
		loopCounts:      copyLoopCounts(s.LoopCounts),
		joinArrivals:    copyJoinArrivals(s.JoinArrivals),
	}
	if n := len(s.Events); n > 0 {
		c.eventSeq = s.Events[n-1].Sequence
	}
	return c, nil
}

// MarshalDurable renders the snapshot as JSON for durable storage.
func (s Snapshot) MarshalDurable() ([]byte, error) {
	return json.Marshal(s)
}

// snapshotWire strips the codec methods so the CBOR encoder walks the
// struct fields instead of dispatching back to MarshalBinary.
type snapshotWire Snapshot

// MarshalBinary renders the snapshot as canonical CBOR.
func (s Snapshot) MarshalBinary() ([]byte, error) {
	return snapshotEncMode.Marshal(snapshotWire(s))
}

// Dump renders the snapshot as YAML for humans inspecting a paused or
// failed run. Not a durable format; use MarshalDurable or MarshalBinary
// for storage.
func (s Snapshot) Dump() ([]byte, error) {
	return yaml.Marshal(s)
}

// UnmarshalSnapshot decodes a JSON snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, core.WrapError(core.KindConfiguration, err, "decode workflow snapshot")
	}
	return s, nil
}

// UnmarshalSnapshotBinary decodes a CBOR snapshot.
func UnmarshalSnapshotBinary(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := snapshotDecMode.Unmarshal(data, &s); err != nil {
		return Snapshot{}, core.WrapError(core.KindConfiguration, err, "decode workflow snapshot")
	}
	return s, nil
}

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error
	snapshotEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	snapshotDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}
