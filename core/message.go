package core

// MessageKind discriminates the AgentMessage sum type.
type MessageKind string

const (
	// MessageKindTaskRequest asks an agent to perform a task.
	MessageKindTaskRequest MessageKind = "task_request"
	// MessageKindTaskResponse reports the outcome of a task.
	MessageKindTaskResponse MessageKind = "task_response"
	// MessageKindEvent carries a lifecycle or custom event.
	MessageKindEvent MessageKind = "event"
	// MessageKindStream carries one chunk of a data stream.
	MessageKindStream MessageKind = "stream"
	// MessageKindStreamControl pauses, resumes or stops a stream.
	MessageKindStreamControl MessageKind = "stream_control"
	// MessageKindStateSync replicates key/value state between agents.
	MessageKindStateSync MessageKind = "state_sync"
)

// TaskStatus reports the terminal outcome of a task.
type TaskStatus string

const (
	// TaskStatusSuccess marks a completed task.
	TaskStatusSuccess TaskStatus = "success"
	// TaskStatusFailure marks a failed task.
	TaskStatusFailure TaskStatus = "failure"
	// TaskStatusCancelled marks a cancelled task.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// StreamCommand controls an active stream.
type StreamCommand string

const (
	// StreamCommandPause suspends stream delivery.
	StreamCommandPause StreamCommand = "pause"
	// StreamCommandResume resumes a paused stream.
	StreamCommandResume StreamCommand = "resume"
	// StreamCommandStop terminates the stream.
	StreamCommandStop StreamCommand = "stop"
)

// Priority orders messages for backpressure decisions. Lower values are more
// important.
type Priority int

const (
	// PriorityCritical is never dropped under DropLowPriority.
	PriorityCritical Priority = iota
	// PriorityHigh is dropped only to admit critical traffic.
	PriorityHigh
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityLow is the first to be evicted.
	PriorityLow
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// EventVariant names the lifecycle events an AgentMessage can carry.
type EventVariant string

const (
	// EventShutdown tells every agent to stop; broadcast during drain.
	EventShutdown EventVariant = "shutdown"
	// EventCustom carries a named application event with an opaque payload.
	EventCustom EventVariant = "custom"
)

// AgentMessage is the sum of message kinds agents exchange over the bus. The
// Kind field discriminates; only the fields for that kind are meaningful.
type AgentMessage struct {
	Kind MessageKind `json:"kind" cbor:"1,keyasint"`

	// TaskRequest / TaskResponse
	TaskID  string     `json:"task_id,omitempty" cbor:"2,keyasint,omitempty"`
	Content []byte     `json:"content,omitempty" cbor:"3,keyasint,omitempty"`
	Result  []byte     `json:"result,omitempty" cbor:"4,keyasint,omitempty"`
	Status  TaskStatus `json:"status,omitempty" cbor:"5,keyasint,omitempty"`

	// Event
	Event     EventVariant `json:"event,omitempty" cbor:"6,keyasint,omitempty"`
	EventName string       `json:"event_name,omitempty" cbor:"7,keyasint,omitempty"`
	Payload   []byte       `json:"payload,omitempty" cbor:"8,keyasint,omitempty"`

	// StreamMessage / StreamControl
	StreamID string            `json:"stream_id,omitempty" cbor:"9,keyasint,omitempty"`
	Sequence uint64            `json:"sequence,omitempty" cbor:"10,keyasint,omitempty"`
	Data     []byte            `json:"data,omitempty" cbor:"11,keyasint,omitempty"`
	Command  StreamCommand     `json:"command,omitempty" cbor:"12,keyasint,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" cbor:"13,keyasint,omitempty"`

	// StateSync
	Keys map[string][]byte `json:"keys,omitempty" cbor:"14,keyasint,omitempty"`
}

// NewTaskRequest creates a task request message.
func NewTaskRequest(taskID string, content []byte) AgentMessage {
	return AgentMessage{Kind: MessageKindTaskRequest, TaskID: taskID, Content: content}
}

// NewTaskResponse creates a task response message.
func NewTaskResponse(taskID string, result []byte, status TaskStatus) AgentMessage {
	return AgentMessage{Kind: MessageKindTaskResponse, TaskID: taskID, Result: result, Status: status}
}

// NewShutdownEvent creates the shutdown lifecycle event.
func NewShutdownEvent() AgentMessage {
	return AgentMessage{Kind: MessageKindEvent, Event: EventShutdown}
}

// NewCustomEvent creates a named application event.
func NewCustomEvent(name string, payload []byte) AgentMessage {
	return AgentMessage{Kind: MessageKindEvent, Event: EventCustom, EventName: name, Payload: payload}
}

// NewStreamMessage creates one chunk of a stream.
func NewStreamMessage(streamID string, sequence uint64, data []byte) AgentMessage {
	return AgentMessage{Kind: MessageKindStream, StreamID: streamID, Sequence: sequence, Data: data}
}

// NewStreamControl creates a stream control message.
func NewStreamControl(streamID string, cmd StreamCommand, metadata map[string]string) AgentMessage {
	return AgentMessage{Kind: MessageKindStreamControl, StreamID: streamID, Command: cmd, Metadata: metadata}
}

// NewStateSync creates a state replication message.
func NewStateSync(keys map[string][]byte) AgentMessage {
	return AgentMessage{Kind: MessageKindStateSync, Keys: keys}
}

// Priority derives the backpressure priority from the message kind. Shutdown
// events are critical; stream control and task responses are high; stream
// data is low; everything else is normal.
func (m AgentMessage) Priority() Priority {
	switch m.Kind {
	case MessageKindEvent:
		if m.Event == EventShutdown {
			return PriorityCritical
		}
		return PriorityNormal
	case MessageKindStreamControl, MessageKindTaskResponse:
		return PriorityHigh
	case MessageKindStream:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// agentMessageWire strips the codec methods so the CBOR encoder walks the
// struct fields instead of dispatching back to MarshalBinary.
type agentMessageWire AgentMessage

// MarshalBinary encodes the message as canonical CBOR.
func (m AgentMessage) MarshalBinary() ([]byte, error) {
	data, err := cborEncMode.Marshal(agentMessageWire(m))
	if err != nil {
		return nil, WrapError(KindDispatch, err, "encode %s message", m.Kind)
	}
	return data, nil
}

// UnmarshalAgentMessage decodes a CBOR agent message.
func UnmarshalAgentMessage(data []byte) (AgentMessage, error) {
	var m AgentMessage
	if err := cborDecMode.Unmarshal(data, &m); err != nil {
		return AgentMessage{}, WrapError(KindDispatch, err, "decode agent message")
	}
	return m, nil
}
