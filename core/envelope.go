package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// EnvelopeSchemaVersion is the current envelope schema version. Decoders
// reject envelopes carrying any other version.
const EnvelopeSchemaVersion = 1

// Envelope wraps every message that crosses a subsystem boundary. It carries
// identity, correlation and tracing metadata, delivery bookkeeping and the
// opaque payload. Envelopes are immutable after creation except for Attempt,
// which the bus or executor bumps on redelivery.
type Envelope struct {
	// MessageID is a time-ordered (v7) UUID, unique for the process lifetime.
	MessageID string `json:"message_id" cbor:"1,keyasint"`
	// CorrelationID links a request to its response, when set.
	CorrelationID string `json:"correlation_id,omitempty" cbor:"2,keyasint,omitempty"`
	// CausationID names the message that caused this one, when set.
	CausationID string `json:"causation_id,omitempty" cbor:"3,keyasint,omitempty"`
	// TraceID and SpanID carry distributed tracing context, when set.
	TraceID string `json:"trace_id,omitempty" cbor:"4,keyasint,omitempty"`
	SpanID  string `json:"span_id,omitempty" cbor:"5,keyasint,omitempty"`
	// SchemaVersion is always EnvelopeSchemaVersion for envelopes produced
	// by this process.
	SchemaVersion int `json:"schema_version" cbor:"6,keyasint"`
	// SenderID identifies the producing agent or subsystem.
	SenderID string `json:"sender_id" cbor:"7,keyasint"`
	// RecipientID addresses a specific agent for point-to-point delivery.
	RecipientID string `json:"recipient_id,omitempty" cbor:"8,keyasint,omitempty"`
	// Topic addresses a pub-sub topic.
	Topic string `json:"topic,omitempty" cbor:"9,keyasint,omitempty"`
	// TimestampMS is the creation time in unix milliseconds, UTC.
	TimestampMS int64 `json:"timestamp_ms" cbor:"10,keyasint"`
	// Attempt starts at 1 and increments on each redelivery.
	Attempt int `json:"attempt" cbor:"11,keyasint"`
	// TTLMillis bounds the envelope lifetime; zero means no expiry.
	TTLMillis int64 `json:"ttl_ms,omitempty" cbor:"12,keyasint,omitempty"`
	// Payload is opaque to the core; producers and consumers agree on its
	// encoding out of band.
	Payload []byte `json:"payload,omitempty" cbor:"13,keyasint,omitempty"`
	// Headers carry free-form string metadata, e.g. routing reasons.
	Headers map[string]string `json:"headers,omitempty" cbor:"14,keyasint,omitempty"`
	// MessageType names the application event this envelope carries; route
	// rules can match on it.
	MessageType string `json:"message_type,omitempty" cbor:"15,keyasint,omitempty"`
	// HopCount counts routing-node traversals; the message graph bounds it
	// by max hops.
	HopCount int `json:"hop_count,omitempty" cbor:"16,keyasint,omitempty"`
}

// NewEnvelope creates an envelope from the given sender with attempt 1, a
// fresh v7 message id and the current timestamp. V7 generation falls back to
// v4 only if the clock source fails, preserving uniqueness.
func NewEnvelope(senderID string, payload []byte) *Envelope {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Envelope{
		MessageID:     id.String(),
		SchemaVersion: EnvelopeSchemaVersion,
		SenderID:      senderID,
		TimestampMS:   time.Now().UnixMilli(),
		Attempt:       1,
		Payload:       payload,
	}
}

// WithRecipient sets the point-to-point recipient.
func (e *Envelope) WithRecipient(id string) *Envelope {
	e.RecipientID = id
	return e
}

// WithTopic sets the pub-sub topic.
func (e *Envelope) WithTopic(topic string) *Envelope {
	e.Topic = topic
	return e
}

// WithCorrelation sets the correlation id.
func (e *Envelope) WithCorrelation(id string) *Envelope {
	e.CorrelationID = id
	return e
}

// WithCausation sets the causation id.
func (e *Envelope) WithCausation(id string) *Envelope {
	e.CausationID = id
	return e
}

// WithTracing sets trace and span ids.
func (e *Envelope) WithTracing(traceID, spanID string) *Envelope {
	e.TraceID = traceID
	e.SpanID = spanID
	return e
}

// WithTTL bounds the envelope lifetime.
func (e *Envelope) WithTTL(ttl time.Duration) *Envelope {
	e.TTLMillis = ttl.Milliseconds()
	return e
}

// WithMessageType names the application event carried by this envelope.
func (e *Envelope) WithMessageType(t string) *Envelope {
	e.MessageType = t
	return e
}

// WithHeader sets a single header, allocating the map on first use.
func (e *Envelope) WithHeader(key, value string) *Envelope {
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	e.Headers[key] = value
	return e
}

// Header returns the header value and whether it is present.
func (e *Envelope) Header(key string) (string, bool) {
	v, ok := e.Headers[key]
	return v, ok
}

// IsExpired reports whether the TTL, if set, has elapsed at the given time.
func (e *Envelope) IsExpired(now time.Time) bool {
	if e.TTLMillis <= 0 {
		return false
	}
	return e.TimestampMS+e.TTLMillis < now.UnixMilli()
}

// IncrementAttempt bumps the redelivery counter.
func (e *Envelope) IncrementAttempt() { e.Attempt++ }

// Validate checks the envelope invariants: a message id, a sender, attempt
// at least 1 and the supported schema version.
func (e *Envelope) Validate() error {
	if e.MessageID == "" {
		return NewError(KindConfiguration, "envelope missing message_id")
	}
	if e.SenderID == "" {
		return NewError(KindConfiguration, "envelope missing sender_id")
	}
	if e.Attempt < 1 {
		return NewError(KindConfiguration, "envelope attempt %d below 1", e.Attempt)
	}
	if e.SchemaVersion != EnvelopeSchemaVersion {
		return NewError(KindConfiguration, "unsupported envelope schema_version %d", e.SchemaVersion)
	}
	return nil
}

// Clone returns a deep copy, including the header map and payload bytes.
func (e *Envelope) Clone() *Envelope {
	ne := *e
	if e.Headers != nil {
		ne.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			ne.Headers[k] = v
		}
	}
	if e.Payload != nil {
		ne.Payload = append([]byte(nil), e.Payload...)
	}
	return &ne
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	cborEncMode = em

	decOpts := cbor.DecOptions{}
	dm, err := decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
	cborDecMode = dm
}

// envelopeWire strips the codec methods so the CBOR encoder walks the
// struct fields instead of dispatching back to MarshalBinary.
type envelopeWire Envelope

// MarshalBinary encodes the envelope as canonical CBOR.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	data, err := cborEncMode.Marshal((*envelopeWire)(e))
	if err != nil {
		return nil, WrapError(KindDispatch, err, "encode envelope %s", e.MessageID)
	}
	return data, nil
}

// UnmarshalEnvelope decodes a CBOR envelope and validates it.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cborDecMode.Unmarshal(data, &e); err != nil {
		return nil, WrapError(KindDispatch, err, "decode envelope")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// EncodeFrame prefixes the CBOR encoding with a big-endian uint32 length for
// stream transports.
func (e *Envelope) EncodeFrame() ([]byte, error) {
	body, err := e.MarshalBinary()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// DecodeFrame reverses EncodeFrame, returning the envelope and the number of
// bytes consumed.
func DecodeFrame(data []byte) (*Envelope, int, error) {
	if len(data) < 4 {
		return nil, 0, NewError(KindDispatch, "frame shorter than length prefix")
	}
	n := int(binary.BigEndian.Uint32(data))
	if len(data) < 4+n {
		return nil, 0, NewError(KindDispatch, "frame truncated: want %d bytes, have %d", n, len(data)-4)
	}
	e, err := UnmarshalEnvelope(data[4 : 4+n])
	if err != nil {
		return nil, 0, err
	}
	return e, 4 + n, nil
}

// durableRecord is the JSON layout used for durable logs and replay.
type durableRecord struct {
	SchemaVersion int             `json:"schema_version"`
	Event         string          `json:"event"`
	Data          json.RawMessage `json:"data"`
}

// MarshalDurable encodes the envelope in the durable-log JSON layout
// {"schema_version", "event", "data"}.
func (e *Envelope) MarshalDurable() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, WrapError(KindDispatch, err, "encode durable envelope %s", e.MessageID)
	}
	return json.Marshal(durableRecord{SchemaVersion: EnvelopeSchemaVersion, Event: "message_envelope", Data: data})
}

// UnmarshalDurable decodes the durable-log JSON layout, rejecting unknown
// schema versions.
func UnmarshalDurable(data []byte) (*Envelope, error) {
	var rec durableRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, WrapError(KindDispatch, err, "decode durable record")
	}
	if rec.SchemaVersion != EnvelopeSchemaVersion {
		return nil, NewError(KindConfiguration, "unsupported schema_version %d", rec.SchemaVersion)
	}
	var e Envelope
	if err := json.Unmarshal(rec.Data, &e); err != nil {
		return nil, WrapError(KindDispatch, err, "decode durable envelope")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
