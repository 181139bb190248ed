package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_NewDefaults(t *testing.T) {
	e := NewEnvelope("agent-a", []byte("hello"))

	assert.NotEmpty(t, e.MessageID)
	assert.Equal(t, "agent-a", e.SenderID)
	assert.Equal(t, EnvelopeSchemaVersion, e.SchemaVersion)
	assert.Equal(t, 1, e.Attempt)
	assert.NotZero(t, e.TimestampMS)
	assert.NoError(t, e.Validate())
}

func TestEnvelope_MessageIDsAreUniqueAndOrdered(t *testing.T) {
	a := NewEnvelope("s", nil)
	b := NewEnvelope("s", nil)

	assert.NotEqual(t, a.MessageID, b.MessageID)
	// v7 ids embed the timestamp in the leading bytes, so later ids sort after
	// earlier ones.
	assert.LessOrEqual(t, a.MessageID, b.MessageID)
}

func TestEnvelope_Builders(t *testing.T) {
	e := NewEnvelope("s", []byte("p")).
		WithRecipient("r").
		WithTopic("orders").
		WithCorrelation("corr-1").
		WithCausation("cause-1").
		WithTracing("trace-1", "span-1").
		WithTTL(5 * time.Second).
		WithHeader("k", "v")

	assert.Equal(t, "r", e.RecipientID)
	assert.Equal(t, "orders", e.Topic)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "cause-1", e.CausationID)
	assert.Equal(t, "trace-1", e.TraceID)
	assert.Equal(t, "span-1", e.SpanID)
	assert.Equal(t, int64(5000), e.TTLMillis)

	v, ok := e.Header("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestEnvelope_Expiry(t *testing.T) {
	e := NewEnvelope("s", nil).WithTTL(100 * time.Millisecond)

	assert.False(t, e.IsExpired(time.UnixMilli(e.TimestampMS)))
	assert.False(t, e.IsExpired(time.UnixMilli(e.TimestampMS+100)))
	assert.True(t, e.IsExpired(time.UnixMilli(e.TimestampMS+101)))

	// No TTL means never expired.
	forever := NewEnvelope("s", nil)
	assert.False(t, forever.IsExpired(time.Now().Add(24*time.Hour)))
}

func TestEnvelope_IncrementAttempt(t *testing.T) {
	e := NewEnvelope("s", nil)
	e.IncrementAttempt()
	e.IncrementAttempt()
	assert.Equal(t, 3, e.Attempt)
}

func TestEnvelope_ValidateRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"missing message id", func(e *Envelope) { e.MessageID = "" }},
		{"missing sender", func(e *Envelope) { e.SenderID = "" }},
		{"attempt below one", func(e *Envelope) { e.Attempt = 0 }},
		{"unknown schema version", func(e *Envelope) { e.SchemaVersion = 99 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnvelope("s", nil)
			tt.mutate(e)
			err := e.Validate()
			require.Error(t, err)
			assert.Equal(t, KindConfiguration, KindOf(err))
		})
	}
}

func TestEnvelope_BinaryRoundTrip(t *testing.T) {
	e := NewEnvelope("agent-a", []byte{0x01, 0x02, 0x03}).
		WithRecipient("agent-b").
		WithTopic("t").
		WithCorrelation("c").
		WithTTL(time.Second).
		WithHeader("x", "y")

	data, err := e.MarshalBinary()
	require.NoError(t, err)
	// Major type 5: the envelope encodes as a CBOR map of its fields, not
	// as a byte string re-entering the binary marshaler.
	require.Equal(t, byte(5), data[0]>>5)

	got, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestEnvelope_FrameRoundTrip(t *testing.T) {
	e := NewEnvelope("agent-a", []byte("payload"))

	frame, err := e.EncodeFrame()
	require.NoError(t, err)

	got, n, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, e, got)
}

func TestEnvelope_DecodeFrameRejectsTruncation(t *testing.T) {
	e := NewEnvelope("agent-a", []byte("payload"))
	frame, err := e.EncodeFrame()
	require.NoError(t, err)

	_, _, err = DecodeFrame(frame[:2])
	assert.Error(t, err)

	_, _, err = DecodeFrame(frame[:len(frame)-1])
	assert.Error(t, err)
}

func TestEnvelope_DurableRoundTrip(t *testing.T) {
	e := NewEnvelope("agent-a", []byte("payload")).WithHeader("h", "v")

	data, err := e.MarshalDurable()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version":1`)
	assert.Contains(t, string(data), `"event":"message_envelope"`)

	got, err := UnmarshalDurable(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestEnvelope_DurableRejectsUnknownSchemaVersion(t *testing.T) {
	_, err := UnmarshalDurable([]byte(`{"schema_version":2,"event":"message_envelope","data":{}}`))
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestEnvelope_Clone(t *testing.T) {
	e := NewEnvelope("s", []byte("p")).WithHeader("k", "v")
	c := e.Clone()

	c.Headers["k"] = "changed"
	c.Payload[0] = 'x'

	assert.Equal(t, "v", e.Headers["k"])
	assert.Equal(t, byte('p'), e.Payload[0])
}
