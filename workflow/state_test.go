package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mofa-org/mofa-go/core"
)

func TestValueCloneIsDeep(t *testing.T) {
	v := MapValue(map[string]Value{
		"items": ListValue(IntValue(1), IntValue(2)),
		"raw":   BytesValue([]byte{0xde, 0xad}),
	})
	clone := v.Clone()
	clone.Map["items"].List[0] = IntValue(99)
	clone.Map["raw"].Bytes[0] = 0x00

	assert.Equal(t, int64(1), v.Map["items"].List[0].Int)
	assert.Equal(t, byte(0xde), v.Map["raw"].Bytes[0])
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nulls equal", Null(), Value{}, true},
		{"kind mismatch", IntValue(1), StringValue("1"), false},
		{"equal lists", ListValue(IntValue(1)), ListValue(IntValue(1)), true},
		{"unequal lists", ListValue(IntValue(1)), ListValue(IntValue(2)), false},
		{
			"equal maps",
			MapValue(map[string]Value{"a": BoolValue(true)}),
			MapValue(map[string]Value{"a": BoolValue(true)}),
			true,
		},
		{
			"map key missing",
			MapValue(map[string]Value{"a": BoolValue(true)}),
			MapValue(map[string]Value{"b": BoolValue(true)}),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestStateSetBumpsVersion(t *testing.T) {
	s := NewState()
	assert.Equal(t, uint64(0), s.Version())

	s.Set("a", IntValue(1))
	s.Set("b", IntValue(2))
	assert.Equal(t, uint64(2), s.Version())
	assert.Equal(t, []string{"a", "b"}, s.Keys())
}

func TestStateApplySet(t *testing.T) {
	s := NewState()
	s.Set("k", IntValue(1))
	require.NoError(t, s.Apply(Set("k", StringValue("replaced"))))

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, StringValue("replaced"), v)
}

func TestStateApplyAppend(t *testing.T) {
	s := NewState()

	// Missing key starts a fresh list.
	require.NoError(t, s.Apply(Append("log", StringValue("first"))))
	// A non-list current value gets wrapped before appending.
	s.Set("scalar", IntValue(1))
	require.NoError(t, s.Apply(Append("scalar", IntValue(2))))
	require.NoError(t, s.Apply(Append("log", StringValue("second"))))

	v, _ := s.Get("log")
	require.Equal(t, KindList, v.Kind)
	assert.Len(t, v.List, 2)
	assert.Equal(t, "second", v.List[1].Str)

	wrapped, _ := s.Get("scalar")
	require.Equal(t, KindList, wrapped.Kind)
	assert.Equal(t, []Value{IntValue(1), IntValue(2)}, wrapped.List)
}

func TestStateApplyMerge(t *testing.T) {
	s := NewState()
	s.Set("cfg", MapValue(map[string]Value{"a": IntValue(1), "b": IntValue(2)}))

	require.NoError(t, s.Apply(Merge("cfg", MapValue(map[string]Value{"b": IntValue(20), "c": IntValue(3)}))))

	v, _ := s.Get("cfg")
	require.Equal(t, KindMap, v.Kind)
	assert.Equal(t, int64(1), v.Map["a"].Int)
	assert.Equal(t, int64(20), v.Map["b"].Int)
	assert.Equal(t, int64(3), v.Map["c"].Int)
}

func TestStateApplyMergeIntoMissingKey(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Apply(Merge("cfg", MapValue(map[string]Value{"a": IntValue(1)}))))

	v, _ := s.Get("cfg")
	assert.Equal(t, int64(1), v.Map["a"].Int)
}

func TestStateApplyMergeKindMismatch(t *testing.T) {
	s := NewState()
	s.Set("cfg", IntValue(1))

	err := s.Apply(Merge("cfg", MapValue(map[string]Value{"a": IntValue(1)})))
	require.Error(t, err)
	assert.Equal(t, core.KindExecution, core.KindOf(err))

	err = s.Apply(Merge("other", StringValue("not a map")))
	require.Error(t, err)
}

func TestStateApplyIncrement(t *testing.T) {
	s := NewState()

	// Missing key counts from zero.
	require.NoError(t, s.Apply(Increment("hits", IntValue(2))))
	require.NoError(t, s.Apply(Increment("hits", IntValue(3))))
	v, _ := s.Get("hits")
	assert.Equal(t, IntValue(5), v)

	// Mixed int and float widens to float.
	require.NoError(t, s.Apply(Increment("hits", FloatValue(0.5))))
	v, _ = s.Get("hits")
	require.Equal(t, KindFloat, v.Kind)
	assert.InDelta(t, 5.5, v.Float, 1e-9)
}

func TestStateApplyIncrementNonNumeric(t *testing.T) {
	s := NewState()
	s.Set("name", StringValue("mofa"))

	err := s.Apply(Increment("name", IntValue(1)))
	require.Error(t, err)
	assert.Equal(t, core.KindExecution, core.KindOf(err))
}

func TestStateApplyAllBumpsVersionPerUpdate(t *testing.T) {
	s := NewState()
	require.NoError(t, s.ApplyAll([]StateUpdate{
		Set("a", IntValue(1)),
		Increment("a", IntValue(1)),
		Append("log", StringValue("x")),
	}))
	assert.Equal(t, uint64(3), s.Version())
}
