package workflow

import (
	"sort"
	"sync"

	"github.com/mofa-org/mofa-go/core"
)

// UpdateOp selects how a StateUpdate combines with the current value.
type UpdateOp string

const (
	// OpSet replaces the current value.
	OpSet UpdateOp = "set"
	// OpAppend appends to a list, wrapping a non-list current value.
	OpAppend UpdateOp = "append"
	// OpMerge shallow-merges two maps; the update wins on key conflicts.
	OpMerge UpdateOp = "merge"
	// OpIncrement adds a numeric update to a numeric current value.
	OpIncrement UpdateOp = "increment"
)

// StateUpdate is one keyed mutation of workflow state.
type StateUpdate struct {
	Key   string   `json:"key" cbor:"1,keyasint"`
	Value Value    `json:"value" cbor:"2,keyasint"`
	Op    UpdateOp `json:"op" cbor:"3,keyasint"`
}

// Set builds a replace update.
func Set(key string, value Value) StateUpdate {
	return StateUpdate{Key: key, Value: value, Op: OpSet}
}

// Append builds a list-append update.
func Append(key string, value Value) StateUpdate {
	return StateUpdate{Key: key, Value: value, Op: OpAppend}
}

// Merge builds a map-merge update.
func Merge(key string, value Value) StateUpdate {
	return StateUpdate{Key: key, Value: value, Op: OpMerge}
}

// Increment builds a numeric-add update.
func Increment(key string, value Value) StateUpdate {
	return StateUpdate{Key: key, Value: value, Op: OpIncrement}
}

// State is the versioned key-value store a workflow execution mutates. Every
// successful update bumps the version. Safe for concurrent use; parallel
// branches share one State.
type State struct {
	mu      sync.RWMutex
	version uint64
	values  map[string]Value
}

// NewState creates an empty state.
func NewState() *State {
	return &State{values: map[string]Value{}}
}

// stateFromValues builds state from an existing map, used when rehydrating
// a snapshot.
func stateFromValues(version uint64, values map[string]Value) *State {
	m := make(map[string]Value, len(values))
	for k, v := range values {
		m[k] = v.Clone()
	}
	return &State{version: version, values: m}
}

// Get returns the value for a key.
func (s *State) Get(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set replaces the value for a key.
func (s *State) Set(key string, value Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value.Clone()
	s.version++
}

// Version returns the number of applied updates.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Keys returns the state's keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a deep copy of the state map.
func (s *State) Values() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v.Clone()
	}
	return out
}

// Apply merges one update into the state per its op.
func (s *State) Apply(update StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.values[update.Key]
	next, err := reduce(current, exists, update)
	if err != nil {
		return err
	}
	s.values[update.Key] = next
	s.version++
	return nil
}

// ApplyAll applies updates in order, stopping at the first failure.
func (s *State) ApplyAll(updates []StateUpdate) error {
	for _, u := range updates {
		if err := s.Apply(u); err != nil {
			return err
		}
	}
	return nil
}

// reduce computes the new value for one update against the current value.
func reduce(current Value, exists bool, update StateUpdate) (Value, error) {
	switch update.Op {
	case OpSet, "":
		return update.Value.Clone(), nil

	case OpAppend:
		var list []Value
		if exists {
			if items, ok := current.AsList(); ok {
				list = append(list, items...)
			} else if !current.IsNull() {
				list = append(list, current)
			}
		}
		list = append(list, update.Value.Clone())
		return ListValue(list...), nil

	case OpMerge:
		um, uok := update.Value.AsMap()
		if !uok {
			return Value{}, core.NewError(core.KindExecution, "merge update for %q is %s, want map", update.Key, update.Value.Kind)
		}
		if !exists || current.IsNull() {
			return update.Value.Clone(), nil
		}
		cm, cok := current.AsMap()
		if !cok {
			return Value{}, core.NewError(core.KindExecution, "merge target %q is %s, want map", update.Key, current.Kind)
		}
		merged := make(map[string]Value, len(cm)+len(um))
		for k, v := range cm {
			merged[k] = v.Clone()
		}
		for k, v := range um {
			merged[k] = v.Clone()
		}
		return MapValue(merged), nil

	case OpIncrement:
		if !exists || current.IsNull() {
			current = IntValue(0)
		}
		if ci, ok := current.AsInt(); ok {
			if ui, ok := update.Value.AsInt(); ok {
				return IntValue(ci + ui), nil
			}
		}
		cf, cok := current.AsFloat()
		uf, uok := update.Value.AsFloat()
		if !cok || !uok {
			return Value{}, core.NewError(core.KindExecution, "increment on %q: %s + %s is not numeric", update.Key, current.Kind, update.Value.Kind)
		}
		return FloatValue(cf + uf), nil

	default:
		return Value{}, core.NewError(core.KindExecution, "unknown state op %q", update.Op)
	}
}
