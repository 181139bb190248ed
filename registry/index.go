package registry

import (
	"sort"

	"github.com/mofa-org/mofa-go/core"
)

// capabilityIndex maps tags and reasoning strategies to agent ids for fast
// discovery. Callers hold the registry lock.
type capabilityIndex struct {
	byTag      map[string]map[string]struct{}
	byStrategy map[string]map[string]struct{}
}

func newCapabilityIndex() *capabilityIndex {
	return &capabilityIndex{
		byTag:      map[string]map[string]struct{}{},
		byStrategy: map[string]map[string]struct{}{},
	}
}

func (x *capabilityIndex) add(id string, caps core.AgentCapabilities) {
	for _, tag := range caps.Tags {
		if x.byTag[tag] == nil {
			x.byTag[tag] = map[string]struct{}{}
		}
		x.byTag[tag][id] = struct{}{}
	}
	for _, s := range caps.ReasoningStrategies {
		if x.byStrategy[s] == nil {
			x.byStrategy[s] = map[string]struct{}{}
		}
		x.byStrategy[s][id] = struct{}{}
	}
}

func (x *capabilityIndex) remove(id string) {
	for tag, ids := range x.byTag {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.byTag, tag)
		}
	}
	for s, ids := range x.byStrategy {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.byStrategy, s)
		}
	}
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (x *capabilityIndex) findByTag(tag string) []string {
	return sorted(x.byTag[tag])
}

// findByTags intersects the per-tag sets; an empty tag list matches nothing.
func (x *capabilityIndex) findByTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	result := map[string]struct{}{}
	for id := range x.byTag[tags[0]] {
		result[id] = struct{}{}
	}
	for _, tag := range tags[1:] {
		ids := x.byTag[tag]
		for id := range result {
			if _, ok := ids[id]; !ok {
				delete(result, id)
			}
		}
	}
	return sorted(result)
}

func (x *capabilityIndex) findByStrategy(strategy string) []string {
	return sorted(x.byStrategy[strategy])
}
