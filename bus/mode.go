package bus

import (
	"strings"

	"github.com/mofa-org/mofa-go/core"
)

// ModeKind discriminates the three communication modes.
type ModeKind int

const (
	// ModePointToPoint addresses one recipient.
	ModePointToPoint ModeKind = iota
	// ModeBroadcast reaches every broadcast subscriber.
	ModeBroadcast
	// ModePubSub reaches the subscribers of one topic.
	ModePubSub
)

// String returns the string representation of the mode kind.
func (k ModeKind) String() string {
	switch k {
	case ModePointToPoint:
		return "p2p"
	case ModeBroadcast:
		return "broadcast"
	case ModePubSub:
		return "pubsub"
	default:
		return "unknown"
	}
}

// ChannelMode identifies a communication mode. It is comparable and used as
// a map key: Party holds the peer agent id for point-to-point and the topic
// for pub-sub; it is empty for broadcast.
type ChannelMode struct {
	Kind  ModeKind
	Party string
}

// PointToPoint addresses the given peer. On send the party is the recipient;
// on register and receive it names the expected sender.
func PointToPoint(peer string) ChannelMode {
	return ChannelMode{Kind: ModePointToPoint, Party: peer}
}

// Broadcast addresses every broadcast subscriber.
func Broadcast() ChannelMode {
	return ChannelMode{Kind: ModeBroadcast}
}

// PubSub addresses the subscribers of a topic.
func PubSub(topic string) ChannelMode {
	return ChannelMode{Kind: ModePubSub, Party: topic}
}

// String renders the mode as "kind" or "kind:party".
func (m ChannelMode) String() string {
	if m.Party == "" {
		return m.Kind.String()
	}
	return m.Kind.String() + ":" + m.Party
}

// ParseChannelMode parses the String form back into a mode. Used by the
// config layer for override keys.
func ParseChannelMode(s string) (ChannelMode, error) {
	kind, party, _ := strings.Cut(s, ":")
	switch kind {
	case "p2p":
		if party == "" {
			return ChannelMode{}, core.NewError(core.KindConfiguration, "p2p mode requires a peer: %q", s)
		}
		return PointToPoint(party), nil
	case "broadcast":
		if party != "" {
			return ChannelMode{}, core.NewError(core.KindConfiguration, "broadcast mode takes no party: %q", s)
		}
		return Broadcast(), nil
	case "pubsub":
		if party == "" {
			return ChannelMode{}, core.NewError(core.KindConfiguration, "pubsub mode requires a topic: %q", s)
		}
		return PubSub(party), nil
	default:
		return ChannelMode{}, core.NewError(core.KindConfiguration, "unknown channel mode %q", s)
	}
}
