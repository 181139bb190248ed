package bus

import (
	"encoding/binary"

	"github.com/mofa-org/mofa-go/core"
)

// encodeFrame serialises an agent message as length-prefixed CBOR, the wire
// form every channel carries.
func encodeFrame(msg core.AgentMessage) ([]byte, error) {
	body, err := msg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// decodeFrame reverses encodeFrame.
func decodeFrame(frame []byte) (core.AgentMessage, error) {
	if len(frame) < 4 {
		return core.AgentMessage{}, core.NewError(core.KindDispatch, "frame shorter than length prefix")
	}
	n := int(binary.BigEndian.Uint32(frame))
	if len(frame) < 4+n {
		return core.AgentMessage{}, core.NewError(core.KindDispatch, "frame truncated: want %d bytes, have %d", n, len(frame)-4)
	}
	return core.UnmarshalAgentMessage(frame[4 : 4+n])
}
