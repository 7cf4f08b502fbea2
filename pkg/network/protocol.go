// pkg/network/protocol.go
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// MessageType defines the type of network message
type MessageType byte

const (
	ConnectRequest MessageType = iota
	ConnectResponse
	DisconnectNotification
	GameStateUpdate
	PlaceLineRequest
	RemoveLineRequest
	MoveLineRequest
	CommandResult
	PingRequest
	PingResponse
)

var messageTypeNames = [...]string{
	"connect_request",
	"connect_response",
	"disconnect",
	"game_state",
	"place_line",
	"remove_line",
	"move_line",
	"command_result",
	"ping_request",
	"ping_response",
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("message_type(%d)", byte(t))
}

// Frames are a type byte, a big-endian uint16 payload length, then a
// msgpack payload.
const (
	headerSize   = 3
	MaxFrameSize = math.MaxUint16
)

var ErrFrameTooLarge = errors.New("message too large for frame")

// ConnectRequestData opens a session
type ConnectRequestData struct {
	PlayerName string `msgpack:"player_name"`
}

// ConnectResponseData answers a connect request
type ConnectResponseData struct {
	Success  bool           `msgpack:"success"`
	Error    string         `msgpack:"error,omitempty"`
	PlayerID entity.ID      `msgpack:"player_id"`
	ClientID entity.ID      `msgpack:"client_id"`
	Bounds   physics.Bounds `msgpack:"bounds"`
}

// PlaceLineData asks the server to add a line
type PlaceLineData struct {
	RequestID uint32           `msgpack:"request_id"`
	Start     physics.Vector2D `msgpack:"start"`
	End       physics.Vector2D `msgpack:"end"`
	Kind      physics.LineKind `msgpack:"kind"`
	Name      string           `msgpack:"name,omitempty"`
}

// RemoveLineData asks the server to delete one of the player's lines
type RemoveLineData struct {
	RequestID uint32    `msgpack:"request_id"`
	LineID    entity.ID `msgpack:"line_id"`
}

// MoveLineData asks the server to move one of the player's lines
type MoveLineData struct {
	RequestID uint32           `msgpack:"request_id"`
	LineID    entity.ID        `msgpack:"line_id"`
	Start     physics.Vector2D `msgpack:"start"`
	End       physics.Vector2D `msgpack:"end"`
}

// CommandResultData answers a line request
type CommandResultData struct {
	RequestID uint32    `msgpack:"request_id"`
	Success   bool      `msgpack:"success"`
	Error     string    `msgpack:"error,omitempty"`
	LineID    entity.ID `msgpack:"line_id,omitempty"`
}

// PingData carries the sender's clock, echoed back unchanged
type PingData struct {
	SentAt int64 `msgpack:"sent_at"` // unix nanoseconds
}

// EncodeMessage serializes msg into a complete frame
func EncodeMessage(msgType MessageType, msg interface{}) ([]byte, error) {
	var payload []byte
	if msg != nil {
		var err error
		payload, err = msgpack.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", msgType, err)
		}
	}
	return encodeFrame(msgType, payload)
}

// encodeFrame prefixes an encoded payload with its header
func encodeFrame(msgType MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFrameTooLarge, msgType, len(payload))
	}

	frame := make([]byte, headerSize+len(payload))
	frame[0] = byte(msgType)
	binary.BigEndian.PutUint16(frame[1:headerSize], uint16(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// WriteMessage encodes msg and writes it as one frame
func WriteMessage(w io.Writer, msgType MessageType, msg interface{}) error {
	frame, err := EncodeMessage(msgType, msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame and returns its type and raw payload
func ReadMessage(r io.Reader) (MessageType, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	data := make([]byte, binary.BigEndian.Uint16(header[1:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}

	return MessageType(header[0]), data, nil
}

// DecodeMessage unmarshals a payload read by ReadMessage
func DecodeMessage(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
