package network

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/opd-ai/gravity-beats/pkg/physics"
)

func TestWriteReadMessage(t *testing.T) {
	var buf bytes.Buffer
	sent := PlaceLineData{
		RequestID: 7,
		Start:     physics.Vector2D{X: 1, Y: 2},
		End:       physics.Vector2D{X: 30, Y: 2},
		Kind:      physics.OneWay,
		Name:      "kick",
	}

	if err := WriteMessage(&buf, PlaceLineRequest, sent); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if got := buf.Bytes()[0]; got != byte(PlaceLineRequest) {
		t.Errorf("type byte = %d, expected %d", got, PlaceLineRequest)
	}

	msgType, data, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if msgType != PlaceLineRequest {
		t.Errorf("ReadMessage() type = %s, expected %s", msgType, PlaceLineRequest)
	}

	var got PlaceLineData
	if err := DecodeMessage(data, &got); err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if got != sent {
		t.Errorf("DecodeMessage() = %+v, expected %+v", got, sent)
	}
}

func TestEncodeMessage_NilPayload(t *testing.T) {
	frame, err := EncodeMessage(DisconnectNotification, nil)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	if !bytes.Equal(frame, []byte{byte(DisconnectNotification), 0, 0}) {
		t.Errorf("EncodeMessage() = %v, expected an empty frame", frame)
	}
}

func TestEncodeMessage_TooLarge(t *testing.T) {
	_, err := EncodeMessage(ConnectRequest, ConnectRequestData{PlayerName: strings.Repeat("x", MaxFrameSize)})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("EncodeMessage() error = %v, expected %v", err, ErrFrameTooLarge)
	}
}

func TestReadMessage_Truncated(t *testing.T) {
	frame, _ := EncodeMessage(PingRequest, PingData{SentAt: 99})

	_, _, err := ReadMessage(bytes.NewReader(frame[:len(frame)-1]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadMessage() error = %v, expected %v", err, io.ErrUnexpectedEOF)
	}

	_, _, err = ReadMessage(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Errorf("ReadMessage(empty) error = %v, expected %v", err, io.EOF)
	}
}

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		msgType MessageType
		want    string
	}{
		{ConnectRequest, "connect_request"},
		{GameStateUpdate, "game_state"},
		{PingResponse, "ping_response"},
		{MessageType(200), "message_type(200)"},
	}

	for _, tt := range tests {
		if got := tt.msgType.String(); got != tt.want {
			t.Errorf("String() = %q, expected %q", got, tt.want)
		}
	}
}
