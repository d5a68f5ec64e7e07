package webrtc

import (
	"errors"
	"fmt"
	"strings"

	pion "github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/JohanEM99/video-meet/internal/version"
)

// Data channel message types
const (
	MessageTypeMediaState = "media_state"
	MessageTypeDeviceInfo = "device_info"
)

var ErrChannelNotOpen = errors.New("data channel not open")

// Message represents all WebRTC data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MediaStatePayload announces whether the sender's audio and video are on
type MediaStatePayload struct {
	Audio bool `msgpack:"audio"`
	Video bool `msgpack:"video"`
}

// DeviceInfoPayload is sent by both sides once the channel opens
type DeviceInfoPayload struct {
	DeviceName    string `msgpack:"deviceName"`
	DeviceVersion string `msgpack:"deviceVersion"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// EncodeMessage builds and marshals a typed message for the data channel.
func EncodeMessage(t string, payload any) ([]byte, error) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return data, nil
}

// ParseMessage unmarshals a data channel frame.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

func sendTyped(dc *pion.DataChannel, t string, payload any) error {
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	data, err := EncodeMessage(t, payload)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func sendDeviceInfo(dc *pion.DataChannel) error {
	return sendTyped(dc, MessageTypeDeviceInfo, DeviceInfoPayload{
		DeviceName:    "meet-cli",
		DeviceVersion: strings.TrimPrefix(version.Version, "v"),
	})
}
