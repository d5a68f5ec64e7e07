package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	msg, err := New(TypeJoin, JoinPayload{RoomID: "abc123", UserID: "john"})
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join","payload":{"roomId":"abc123","userId":"john"}}`, string(raw))

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))

	var join JoinPayload
	require.NoError(t, back.Decode(&join))
	assert.Equal(t, "abc123", join.RoomID)
	assert.Equal(t, "john", join.UserID)
}

func TestStringPayloads(t *testing.T) {
	msg := MustNew(TypeUserJoined, "session-b")
	assert.Equal(t, `"session-b"`, string(msg.Payload))

	var id string
	require.NoError(t, msg.Decode(&id))
	assert.Equal(t, "session-b", id)
}

func TestDecodeEmptyPayload(t *testing.T) {
	msg := &Message{Type: TypeLeave}
	var roomID string
	assert.Error(t, msg.Decode(&roomID))
}

func TestSignalKind(t *testing.T) {
	assert.Equal(t, SignalOffer, SignalKind(json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	assert.Equal(t, SignalCandidate, SignalKind(json.RawMessage(`{"type":"candidate","candidate":{"candidate":"x"}}`)))
	assert.Equal(t, "", SignalKind(json.RawMessage(`not json`)))
}
