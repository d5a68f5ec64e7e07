package protocol

import "encoding/json"

// Signal kinds carried inside the opaque signal of a relayed message. The
// server never looks at them; only the two peers do.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalData is the shape of an offer, answer or trickled ICE candidate.
type SignalData struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// SignalKind reports the type field of an opaque signal, or "" when it cannot
// be read.
func SignalKind(raw json.RawMessage) string {
	var data SignalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	return data.Type
}
