package signal

import (
	"encoding/json"

	"telecare/pkg"
)

// Event names the call-lifecycle messages exchanged with the relay.
type Event string

const (
	EventRegister     Event = "register"
	EventCallUser     Event = "call-user"
	EventIncomingCall Event = "incoming-call"
	EventAnswerCall   Event = "answer-call"
	EventCallAnswered Event = "call-answered"
	EventICECandidate Event = "ice-candidate"
	EventCallDeclined Event = "call-declined"
	EventEndCall      Event = "end-call"
)

// Envelope is the websocket wire frame: an event name plus its payload.
// Session descriptions and ICE candidates travel as opaque JSON; the relay
// never inspects them.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope.
func NewEnvelope(event Event, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// RegisterPayload announces a logical identity on a fresh connection.
// It is re-sent on every reconnect; the relay maps userId to the live
// transport session, last registration winning.
type RegisterPayload struct {
	UserID string   `json:"userId"`
	Role   pkg.Role `json:"role"`
}

// CallUserPayload carries a caller's offer toward a target identity.
type CallUserPayload struct {
	TargetPatientID string          `json:"targetPatientId"`
	Offer           json.RawMessage `json:"offer"`
}

// IncomingCallPayload is the relay's delivery of an offer to the callee.
// From is the caller's transport-session id, usable as a reply target.
type IncomingCallPayload struct {
	Offer           json.RawMessage `json:"offer"`
	From            string          `json:"from"`
	TargetPatientID string          `json:"targetPatientId"`
}

// AnswerCallPayload returns the callee's answer toward the caller.
type AnswerCallPayload struct {
	TargetSocketID string          `json:"targetSocketId"`
	Answer         json.RawMessage `json:"answer"`
}

// CallAnsweredPayload is the relay's delivery of the answer to the caller.
type CallAnsweredPayload struct {
	Answer json.RawMessage `json:"answer"`
}

// ICECandidatePayload carries one ICE candidate. TargetSocketID is set on
// the sending side and stripped by the relay on delivery. The target may be
// a transport-session id or a registered user id.
type ICECandidatePayload struct {
	TargetSocketID string          `json:"targetSocketId,omitempty"`
	Candidate      json.RawMessage `json:"candidate"`
}

// TargetPayload addresses an event (decline, end-call) at a peer.
type TargetPayload struct {
	TargetSocketID string `json:"targetSocketId"`
}
