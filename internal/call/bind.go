package call

import (
	"context"
	"encoding/json"

	"telecare/internal/logger"
	"telecare/internal/signal"
)

// BindRelay routes the relay client's call events into the session. It must
// run before the client connects so no early event is missed.
func BindRelay(client *signal.Client, session *Session) {
	log := logger.For("call.bind")

	client.On(signal.EventIncomingCall, func(data json.RawMessage) {
		var p signal.IncomingCallPayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.WithError(err).Warn("bad incoming-call payload")
			return
		}
		session.HandleIncomingCall(context.Background(), p)
	})
	client.On(signal.EventCallAnswered, func(data json.RawMessage) {
		var p signal.CallAnsweredPayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.WithError(err).Warn("bad call-answered payload")
			return
		}
		session.HandleCallAnswered(p)
	})
	client.On(signal.EventICECandidate, func(data json.RawMessage) {
		var p signal.ICECandidatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.WithError(err).Warn("bad ice-candidate payload")
			return
		}
		session.HandleRemoteICE(p)
	})
	client.On(signal.EventCallDeclined, func(json.RawMessage) {
		session.HandleCallDeclined()
	})
	client.On(signal.EventEndCall, func(json.RawMessage) {
		session.HandleEndCall()
	})
}
