package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"telecare/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Authorizer decides whether two identities may exchange call offers.
// The hub drops unauthorized offers without notifying the sender, so a
// stranger cannot probe which identities are online.
type Authorizer interface {
	UsersConnected(ctx context.Context, userA, userB string) (bool, error)
}

// Hub is the signaling relay: it maps registered identities to live
// websocket sessions and forwards call-lifecycle events between them.
// A single hub instance serves the whole deployment.
type Hub struct {
	auth Authorizer

	mu       sync.Mutex
	byUser   map[string]*hubSession
	bySocket map[string]*hubSession

	upgrader websocket.Upgrader
}

type hubSession struct {
	id     string
	userID string
	conn   *websocket.Conn

	writeMu sync.Mutex
}

// NewHub constructs a Hub. auth may be nil, in which case offers are
// forwarded without a connection check (client-side filtering still
// applies at the receiving session).
func NewHub(auth Authorizer) *Hub {
	return &Hub{
		auth:     auth,
		byUser:   make(map[string]*hubSession),
		bySocket: make(map[string]*hubSession),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and runs the session's read loop until the
// peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := logger.For("signal.hub")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	s := &hubSession{id: uuid.NewString(), conn: conn}

	h.mu.Lock()
	h.bySocket[s.id] = s
	h.mu.Unlock()

	defer h.drop(s)

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("read loop ended")
			}
			return
		}
		h.dispatch(r.Context(), s, env)
	}
}

func (h *Hub) dispatch(ctx context.Context, s *hubSession, env Envelope) {
	log := logger.For("signal.hub").WithField("socket", s.id)
	switch env.Event {
	case EventRegister:
		var p RegisterPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.UserID == "" {
			log.Warn("bad register payload")
			return
		}
		h.register(s, p)

	case EventCallUser:
		var p CallUserPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn("bad call-user payload")
			return
		}
		h.forwardOffer(ctx, s, p)

	case EventAnswerCall:
		var p AnswerCallPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.sendTo(p.TargetSocketID, EventCallAnswered, CallAnsweredPayload{Answer: p.Answer})

	case EventICECandidate:
		var p ICECandidatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.sendTo(p.TargetSocketID, EventICECandidate, ICECandidatePayload{Candidate: p.Candidate})

	case EventCallDeclined:
		var p TargetPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.sendTo(p.TargetSocketID, EventCallDeclined, nil)

	case EventEndCall:
		var p TargetPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.sendTo(p.TargetSocketID, EventEndCall, nil)

	default:
		log.WithField("event", env.Event).Debug("unknown event dropped")
	}
}

// register binds a user identity to this session. A re-registration from a
// newer session for the same identity displaces the older binding.
func (h *Hub) register(s *hubSession, p RegisterPayload) {
	h.mu.Lock()
	s.userID = p.UserID
	h.byUser[p.UserID] = s
	h.mu.Unlock()
	logger.For("signal.hub").WithFields(map[string]any{
		"user_id": p.UserID,
		"role":    p.Role,
		"socket":  s.id,
	}).Info("identity registered")
}

// forwardOffer relays a call offer as incoming-call. Offers between
// identities with no connected relationship are dropped silently.
func (h *Hub) forwardOffer(ctx context.Context, from *hubSession, p CallUserPayload) {
	if from.userID == "" {
		return
	}
	if h.auth != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok, err := h.auth.UsersConnected(checkCtx, from.userID, p.TargetPatientID)
		cancel()
		if err != nil {
			logger.For("signal.hub").WithError(err).Warn("authorization check failed, dropping offer")
			return
		}
		if !ok {
			return
		}
	}
	h.sendTo(p.TargetPatientID, EventIncomingCall, IncomingCallPayload{
		Offer:           p.Offer,
		From:            from.id,
		TargetPatientID: p.TargetPatientID,
	})
}

// sendTo delivers an event to a target addressed by transport-session id or
// registered user id. Unknown targets are a silent no-op; delivery is not
// guaranteed.
func (h *Hub) sendTo(target string, event Event, payload any) {
	h.mu.Lock()
	s, ok := h.bySocket[target]
	if !ok {
		s, ok = h.byUser[target]
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	err = s.conn.WriteJSON(env)
	s.writeMu.Unlock()
	if err != nil {
		logger.For("signal.hub").WithError(err).WithField("socket", s.id).Debug("write failed")
	}
}

func (h *Hub) drop(s *hubSession) {
	h.mu.Lock()
	delete(h.bySocket, s.id)
	if s.userID != "" && h.byUser[s.userID] == s {
		delete(h.byUser, s.userID)
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}
