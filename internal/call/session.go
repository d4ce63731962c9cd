package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"telecare/internal/logger"
	"telecare/internal/signal"

	"github.com/pion/webrtc/v3"
)

// State is the call session's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateIncomingRinging
	StateNegotiating
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIncomingRinging:
		return "ringing"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Relay is the slice of the signaling client the session emits through.
type Relay interface {
	Send(event signal.Event, payload any) error
}

// MediaSource is the local media stream: acquired when a call is accepted
// or placed, released on hangup. Acquisition failure fails the call.
type MediaSource interface {
	Track() webrtc.TrackLocal
	Close() error
}

// MediaFactory acquires the local media device.
type MediaFactory func() (MediaSource, error)

// ConnectionGate answers whether this identity has any connected doctor
// relationship. Incoming calls are surfaced only when it does; this check
// runs over already-fetched connection data, it is not a relay guarantee.
type ConnectionGate interface {
	HasConnectedPeer(ctx context.Context, userID string) (bool, error)
}

// ErrBadState is returned when an operation is invoked outside the state
// it is legal in.
var ErrBadState = errors.New("operation not valid in current call state")

// errCallEnded signals that the call was torn down while an accept or dial
// was still acquiring resources; the attempt is abandoned, not failed.
var errCallEnded = errors.New("call ended before setup completed")

// Session is the per-process call session state machine. At most one call
// is live at a time; a second incoming offer while busy is answered with
// call-declined and the current call is untouched.
//
// Happy paths:
//
//	callee: Idle -> IncomingRinging -> Negotiating -> Connected -> Idle
//	caller: Idle -> Negotiating -> Connected -> Idle
//
// Any negotiation error routes through Failed back to Idle.
type Session struct {
	selfID   string
	relay    Relay
	newPeer  PeerFactory
	newMedia MediaFactory
	gate     ConnectionGate

	// OnStateChange, when set, observes every transition. Called outside
	// the session lock.
	OnStateChange func(State)

	mu    sync.Mutex
	state State
	// gen identifies the current call attempt. It advances when a ring
	// starts and when a call is torn down, so work still in flight for an
	// ended call (media acquisition, peer setup, ICE flushes) can detect
	// that it has been superseded and abandon instead of committing.
	gen         uint64
	offer       *webrtc.SessionDescription
	peerTarget  string // socket or user id the far side is reachable at
	pendingICE  []webrtc.ICECandidateInit
	iceReady    bool // remote description applied; candidates may flow
	peer        PeerConn
	media       MediaSource
	remoteTrack *webrtc.TrackRemote
	lastErr     error
}

// NewSession builds an idle session for the given identity.
func NewSession(selfID string, relay Relay, peers PeerFactory, media MediaFactory, gate ConnectionGate) *Session {
	return &Session{
		selfID:   selfID,
		relay:    relay,
		newPeer:  peers,
		newMedia: media,
		gate:     gate,
		state:    StateIdle,
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError reports why the most recent call failed, if it did.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RemoteTrack returns the far side's media track once negotiation has
// produced one.
func (s *Session) RemoteTrack() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTrack
}

// HandleIncomingCall processes an offer delivered by the relay. Offers not
// addressed to this identity, or arriving while this identity has no
// connected doctor relationship, are dropped without a trace. A second
// offer while a call is live is answered busy.
func (s *Session) HandleIncomingCall(ctx context.Context, p signal.IncomingCallPayload) {
	log := logger.For("call.session")
	if p.TargetPatientID != s.selfID {
		return
	}
	if s.gate != nil {
		ok, err := s.gate.HasConnectedPeer(ctx, s.selfID)
		if err != nil || !ok {
			return
		}
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		// Busy: decline the second caller, keep the live call untouched.
		_ = s.relay.Send(signal.EventCallDeclined, signal.TargetPayload{TargetSocketID: p.From})
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(p.Offer, &offer); err != nil {
		s.mu.Unlock()
		log.WithError(err).Warn("undecodable offer dropped")
		return
	}
	s.gen++
	s.offer = &offer
	s.peerTarget = p.From
	s.setStateLocked(StateIncomingRinging)
	s.mu.Unlock()
	s.notifyState(StateIncomingRinging)
}

// HandleRemoteICE applies a candidate from the far side, buffering it when
// the peer connection does not exist yet. Buffered candidates are flushed
// in arrival order.
func (s *Session) HandleRemoteICE(p signal.ICECandidatePayload) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
		logger.For("call.session").WithError(err).Warn("undecodable ICE candidate dropped")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil || !s.iceReady {
		s.pendingICE = append(s.pendingICE, candidate)
		return
	}
	if err := s.peer.AddICECandidate(candidate); err != nil {
		logger.For("call.session").WithError(err).Warn("adding ICE candidate failed")
	}
}

// Accept answers the ringing call: acquire media, build the peer
// connection, apply the stored offer, answer, and flush buffered
// candidates. A media or negotiation failure fails the call. If the call is
// torn down while acquisition is in flight (remote end-call, hangup), the
// half-built resources are released and the session is left untouched.
func (s *Session) Accept(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIncomingRinging {
		s.mu.Unlock()
		return ErrBadState
	}
	offer := *s.offer
	target := s.peerTarget
	gen := s.gen
	s.mu.Unlock()

	media, err := s.newMedia()
	if err != nil {
		err = fmt.Errorf("media acquisition failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	peer, err := s.setupPeer(gen, media, target)
	if err != nil {
		_ = media.Close()
		if !errors.Is(err, errCallEnded) {
			s.failCall(gen, err)
		}
		return err
	}

	if err := peer.SetRemoteDescription(offer); err != nil {
		err = fmt.Errorf("setting remote offer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		err = fmt.Errorf("creating answer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		err = fmt.Errorf("setting local answer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		s.failCall(gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Torn down after the peer was committed; reset released it.
		s.mu.Unlock()
		return errCallEnded
	}
	s.offer = nil
	s.setStateLocked(StateNegotiating)
	s.mu.Unlock()

	if err := s.relay.Send(signal.EventAnswerCall, signal.AnswerCallPayload{
		TargetSocketID: target,
		Answer:         answerJSON,
	}); err != nil {
		err = fmt.Errorf("sending answer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	s.notifyState(StateNegotiating)

	s.flushPendingICE(gen)
	return nil
}

// Decline refuses the ringing call. Nothing was acquired yet, so nothing
// is released.
func (s *Session) Decline() error {
	s.mu.Lock()
	if s.state != StateIncomingRinging {
		s.mu.Unlock()
		return ErrBadState
	}
	target := s.peerTarget
	s.gen++
	s.offer = nil
	s.peerTarget = ""
	s.pendingICE = nil
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	_ = s.relay.Send(signal.EventCallDeclined, signal.TargetPayload{TargetSocketID: target})
	s.notifyState(StateIdle)
	return nil
}

// Call places an outgoing call to the target identity: acquire media,
// create an offer, and relay it. The session stays Negotiating until the
// answer arrives and ICE confirms connectivity. If a call rings in while
// acquisition is in flight, the dial is abandoned and the ring wins.
func (s *Session) Call(ctx context.Context, targetID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBadState
	}
	gen := s.gen
	s.mu.Unlock()

	media, err := s.newMedia()
	if err != nil {
		err = fmt.Errorf("media acquisition failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	peer, err := s.setupPeer(gen, media, targetID)
	if err != nil {
		_ = media.Close()
		if !errors.Is(err, errCallEnded) {
			s.failCall(gen, err)
		}
		return err
	}

	offer, err := peer.CreateOffer(nil)
	if err != nil {
		err = fmt.Errorf("creating offer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		err = fmt.Errorf("setting local offer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		s.failCall(gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return errCallEnded
	}
	s.setStateLocked(StateNegotiating)
	s.mu.Unlock()

	if err := s.relay.Send(signal.EventCallUser, signal.CallUserPayload{
		TargetPatientID: targetID,
		Offer:           offerJSON,
	}); err != nil {
		err = fmt.Errorf("sending offer failed: %w", err)
		s.failCall(gen, err)
		return err
	}
	s.notifyState(StateNegotiating)
	return nil
}

// HandleCallAnswered applies the callee's answer on the caller side.
func (s *Session) HandleCallAnswered(p signal.CallAnsweredPayload) {
	s.mu.Lock()
	if s.state != StateNegotiating || s.peer == nil {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	gen := s.gen
	s.mu.Unlock()

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(p.Answer, &answer); err != nil {
		s.failCall(gen, fmt.Errorf("undecodable answer: %w", err))
		return
	}
	if err := peer.SetRemoteDescription(answer); err != nil {
		s.failCall(gen, fmt.Errorf("setting remote answer failed: %w", err))
		return
	}
	s.flushPendingICE(gen)
}

// HandleCallDeclined tears the pending call down after the far side
// refused it.
func (s *Session) HandleCallDeclined() {
	s.reset(false)
}

// HandleEndCall tears the call down after the far side hung up.
func (s *Session) HandleEndCall() {
	s.reset(false)
}

// Hangup ends the call unilaterally from any state, notifying the peer.
// Ending an already-ended call is a no-op.
func (s *Session) Hangup() {
	s.reset(true)
}

// setupPeer wires a fresh peer connection: local track attached, ICE
// candidates forwarded to the far side, connectivity transitions observed.
// The commit is guarded by gen: when the call attempt has been superseded,
// the new connection is closed and errCallEnded returned.
func (s *Session) setupPeer(gen uint64, media MediaSource, target string) (PeerConn, error) {
	peer, err := s.newPeer()
	if err != nil {
		return nil, fmt.Errorf("creating peer connection failed: %w", err)
	}
	if _, err := peer.AddTrack(media.Track()); err != nil {
		_ = peer.Close()
		return nil, fmt.Errorf("attaching local track failed: %w", err)
	}

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidateJSON, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		_ = s.relay.Send(signal.EventICECandidate, signal.ICECandidatePayload{
			TargetSocketID: target,
			Candidate:      candidateJSON,
		})
	})
	peer.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected:
			s.mu.Lock()
			if s.gen != gen || s.state != StateNegotiating {
				s.mu.Unlock()
				return
			}
			s.setStateLocked(StateConnected)
			s.mu.Unlock()
			s.notifyState(StateConnected)
		case webrtc.ICEConnectionStateFailed:
			s.failCall(gen, errors.New("ICE negotiation failed"))
		}
	})
	peer.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.mu.Lock()
		if s.gen == gen {
			s.remoteTrack = track
		}
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = peer.Close()
		return nil, errCallEnded
	}
	s.peer = peer
	s.media = media
	s.peerTarget = target
	s.mu.Unlock()
	return peer, nil
}

// flushPendingICE applies everything buffered so far, in original receipt
// order, then opens the direct candidate path. Candidates arriving while a
// batch is being applied keep buffering (iceReady stays false) and are
// drained on the next pass, so nothing overtakes an older candidate. Called
// once the remote description is in place.
func (s *Session) flushPendingICE(gen uint64) {
	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		if s.peer == nil || len(s.pendingICE) == 0 {
			s.iceReady = s.peer != nil
			s.mu.Unlock()
			return
		}
		peer := s.peer
		batch := s.pendingICE
		s.pendingICE = nil
		s.mu.Unlock()

		for _, c := range batch {
			if err := peer.AddICECandidate(c); err != nil {
				logger.For("call.session").WithError(err).Warn("flushing ICE candidate failed")
			}
		}
	}
}

// failCall records the error for the given call attempt, passes through
// Failed, releases everything and settles back in Idle. A stale attempt
// (superseded gen) is dropped without touching the current call.
func (s *Session) failCall(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		logger.For("call.session").WithError(err).Debug("stale call attempt failed")
		return
	}
	s.lastErr = err
	s.setStateLocked(StateFailed)
	s.mu.Unlock()
	logger.For("call.session").WithError(err).Warn("call failed")
	s.notifyState(StateFailed)
	s.reset(false)
}

// reset releases all call resources exactly once and returns to Idle.
// When notifyPeer is set and a call was in flight, the far side receives
// end-call first.
func (s *Session) reset(notifyPeer bool) {
	s.mu.Lock()
	if s.state == StateIdle && s.peer == nil && s.media == nil && s.offer == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	peer := s.peer
	media := s.media
	target := s.peerTarget
	s.peer = nil
	s.media = nil
	s.offer = nil
	s.peerTarget = ""
	s.pendingICE = nil
	s.iceReady = false
	s.remoteTrack = nil
	wasLive := s.state != StateIdle
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	if notifyPeer && wasLive && target != "" {
		_ = s.relay.Send(signal.EventEndCall, signal.TargetPayload{TargetSocketID: target})
	}
	if peer != nil {
		_ = peer.Close()
	}
	if media != nil {
		_ = media.Close()
	}
	s.notifyState(StateIdle)
}

func (s *Session) setStateLocked(next State) {
	s.state = next
}

func (s *Session) notifyState(state State) {
	if s.OnStateChange != nil {
		s.OnStateChange(state)
	}
}
