package call

import (
	"github.com/pion/webrtc/v3"
)

// PeerConn is the slice of *webrtc.PeerConnection the session uses.
// Narrowing it to an interface lets tests drive the state machine with a
// fake negotiation layer.
type PeerConn interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnICEConnectionStateChange(f func(webrtc.ICEConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// PeerFactory builds a fresh peer connection for one call.
type PeerFactory func() (PeerConn, error)

const defaultSTUNServer = "stun:stun.l.google.com:19302"

// NewPionFactory returns a factory producing pion peer connections with the
// default audio codecs and the given STUN servers (falling back to a public
// one when none are supplied).
func NewPionFactory(stunServers []string) PeerFactory {
	if len(stunServers) == 0 {
		stunServers = []string{defaultSTUNServer}
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		// RegisterDefaultCodecs only fails on programmer error.
		panic(err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
	return func() (PeerConn, error) {
		return api.NewPeerConnection(config)
	}
}
