package call

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

// In-memory doubles for the three resources the negotiator drives.

type fakeSignal struct {
	mu       sync.Mutex
	sent     []core.Message
	closes   int
	sendErr  error
	transErr error
}

func (s *fakeSignal) TrySend(m core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSignal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
}

func (s *fakeSignal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transErr
}

func (s *fakeSignal) sentMessages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSignal) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeDialer struct {
	conn    *fakeSignal
	inbound chan core.Message
	err     error
}

func (d *fakeDialer) Dial(ctx context.Context, token domain.Token) (core.SignalConnection, <-chan core.Message, error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.conn, d.inbound, nil
}

type fakeHandle struct {
	mu       sync.Mutex
	tracks   []webrtc.TrackLocal
	releases int
}

func (h *fakeHandle) Tracks() []webrtc.TrackLocal { return h.tracks }

func (h *fakeHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases++
}

func (h *fakeHandle) releaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases
}

type fakeCapturer struct {
	mu     sync.Mutex
	handle *fakeHandle
	err    error
	gate   chan struct{} // when set, Acquire blocks until closed
	cons   core.Constraints
}

func (c *fakeCapturer) Acquire(ctx context.Context, cons core.Constraints) (core.MediaHandle, error) {
	c.mu.Lock()
	c.cons = cons
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.handle, nil
}

func (c *fakeCapturer) constraints() core.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cons
}

type fakeConn struct {
	mu         sync.Mutex
	localOffer bool
	remoteSet  bool
	applied    []webrtc.ICECandidateInit
	added      []webrtc.TrackLocal
	closes     int
	offerGate  chan struct{} // when set, CreateOfferAndSet blocks until closed

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState func(webrtc.PeerConnectionState)
	onFatal func(error)
}

func (c *fakeConn) Start(ctx context.Context) error { return nil }

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func (c *fakeConn) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, track)
	return nil, nil
}

func (c *fakeConn) CreateOfferAndSet() (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	gate := c.offerGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localOffer = true
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (c *fakeConn) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offer.SDP == "" {
		return nil, &core.NegotiationError{Op: "set remote offer", Cause: errors.New("empty sdp")}
	}
	c.remoteSet = true
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (c *fakeConn) ApplyAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.localOffer {
		return &core.NegotiationError{Op: "set remote answer", Cause: errors.New("no local offer")}
	}
	c.remoteSet = true
	return nil
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return &core.CandidateError{Cause: errors.New("remote description not set")}
	}
	c.applied = append(c.applied, ci)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.setCB(func() { c.onICE = fn }) }

func (c *fakeConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.setCB(func() { c.onTrack = fn })
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.setCB(func() { c.onState = fn })
}

func (c *fakeConn) OnFatalError(fn func(error)) { c.setCB(func() { c.onFatal = fn }) }

func (c *fakeConn) setCB(set func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set()
}

func (c *fakeConn) candidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(c.applied))
	copy(out, c.applied)
	return out
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) trackCallback() func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onTrack
}

func (c *fakeConn) iceCallback() func(webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onICE
}

func (c *fakeConn) stateCallback() func(webrtc.PeerConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onState
}

type fakeFactory struct {
	conn *fakeConn
	err  error
}

func (f *fakeFactory) NewConnection(id domain.CallID) (core.MediaConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}
