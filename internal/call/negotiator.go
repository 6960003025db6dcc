// Package call holds the session negotiation core: a single-threaded state
// machine that sequences offer/answer and ICE candidate exchange for one
// two-party call over a signaling channel, a peer connection and local
// capture.
package call

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

var (
	ErrAlreadyStarted = errors.New("negotiator already started")
	ErrAnswerNoOffer  = errors.New("answer received before an offer was created")
	ErrChannelLost    = errors.New("signaling channel lost")
)

const eventQueueSize = 64

// Negotiator drives exactly one call session from Idle to a terminal state.
// Construct one per call; it is not reusable.
//
// Observers run on the negotiator's own goroutine and must not block.
type Negotiator struct {
	dialer  core.SignalDialer
	media   core.MediaFactory
	capture core.MediaCapturer

	events chan event
	done   chan struct{}

	onRemoteTrack func(*webrtc.TrackRemote)
	onStateChange func(domain.State)

	// Snapshot fields readable from other goroutines.
	mu          sync.RWMutex
	state       domain.State
	failure     error
	remoteTrack *webrtc.TrackRemote

	// Loop-owned, never touched outside the run goroutine.
	call         *domain.Call
	runCtx       context.Context
	signal       core.SignalConnection
	inbound      <-chan core.Message
	conn         core.MediaConnection
	localMedia   core.MediaHandle
	buffer       candidateBuffer
	pendingOffer *core.Offer
	offerCreated bool
	offerApplied bool
	remoteSet    bool
	pendingOps   int
	started      bool
}

func NewNegotiator(dialer core.SignalDialer, media core.MediaFactory, capture core.MediaCapturer) *Negotiator {
	return &Negotiator{
		dialer:  dialer,
		media:   media,
		capture: capture,
		events:  make(chan event, eventQueueSize),
		done:    make(chan struct{}),
		state:   domain.StateIdle,
	}
}

// OnRemoteTrack registers the UI observation point for the remote media
// handle. Must be set before Start.
func (n *Negotiator) OnRemoteTrack(fn func(*webrtc.TrackRemote)) { n.onRemoteTrack = fn }

// OnStateChange registers the UI observation point for lifecycle moves.
// Must be set before Start.
func (n *Negotiator) OnStateChange(fn func(domain.State)) { n.onStateChange = fn }

// Start initializes the call session and begins negotiation. Canceling ctx
// has the same effect as End.
func (n *Negotiator) Start(ctx context.Context, token domain.Token, id domain.CallID, role domain.Role, video bool) error {
	c, err := domain.NewCall(token, id, role, video)
	if err != nil {
		return err
	}
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.mu.Unlock()

	n.call = c
	go n.run(ctx)
	n.events <- evStart{}
	return nil
}

// End tears the session down and notifies the remote peer. Safe to call at
// any point, any number of times, including while setup is still running.
func (n *Negotiator) End() {
	select {
	case n.events <- evEnd{}:
	case <-n.done:
	}
}

// Done closes once the session reached a terminal state and every
// outstanding async operation has been reaped.
func (n *Negotiator) Done() <-chan struct{} { return n.done }

func (n *Negotiator) State() domain.State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Err reports the terminal cause; nil unless the session Failed.
func (n *Negotiator) Err() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.failure
}

// RemoteTrack is a weak reference for UI consumption; the session does not
// own it.
func (n *Negotiator) RemoteTrack() *webrtc.TrackRemote {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.remoteTrack
}

// run is the event loop. Every transition happens here, one event at a
// time; no locks guard the loop-owned fields.
func (n *Negotiator) run(ctx context.Context) {
	defer close(n.done)
	n.runCtx = ctx

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			n.terminate(domain.StateEnded, true, nil)
		case ev := <-n.events:
			n.handle(ev)
		case msg, ok := <-n.inbound:
			if !ok {
				n.inbound = nil
				n.onChannelLost()
				continue
			}
			n.onSignal(msg)
		}
		if n.stateNow().Terminal() && n.pendingOps == 0 {
			return
		}
	}
}

func (n *Negotiator) stateNow() domain.State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Negotiator) setState(s domain.State) {
	n.mu.Lock()
	prev := n.state
	n.state = s
	n.mu.Unlock()
	if prev == s {
		return
	}
	log.Info().Str("module", "call").Str("call_id", string(n.call.ID)).
		Str("from", prev.String()).Str("to", s.String()).Msg("state")
	if n.onStateChange != nil {
		n.onStateChange(s)
	}
}

func (n *Negotiator) handle(ev event) {
	switch e := ev.(type) {
	case evStart:
		n.onStart()
	case evEnd:
		n.terminate(domain.StateEnded, true, nil)
	case evChannelUp:
		n.onChannelUp(e)
	case evMediaAcquired:
		n.onMediaAcquired(e)
	case evOfferReady:
		n.onOfferReady(e)
	case evAnswerReady:
		n.onAnswerReady(e)
	case evAnswerApplied:
		n.onAnswerApplied(e)
	case evLocalCandidate:
		n.onLocalCandidate(e.ci)
	case evRemoteTrack:
		n.onRemote(e.track)
	case evPeerState:
		n.onPeerState(e.state)
	case evFatal:
		if !n.stateNow().Terminal() {
			n.fail(e.err)
		}
	}
}

func (n *Negotiator) onStart() {
	if n.stateNow() != domain.StateIdle {
		return
	}
	n.setState(domain.StateNegotiating)
	n.spawn(func() event {
		conn, inbound, err := n.dialer.Dial(n.runCtx, n.call.Token)
		return evChannelUp{conn: conn, inbound: inbound, err: err}
	})
}

// spawn runs an async step off the loop; its completion re-enters as an
// event. pendingOps keeps the loop alive until every completion is reaped.
func (n *Negotiator) spawn(fn func() event) {
	n.pendingOps++
	go func() {
		n.events <- fn()
	}()
}

// post delivers adapter callback events; once the loop has exited these
// are of no interest and must not hold the callback goroutine hostage.
func (n *Negotiator) post(ev event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}

func (n *Negotiator) onChannelUp(e evChannelUp) {
	n.pendingOps--
	if n.stateNow().Terminal() {
		if e.conn != nil {
			e.conn.Close()
		}
		return
	}
	if e.err != nil {
		n.fail(e.err)
		return
	}
	n.signal = e.conn
	n.inbound = e.inbound

	cons := core.Constraints{Audio: true, Video: n.call.Video}
	n.spawn(func() event {
		h, err := n.capture.Acquire(n.runCtx, cons)
		return evMediaAcquired{handle: h, err: err}
	})
}

func (n *Negotiator) onMediaAcquired(e evMediaAcquired) {
	n.pendingOps--
	if n.stateNow().Terminal() {
		// endCall raced the acquire; the handle still must be freed
		// exactly once.
		if e.handle != nil {
			e.handle.Release()
		}
		return
	}
	if e.err != nil {
		n.fail(e.err)
		return
	}
	n.localMedia = e.handle

	conn, err := n.media.NewConnection(n.call.ID)
	if err != nil {
		n.fail(err)
		return
	}
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		n.post(evLocalCandidate{ci: ci})
	})
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n.post(evRemoteTrack{track: track})
	})
	conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		n.post(evPeerState{state: s})
	})
	conn.OnFatalError(func(err error) {
		n.post(evFatal{err: err})
	})

	for _, track := range n.localMedia.Tracks() {
		if _, err := conn.AddLocalTrack(track); err != nil {
			conn.Close()
			n.fail(err)
			return
		}
	}
	if err := conn.Start(n.runCtx); err != nil {
		conn.Close()
		n.fail(err)
		return
	}
	n.conn = conn

	if n.call.Role == domain.RoleCaller {
		n.spawn(func() event {
			desc, err := conn.CreateOfferAndSet()
			return evOfferReady{desc: desc, err: err}
		})
	} else if n.pendingOffer != nil {
		// The remote offer beat our own setup; apply it now.
		offer := *n.pendingOffer
		n.pendingOffer = nil
		n.applyRemoteOffer(offer)
	}
}

func (n *Negotiator) onOfferReady(e evOfferReady) {
	n.pendingOps--
	if n.stateNow().Terminal() {
		return
	}
	if e.err != nil {
		n.fail(e.err)
		return
	}
	n.offerCreated = true
	n.send(core.Offer{CallID: n.call.ID, SDP: e.desc.SDP})
}

func (n *Negotiator) onSignal(msg core.Message) {
	if n.stateNow().Terminal() {
		return
	}
	if msg.Call() != n.call.ID {
		log.Warn().Str("module", "call").Str("call_id", string(n.call.ID)).
			Str("got", string(msg.Call())).Msg("message for another call, ignoring")
		return
	}
	switch m := msg.(type) {
	case core.Offer:
		n.onRemoteOffer(m)
	case core.Answer:
		n.onRemoteAnswer(m)
	case core.Candidate:
		n.onRemoteCandidate(m.Candidate)
	case core.Hangup:
		if m.Reason != "" {
			log.Info().Str("module", "call").Str("call_id", string(n.call.ID)).
				Str("reason", m.Reason).Msg("remote hangup")
		}
		n.terminate(domain.StateEnded, false, nil)
	}
}

func (n *Negotiator) onRemoteOffer(m core.Offer) {
	if n.call.Role != domain.RoleCallee || n.offerApplied || n.pendingOffer != nil {
		// Duplicate or role-invalid offer: harmless protocol noise.
		log.Warn().Str("module", "call").Str("call_id", string(n.call.ID)).
			Str("role", string(n.call.Role)).Msg("unexpected offer, ignoring")
		return
	}
	if n.conn == nil {
		// Our own setup has not finished yet; hold the offer until the
		// peer connection exists.
		n.pendingOffer = &m
		return
	}
	n.applyRemoteOffer(m)
}

func (n *Negotiator) applyRemoteOffer(m core.Offer) {
	n.offerApplied = true
	conn := n.conn
	n.spawn(func() event {
		desc, err := conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  m.SDP,
		})
		return evAnswerReady{desc: desc, err: err}
	})
}

func (n *Negotiator) onAnswerReady(e evAnswerReady) {
	n.pendingOps--
	if n.stateNow().Terminal() {
		return
	}
	if e.err != nil {
		n.fail(e.err)
		return
	}
	n.remoteDescribed()
	n.send(core.Answer{CallID: n.call.ID, SDP: e.desc.SDP})
}

func (n *Negotiator) onRemoteAnswer(m core.Answer) {
	if n.call.Role != domain.RoleCaller {
		log.Warn().Str("module", "call").Str("call_id", string(n.call.ID)).Msg("answer at callee, ignoring")
		return
	}
	if !n.offerCreated {
		// Structurally invalid: an answer to an offer we never made.
		n.fail(&core.NegotiationError{Op: "apply answer", Cause: ErrAnswerNoOffer})
		return
	}
	if n.remoteSet {
		log.Warn().Str("module", "call").Str("call_id", string(n.call.ID)).Msg("duplicate answer, ignoring")
		return
	}
	conn := n.conn
	n.spawn(func() event {
		return evAnswerApplied{err: conn.ApplyAnswer(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  m.SDP,
		})}
	})
}

func (n *Negotiator) onAnswerApplied(e evAnswerApplied) {
	n.pendingOps--
	if n.stateNow().Terminal() {
		return
	}
	if e.err != nil {
		n.fail(e.err)
		return
	}
	n.remoteDescribed()
}

// remoteDescribed flushes every buffered candidate in arrival order, now
// that the remote description is in place.
func (n *Negotiator) remoteDescribed() {
	n.remoteSet = true
	flushed := n.buffer.drainAll()
	for _, ci := range flushed {
		if err := n.conn.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "call").Str("call_id", string(n.call.ID)).Msg("flush candidate")
		}
	}
	if len(flushed) > 0 {
		log.Info().Str("module", "call").Str("call_id", string(n.call.ID)).
			Int("count", len(flushed)).Msg("flushed buffered candidates")
	}
}

func (n *Negotiator) onRemoteCandidate(ci webrtc.ICECandidateInit) {
	if !n.remoteSet {
		n.buffer.enqueue(ci)
		return
	}
	if err := n.conn.AddICECandidate(ci); err != nil {
		// With the buffer in place this means a broken candidate, not a
		// sequencing bug; candidates are at-least-once so drop it.
		log.Error().Err(err).Str("module", "call").Str("call_id", string(n.call.ID)).Msg("add candidate")
	}
}

func (n *Negotiator) onLocalCandidate(ci webrtc.ICECandidateInit) {
	if n.stateNow().Terminal() || n.signal == nil {
		return
	}
	// Candidates are at-least-once on the wire; losing one to
	// backpressure is not worth failing the session over.
	if err := n.signal.TrySend(core.Candidate{CallID: n.call.ID, Candidate: ci}); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call_id", string(n.call.ID)).Msg("send candidate")
	}
}

func (n *Negotiator) onRemote(track *webrtc.TrackRemote) {
	if n.stateNow().Terminal() {
		return
	}
	n.mu.Lock()
	n.remoteTrack = track
	n.mu.Unlock()
	if n.onRemoteTrack != nil {
		n.onRemoteTrack(track)
	}
	if n.stateNow() == domain.StateNegotiating {
		n.setState(domain.StateConnected)
	}
}

func (n *Negotiator) onPeerState(s webrtc.PeerConnectionState) {
	if n.stateNow().Terminal() {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if n.stateNow() == domain.StateNegotiating {
			n.setState(domain.StateConnected)
		}
	case webrtc.PeerConnectionStateFailed:
		n.fail(&core.TransportError{Cause: errors.New("peer connection failed")})
	}
}

// onChannelLost handles the inbound channel closing underneath us.
func (n *Negotiator) onChannelLost() {
	state := n.stateNow()
	if state.Terminal() {
		return
	}
	cause := error(ErrChannelLost)
	if n.signal != nil {
		if err := n.signal.Err(); err != nil {
			cause = err
		}
	}
	if state == domain.StateConnected {
		// Media already flows peer to peer; losing signaling does not end
		// the call. Reconnection is the caller's decision.
		log.Warn().Err(cause).Str("module", "call").Str("call_id", string(n.call.ID)).
			Msg("signaling lost after connect")
		n.signal.Close()
		n.signal = nil
		return
	}
	n.fail(&core.TransportError{Cause: cause})
}

func (n *Negotiator) send(msg core.Message) {
	if err := n.signal.TrySend(msg); err != nil {
		log.Error().Err(err).Str("module", "call").Str("call_id", string(n.call.ID)).Msg("send signal")
		n.fail(&core.TransportError{Cause: err})
	}
}

func (n *Negotiator) fail(err error) {
	n.terminate(domain.StateFailed, false, err)
}

// terminate is the single exit path. Idempotent: once terminal, nothing is
// sent, applied or released again.
func (n *Negotiator) terminate(to domain.State, notifyPeer bool, cause error) {
	if n.stateNow().Terminal() {
		return
	}
	if notifyPeer && n.signal != nil && n.call != nil {
		if err := n.signal.TrySend(core.Hangup{CallID: n.call.ID}); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("call_id", string(n.call.ID)).Msg("send end-call")
		}
	}
	if n.localMedia != nil {
		n.localMedia.Release()
		n.localMedia = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	if n.signal != nil {
		n.signal.Close()
		n.signal = nil
	}
	n.buffer.drainAll()
	n.mu.Lock()
	n.failure = cause
	n.mu.Unlock()
	if cause != nil {
		log.Error().Err(cause).Str("module", "call").Str("call_id", string(n.call.ID)).Msg("session failed")
	}
	n.setState(to)
}
