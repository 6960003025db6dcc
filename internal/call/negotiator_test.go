package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
	settle  = 75 * time.Millisecond
)

type env struct {
	sig     *fakeSignal
	inbound chan core.Message
	dialer  *fakeDialer
	cap     *fakeCapturer
	handle  *fakeHandle
	conn    *fakeConn
	n       *Negotiator
}

func newEnv() *env {
	e := &env{
		sig:     &fakeSignal{},
		inbound: make(chan core.Message, 16),
		handle:  &fakeHandle{},
		conn:    &fakeConn{},
	}
	e.dialer = &fakeDialer{conn: e.sig, inbound: e.inbound}
	e.cap = &fakeCapturer{handle: e.handle}
	e.n = NewNegotiator(e.dialer, &fakeFactory{conn: e.conn}, e.cap)
	return e
}

func (e *env) start(t *testing.T, role domain.Role) {
	t.Helper()
	require.NoError(t, e.n.Start(context.Background(), "tok1", "call1", role, false))
}

func (e *env) sentOfType(match func(core.Message) bool) int {
	count := 0
	for _, m := range e.sig.sentMessages() {
		if match(m) {
			count++
		}
	}
	return count
}

func (e *env) answersSent() int {
	return e.sentOfType(func(m core.Message) bool { _, ok := m.(core.Answer); return ok })
}

func (e *env) waitState(t *testing.T, want domain.State) {
	t.Helper()
	require.Eventually(t, func() bool { return e.n.State() == want }, waitFor, tick,
		"state never reached %s, now %s", want, e.n.State())
}

func TestCallerConnectFlow(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCaller)

	require.Eventually(t, func() bool {
		msgs := e.sig.sentMessages()
		return len(msgs) == 1
	}, waitFor, tick)
	offer, ok := e.sig.sentMessages()[0].(core.Offer)
	require.True(t, ok, "first outbound message must be the offer")
	assert.Equal(t, domain.CallID("call1"), offer.CallID)
	assert.Equal(t, "local-offer", offer.SDP)

	e.inbound <- core.Answer{CallID: "call1", SDP: "remote-answer"}
	require.Eventually(t, func() bool {
		e.conn.mu.Lock()
		defer e.conn.mu.Unlock()
		return e.conn.remoteSet
	}, waitFor, tick)

	e.conn.trackCallback()(&webrtc.TrackRemote{}, nil)
	e.waitState(t, domain.StateConnected)
	assert.NotNil(t, e.n.RemoteTrack())

	e.n.End()
	<-e.n.Done()
	assert.Equal(t, domain.StateEnded, e.n.State())
	assert.Equal(t, 1, e.handle.releaseCount())
}

func TestCalleeAnswersOffer(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	require.Eventually(t, func() bool { return e.answersSent() == 1 }, waitFor, tick)

	answer := e.sig.sentMessages()[len(e.sig.sentMessages())-1].(core.Answer)
	assert.Equal(t, domain.CallID("call1"), answer.CallID)
	assert.Equal(t, core.Constraints{Audio: true, Video: false}, e.cap.constraints())
}

func TestConnectedViaPeerState(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	require.Eventually(t, func() bool { return e.answersSent() == 1 }, waitFor, tick)

	e.conn.stateCallback()(webrtc.PeerConnectionStateConnected)
	e.waitState(t, domain.StateConnected)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	for _, c := range []string{"c1", "c2", "c3"} {
		e.inbound <- core.Candidate{CallID: "call1", Candidate: webrtc.ICECandidateInit{Candidate: c}}
	}
	time.Sleep(settle)
	assert.Empty(t, e.conn.candidates(), "candidates must not reach the adapter before the offer")

	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	require.Eventually(t, func() bool { return len(e.conn.candidates()) == 3 }, waitFor, tick)
	applied := e.conn.candidates()
	assert.Equal(t, "c1", applied[0].Candidate)
	assert.Equal(t, "c2", applied[1].Candidate)
	assert.Equal(t, "c3", applied[2].Candidate)

	// Once the remote description is in, candidates apply immediately.
	e.inbound <- core.Candidate{CallID: "call1", Candidate: webrtc.ICECandidateInit{Candidate: "c4"}}
	require.Eventually(t, func() bool { return len(e.conn.candidates()) == 4 }, waitFor, tick)
	assert.Equal(t, "c4", e.conn.candidates()[3].Candidate)
}

func TestDuplicateOfferIgnored(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	require.Eventually(t, func() bool { return e.answersSent() == 1 }, waitFor, tick)
	time.Sleep(settle)
	assert.Equal(t, 1, e.answersSent())
	assert.False(t, e.n.State().Terminal(), "duplicate offer must not kill the session")
}

func TestAnswerBeforeOfferFails(t *testing.T) {
	e := newEnv()
	e.conn.offerGate = make(chan struct{})
	e.start(t, domain.RoleCaller)

	require.Eventually(t, func() bool {
		return e.cap.constraints().Audio
	}, waitFor, tick)
	e.inbound <- core.Answer{CallID: "call1", SDP: "remote-answer"}

	e.waitState(t, domain.StateFailed)
	var negErr *core.NegotiationError
	require.ErrorAs(t, e.n.Err(), &negErr)

	close(e.conn.offerGate)
	<-e.n.Done()
}

func TestRemoteHangupIdempotent(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	require.Eventually(t, func() bool { return e.answersSent() == 1 }, waitFor, tick)
	sentBefore := len(e.sig.sentMessages())

	e.inbound <- core.Hangup{CallID: "call1"}
	e.waitState(t, domain.StateEnded)
	<-e.n.Done()
	e.inbound <- core.Hangup{CallID: "call1"}
	e.n.End()
	time.Sleep(settle)

	assert.Equal(t, domain.StateEnded, e.n.State())
	assert.Equal(t, 1, e.handle.releaseCount(), "media released exactly once")
	assert.Equal(t, sentBefore, len(e.sig.sentMessages()), "nothing sent after Ended")
	assert.Equal(t, 1, e.conn.closeCount())
}

func TestLocalEndNotifiesPeer(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCaller)

	require.Eventually(t, func() bool { return len(e.sig.sentMessages()) == 1 }, waitFor, tick)
	e.n.End()
	<-e.n.Done()

	msgs := e.sig.sentMessages()
	_, ok := msgs[len(msgs)-1].(core.Hangup)
	assert.True(t, ok, "local end must notify the peer")
	assert.Equal(t, domain.StateEnded, e.n.State())
	assert.Equal(t, 1, e.handle.releaseCount())
}

func TestEndDuringPendingAcquire(t *testing.T) {
	e := newEnv()
	e.cap.gate = make(chan struct{})
	e.start(t, domain.RoleCaller)

	require.Eventually(t, func() bool { return e.cap.constraints().Audio }, waitFor, tick)
	e.n.End()
	e.waitState(t, domain.StateEnded)
	assert.Equal(t, 0, e.handle.releaseCount(), "handle does not exist yet")

	close(e.cap.gate)
	<-e.n.Done()
	assert.Equal(t, 1, e.handle.releaseCount(), "late acquire completion still releases")
	assert.Equal(t, domain.StateEnded, e.n.State(), "completion must not leave Ended")
}

func TestMediaAccessErrorFailsSession(t *testing.T) {
	e := newEnv()
	e.cap.err = &core.MediaAccessError{Cause: errors.New("permission denied")}
	e.cap.handle = nil
	e.start(t, domain.RoleCaller)

	e.waitState(t, domain.StateFailed)
	<-e.n.Done()

	var mediaErr *core.MediaAccessError
	require.ErrorAs(t, e.n.Err(), &mediaErr)
	assert.Empty(t, e.sig.sentMessages(), "no signaling traffic on media failure")
	assert.Equal(t, 1, e.sig.closeCount(), "channel closed on failure")
}

func TestOfferAheadOfLocalSetup(t *testing.T) {
	e := newEnv()
	e.cap.gate = make(chan struct{})
	e.start(t, domain.RoleCallee)

	require.Eventually(t, func() bool { return e.cap.constraints().Audio }, waitFor, tick)
	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	time.Sleep(settle)
	assert.Zero(t, e.answersSent(), "cannot answer before local setup finished")

	close(e.cap.gate)
	require.Eventually(t, func() bool { return e.answersSent() == 1 }, waitFor, tick)
}

func TestLocalCandidateForwarded(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	e.inbound <- core.Offer{CallID: "call1", SDP: "remote-offer"}
	require.Eventually(t, func() bool { return e.answersSent() == 1 }, waitFor, tick)

	e.conn.iceCallback()(webrtc.ICECandidateInit{Candidate: "local-cand"})
	require.Eventually(t, func() bool {
		return e.sentOfType(func(m core.Message) bool {
			c, ok := m.(core.Candidate)
			return ok && c.Candidate.Candidate == "local-cand" && c.CallID == "call1"
		}) == 1
	}, waitFor, tick)
}

func TestForeignCallIgnored(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCallee)

	e.inbound <- core.Offer{CallID: "other-call", SDP: "remote-offer"}
	time.Sleep(settle)
	assert.Zero(t, e.answersSent())
	assert.False(t, e.n.State().Terminal())
}

func TestChannelLossBeforeConnectedFails(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCaller)

	require.Eventually(t, func() bool { return len(e.sig.sentMessages()) == 1 }, waitFor, tick)
	close(e.inbound)

	e.waitState(t, domain.StateFailed)
	var transErr *core.TransportError
	require.ErrorAs(t, e.n.Err(), &transErr)
}

func TestChannelLossAfterConnectedKeepsSession(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCaller)

	require.Eventually(t, func() bool { return len(e.sig.sentMessages()) == 1 }, waitFor, tick)
	e.inbound <- core.Answer{CallID: "call1", SDP: "remote-answer"}
	require.Eventually(t, func() bool { return e.conn.trackCallback() != nil }, waitFor, tick)
	e.conn.trackCallback()(&webrtc.TrackRemote{}, nil)
	e.waitState(t, domain.StateConnected)

	close(e.inbound)
	time.Sleep(settle)
	assert.Equal(t, domain.StateConnected, e.n.State(), "media outlives the signaling channel")

	e.n.End()
	<-e.n.Done()
	assert.Equal(t, domain.StateEnded, e.n.State())
	assert.Equal(t, 1, e.handle.releaseCount())
}

func TestStartTwiceRejected(t *testing.T) {
	e := newEnv()
	e.start(t, domain.RoleCaller)
	err := e.n.Start(context.Background(), "tok1", "call2", domain.RoleCaller, false)
	require.ErrorIs(t, err, ErrAlreadyStarted)

	e.n.End()
	<-e.n.Done()
}

func TestStartValidatesCall(t *testing.T) {
	e := newEnv()
	err := e.n.Start(context.Background(), "tok1", "", domain.RoleCaller, false)
	require.ErrorIs(t, err, domain.ErrCallIDEmpty)
	err = e.n.Start(context.Background(), "", "call1", domain.RoleCaller, false)
	require.ErrorIs(t, err, domain.ErrTokenEmpty)
}
