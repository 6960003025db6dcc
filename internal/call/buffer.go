package call

import "github.com/pion/webrtc/v4"

// candidateBuffer holds remote ICE candidates that arrived before the
// remote description. FIFO, no deduplication; the peer connection is
// responsible for idempotent application.
type candidateBuffer struct {
	pending []webrtc.ICECandidateInit
}

func (b *candidateBuffer) enqueue(ci webrtc.ICECandidateInit) {
	b.pending = append(b.pending, ci)
}

// drainAll returns the buffered candidates in arrival order and empties
// the buffer.
func (b *candidateBuffer) drainAll() []webrtc.ICECandidateInit {
	out := b.pending
	b.pending = nil
	return out
}

func (b *candidateBuffer) size() int { return len(b.pending) }
