package wire

import "bytes"

// bufferFrames is the reassembly buffer cap expressed in frame lengths. Four
// frames absorbs normal transport burstiness; anything beyond that means the
// consumer stalled and the oldest bytes are expendable.
const bufferFrames = 4

// Reassembler recovers fixed-length frames from an arbitrarily chunked byte
// stream. Chunk boundaries carry no meaning: a frame may arrive split across
// any number of Feed calls, or many frames may arrive in one call.
//
// A Reassembler is owned by a single stream consumer and is not safe for
// concurrent use.
type Reassembler struct {
	frameLen int
	maxBuf   int
	buf      []byte

	resyncs uint64
}

// NewReassembler returns a Reassembler for frames of frameLen bytes.
func NewReassembler(frameLen int) *Reassembler {
	return &Reassembler{
		frameLen: frameLen,
		maxBuf:   frameLen * bufferFrames,
	}
}

// Feed appends chunk to the internal buffer and returns every complete frame
// found so far, in arrival order. Bytes preceding the first sync marker are
// dropped silently and counted as a resync. A trailing partial frame stays
// buffered until the remaining bytes arrive.
func (r *Reassembler) Feed(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	// Overflow protection: discard the oldest bytes rather than grow without
	// bound. Observable only through the resync counter.
	if len(r.buf) > r.maxBuf {
		r.buf = r.buf[len(r.buf)-r.maxBuf:]
		r.resyncs++
	}

	var frames [][]byte
	for {
		// Scan to the next sync marker, dropping garbage in front of it.
		i := bytes.IndexByte(r.buf, SyncByte)
		if i < 0 {
			if len(r.buf) > 0 {
				r.resyncs++
			}
			r.buf = r.buf[:0]
			break
		}
		if i > 0 {
			r.buf = r.buf[i:]
			r.resyncs++
		}
		if len(r.buf) < r.frameLen {
			// Partial frame: wait for more bytes.
			break
		}

		frame := make([]byte, r.frameLen)
		copy(frame, r.buf[:r.frameLen])
		frames = append(frames, frame)
		r.buf = r.buf[r.frameLen:]
	}

	// Compact so the retained tail does not pin the grown backing array.
	if len(r.buf) > 0 && cap(r.buf) > r.maxBuf {
		r.buf = append(make([]byte, 0, r.maxBuf), r.buf...)
	}

	return frames
}

// Pending returns the number of buffered bytes awaiting frame completion.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Resyncs returns how many times the scanner discarded bytes to find a sync
// marker or shed buffer overflow. Non-fatal by design: sustained corruption
// shows up here as a climbing counter, never as an error.
func (r *Reassembler) Resyncs() uint64 {
	return r.resyncs
}
