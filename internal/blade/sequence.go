// internal/blade/sequence.go
package blade

import "sync"

// Request sequence ranges. The ranges never overlap: a response whose
// sequence falls in the async range can never answer a sync request.
const (
	syncSeqFirst  byte = 0x01
	syncSeqLast   byte = 0x30
	asyncSeqFirst byte = 0x31
	asyncSeqLast  byte = 0x3F
)

type sequencer struct {
	mu       sync.Mutex
	syncSeq  byte
	asyncSeq byte
}

// reset puts both counters at their base.
func (s *sequencer) reset() {
	s.mu.Lock()
	s.syncSeq = syncSeqFirst
	s.asyncSeq = asyncSeqFirst
	s.mu.Unlock()
}

// resetSync restarts the sync counter after a new session is activated.
func (s *sequencer) resetSync() {
	s.mu.Lock()
	s.syncSeq = syncSeqFirst
	s.mu.Unlock()
}

func (s *sequencer) nextSync() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return next(&s.syncSeq, syncSeqFirst, syncSeqLast)
}

func (s *sequencer) nextAsync() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return next(&s.asyncSeq, asyncSeqFirst, asyncSeqLast)
}

// next returns the current value of *v and advances it, wrapping to first.
// A value outside [first, last] is reset to first before use.
func next(v *byte, first, last byte) byte {
	if *v < first || *v > last {
		*v = first
	}
	out := *v
	if *v == last {
		*v = first
	} else {
		*v++
	}
	return out
}
