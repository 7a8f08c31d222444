package queue

import "sync/atomic"

// Sequencer hands out monotonically increasing operation numbers.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
