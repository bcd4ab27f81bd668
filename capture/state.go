package capture

import "sync/atomic"

// State counts blocks for one capture session. Counters only grow.
type State struct {
	submitted atomic.Uint64
	written   atomic.Uint64
	dropped   atomic.Uint64
}

func (s *State) Submitted() uint64 { return s.submitted.Load() }
func (s *State) Written() uint64   { return s.written.Load() }
func (s *State) Dropped() uint64   { return s.dropped.Load() }

// DroppedPercent is round(100 * dropped / submitted).
func (s *State) DroppedPercent() uint32 {
	dropped := s.dropped.Load()
	submitted := s.submitted.Load()
	if submitted == 0 {
		return 0
	}
	return uint32((200*dropped + submitted) / (2 * submitted))
}

// DisplayDroppedPercent clamps DroppedPercent to two digits.
func (s *State) DisplayDroppedPercent() uint32 {
	return min(99, s.DroppedPercent())
}

type Snapshot struct {
	Submitted uint64
	Written   uint64
	Dropped   uint64
}

func (s *State) Snapshot() Snapshot {
	// dropped is read before submitted so a concurrent submit can never make
	// the snapshot show more drops than submissions.
	dropped := s.dropped.Load()
	written := s.written.Load()
	return Snapshot{
		Submitted: s.submitted.Load(),
		Written:   written,
		Dropped:   dropped,
	}
}
