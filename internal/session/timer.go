package session

import (
	"sync"
	"time"
)

// PhaseTimer is the single cancellable scheduled task a session owns. At
// most one live timer exists at any time; scheduling over a live timer is an
// invariant violation surfaced to the caller. A fire carries its sequence
// number so a stale callback racing a transition can be recognized and
// dropped.
type PhaseTimer struct {
	mu        sync.Mutex
	seq       uint64
	phase     Phase
	deadline  time.Time
	remaining time.Duration
	live      bool
	paused    bool
	t         *time.Timer
	onFire    func(seq uint64, phase Phase)
}

func NewPhaseTimer(onFire func(seq uint64, phase Phase)) *PhaseTimer {
	return &PhaseTimer{onFire: onFire}
}

// Schedule arms the timer for phase, failing if a live timer already exists.
func (pt *PhaseTimer) Schedule(phase Phase, d time.Duration) (uint64, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.live {
		return 0, Invariant("a phase timer is already live for phase " + string(pt.phase))
	}

	pt.seq++
	seq := pt.seq
	pt.phase = phase
	pt.deadline = time.Now().Add(d)
	pt.live = true
	pt.paused = false
	pt.t = time.AfterFunc(d, func() { pt.fire(seq) })
	return seq, nil
}

func (pt *PhaseTimer) fire(seq uint64) {
	pt.mu.Lock()
	if !pt.live || pt.paused || seq != pt.seq {
		pt.mu.Unlock()
		return
	}
	pt.live = false
	phase := pt.phase
	pt.mu.Unlock()

	pt.onFire(seq, phase)
}

// Pause stops the countdown without cancelling, retaining the remaining
// duration. Reports whether a live timer was paused.
func (pt *PhaseTimer) Pause() bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if !pt.live || pt.paused {
		return false
	}
	pt.t.Stop()
	pt.remaining = time.Until(pt.deadline)
	if pt.remaining < 0 {
		pt.remaining = 0
	}
	pt.paused = true
	return true
}

// Resume re-arms a paused timer with its retained remaining duration and
// returns the new deadline.
func (pt *PhaseTimer) Resume() (time.Time, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if !pt.live || !pt.paused {
		return time.Time{}, false
	}
	pt.seq++
	seq := pt.seq
	pt.paused = false
	pt.deadline = time.Now().Add(pt.remaining)
	pt.t = time.AfterFunc(pt.remaining, func() { pt.fire(seq) })
	return pt.deadline, true
}

// Cancel stops the timer. Mandatory on every transition so a stale timer
// cannot fire after a new phase has started. Idempotent.
func (pt *PhaseTimer) Cancel() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.t != nil {
		pt.t.Stop()
	}
	pt.live = false
	pt.paused = false
}

// Live reports whether a scheduled (possibly paused) timer exists.
func (pt *PhaseTimer) Live() bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.live
}

func (pt *PhaseTimer) Deadline() time.Time {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.deadline
}

// Seq returns the current sequence number; fires carrying an older number
// are stale.
func (pt *PhaseTimer) Seq() uint64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.seq
}
