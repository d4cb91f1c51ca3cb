package profile

import "time"

// Stopwatch accumulates wall-clock time across one or more Start/Stop
// intervals. Callers time a factorization or evaluation that is interleaved
// with other work, then hand the total to the matching Record method.
//
// A Stopwatch is not safe for concurrent use; each goroutine owns its own.
type Stopwatch struct {
	started time.Time
	running bool
	total   time.Duration
}

// StartTimer returns a running stopwatch.
func StartTimer() *Stopwatch {
	return &Stopwatch{started: time.Now(), running: true}
}

// Start resumes a paused stopwatch. Starting a running stopwatch is a no-op.
func (s *Stopwatch) Start() {
	if s.running {
		return
	}
	s.started = time.Now()
	s.running = true
}

// Stop pauses the stopwatch and returns the accumulated total.
func (s *Stopwatch) Stop() time.Duration {
	if s.running {
		s.total += time.Since(s.started)
		s.running = false
	}
	return s.total
}

// Elapsed returns the accumulated total including any live interval, without
// pausing.
func (s *Stopwatch) Elapsed() time.Duration {
	if s.running {
		return s.total + time.Since(s.started)
	}
	return s.total
}

// Reset zeroes the accumulator and pauses the stopwatch.
func (s *Stopwatch) Reset() {
	s.total = 0
	s.running = false
}

// Timed starts a stopwatch and returns a function that stops it and hands
// the elapsed time to record. Intended for defer:
//
//	defer profile.Timed(prof.RecordSymbolicFactorization)()
func Timed(record func(time.Duration)) func() {
	sw := StartTimer()
	return func() { record(sw.Stop()) }
}
