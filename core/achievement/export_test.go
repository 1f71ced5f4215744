package achievement

import "time"

// SetClock swaps the scheduler's time sources.
func (s *Scheduler) SetClock(now func() time.Time, after func(time.Duration) <-chan time.Time) {
	s.now = now
	s.after = after
}

// SetNow swaps the clock used to stamp records and returns a function restoring it.
func SetNow(now func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = now
	return func() { nowFunc = orig }
}
