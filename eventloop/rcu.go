package eventloop

import "time"

// defaultRCUGracePeriod is the default multiple of a loop's poll period
// used to estimate when all read-side critical sections entered before
// a CallRCU could possibly still be in flight. It mirrors
// call_rcu_sched's coarse, conservative approach: rather than track
// individual read-side sections (as a true RCU implementation would),
// the grace period is simply "a few quiescent loop iterations from
// now" — a callback may run later than this, but per spec.md §4.K it
// must never run earlier.
const defaultRCUGracePeriod = 4

// CallRCU schedules cb to run on l's thread once a grace period has
// elapsed — long enough that any read-side critical section active at
// the time of this call is guaranteed to have completed. The grace
// period is conservative: it is sized off l's poll interval rather than
// tracking actual reader completion, so cb may run later than the
// nominal deadline (e.g. if l is busy), but never earlier.
func (l *Loop) CallRCU(cb func()) {
	period := l.pollInterval
	if period <= 0 {
		period = time.Millisecond
	}
	l.TimerAdd(period*defaultRCUGracePeriod, cb)
}
