package util

import "time"

// Clock supplies time to the pipeline: backoff waits in the publisher and
// submission timestamps in the consumer. Tests swap in a fake.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }
