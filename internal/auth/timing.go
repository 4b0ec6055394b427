package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads authentication failures to a uniform duration so callers
// cannot distinguish "no such user" from "wrong password" by response time.
type TimingDelay struct {
	base           time.Duration
	jitter         time.Duration
	delayOnSuccess bool
}

// NewTimingDelay creates a delay of base plus up to jitter of random padding.
func NewTimingDelay(base, jitter time.Duration, delayOnSuccess bool) *TimingDelay {
	return &TimingDelay{base: base, jitter: jitter, delayOnSuccess: delayOnSuccess}
}

func (td *TimingDelay) target() time.Duration {
	delay := td.base
	if td.jitter > 0 {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err == nil {
			delay += time.Duration(binary.BigEndian.Uint64(buf) % uint64(td.jitter))
		}
	}
	return delay
}

// Wait sleeps for the padded duration. Success skips the delay unless
// configured otherwise.
func (td *TimingDelay) Wait(success bool) {
	if success && !td.delayOnSuccess {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps only for the remainder of the padded duration measured
// from startTime, so work already done counts toward the target.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.delayOnSuccess {
		return
	}
	if remaining := td.target() - time.Since(startTime); remaining > 0 {
		time.Sleep(remaining)
	}
}
