// Package xtime converts the fractional-second durations used in
// configuration and request options into time.Duration.
package xtime

import "time"

// Duration converts seconds, which may carry a fractional part, into a
// time.Duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
