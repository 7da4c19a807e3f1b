package core

import "time"

// WindowStart aligns now to the start of its fixed window, in epoch seconds.
// Callers compute it per request from the wall clock; it is never cached.
func WindowStart(now time.Time, windowSeconds int64) int64 {
	if windowSeconds <= 0 {
		return now.Unix()
	}
	secs := now.Unix()
	start := secs - secs%windowSeconds
	if secs < 0 && secs%windowSeconds != 0 {
		start -= windowSeconds
	}
	return start
}

// ResetAt is the epoch second at which the window containing now ends.
func ResetAt(now time.Time, windowSeconds int64) int64 {
	return WindowStart(now, windowSeconds) + windowSeconds
}

// RetryAfter is the wait until resetAt, floored at one second.
func RetryAfter(resetAt int64, now time.Time) time.Duration {
	wait := time.Unix(resetAt, 0).Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Truncate(time.Second)
}
