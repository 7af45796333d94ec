// Package window holds the per-key counters behind the two limiting strategies.
// Counters are plain values with no locking and no I/O; callers serialize access per key.
package window

import "time"

// Sliding records accepted events for one key as unix-millisecond timestamps.
// Every retained timestamp lies within the trailing window ending at the last check.
type Sliding struct {
	stamps []int64
}

// Allow purges timestamps older than now-window and accepts the event if fewer than
// limit remain. A rejected event leaves the retained timestamps untouched.
func (s *Sliding) Allow(now time.Time, limit int, window time.Duration) (bool, int) {
	ms := now.UnixMilli()
	s.purge(ms - window.Milliseconds())
	if limit <= 0 || len(s.stamps) >= limit {
		return false, 0
	}
	remaining := limit - len(s.stamps) - 1
	s.stamps = append(s.stamps, ms)
	return true, remaining
}

// RetryAfter returns how long until the oldest retained timestamp drops out of the window,
// freeing one slot. The result never exceeds window; zero means nothing is retained.
func (s *Sliding) RetryAfter(now time.Time, window time.Duration) time.Duration {
	if len(s.stamps) == 0 {
		return 0
	}
	oldest := s.stamps[0]
	for _, ts := range s.stamps[1:] {
		if ts < oldest {
			oldest = ts
		}
	}
	return SlotFreesIn(oldest, now.UnixMilli(), window)
}

// SlotFreesIn is the time until a timestamp at oldestMs leaves the window ending at nowMs.
// The purge bound is inclusive, so the timestamp goes one millisecond after oldest+window.
// The result is clamped to [1ms, window].
func SlotFreesIn(oldestMs, nowMs int64, window time.Duration) time.Duration {
	span := window.Milliseconds()
	wait := oldestMs + span + 1 - nowMs
	if wait > span {
		wait = span
	}
	if wait < 1 {
		wait = 1
	}
	return time.Duration(wait) * time.Millisecond
}

// Len returns the number of retained timestamps.
func (s *Sliding) Len() int {
	return len(s.stamps)
}

// Stale reports whether no timestamp falls inside the window ending at now.
func (s *Sliding) Stale(now time.Time, window time.Duration) bool {
	cutoff := now.UnixMilli() - window.Milliseconds()
	for _, ts := range s.stamps {
		if ts >= cutoff {
			return false
		}
	}
	return true
}

// purge drops every timestamp strictly before cutoff, keeping order.
func (s *Sliding) purge(cutoff int64) {
	kept := s.stamps[:0]
	for _, ts := range s.stamps {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	// release the tail so dropped entries do not pin the backing array forever
	if len(kept) == 0 {
		s.stamps = nil
		return
	}
	s.stamps = kept
}

// Cooldown tracks the last accepted event for one key. The zero value means no event
// was ever accepted (epoch zero).
type Cooldown struct {
	last int64
}

// Allow accepts the event when at least cooldown has elapsed since the last accepted
// one. On acceptance it returns the full cooldown; on rejection the time still to wait.
// Negative elapsed time (clock moved backwards) counts as zero.
func (c *Cooldown) Allow(now time.Time, cooldown time.Duration) (bool, time.Duration) {
	ms := now.UnixMilli()
	elapsed := ms - c.last
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= cooldown.Milliseconds() {
		c.last = ms
		return true, cooldown
	}
	return false, cooldown - time.Duration(elapsed)*time.Millisecond
}

// Stale reports whether the cooldown has fully elapsed, i.e. dropping the counter
// cannot change any future verdict.
func (c *Cooldown) Stale(now time.Time, cooldown time.Duration) bool {
	return now.UnixMilli()-c.last >= cooldown.Milliseconds()
}

// CeilSeconds rounds d up to whole seconds. Non-positive durations yield zero.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
