package telegram

import (
	"sync"
	"time"
)

// TopicLimiter caps the number of messages the service posts into a single
// forum thread within a rolling window. Telegram throttles bots that spam a
// thread, so sends over the limit are dropped by the caller.
type TopicLimiter struct {
	mu     sync.Mutex
	sends  map[int][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewTopicLimiter(limit int, window time.Duration) *TopicLimiter {
	return &TopicLimiter{
		sends:  make(map[int][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether one more send to the given thread fits the window
// and, if it does, records it.
func (l *TopicLimiter) Allow(topicID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.sends[topicID][:0]
	for _, t := range l.sends[topicID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.limit {
		l.sends[topicID] = recent
		return false
	}
	l.sends[topicID] = append(recent, now)
	return true
}
