package distribution

import (
	"sync"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

type Stats struct {
	// Calls that picked an agent, left the ticket for manual pickup, or
	// failed with an error.
	assigned   uint64
	unassigned uint64
	failed     uint64

	// Outcome counts keyed by reason.
	reasons map[string]uint64

	// Lock acquire attempts that gave up.
	lockMisses uint64

	// Avg duration of one distribution call. Calculated by a fixed size
	// sliding window.
	avgLatency time.Duration

	// A fixed size sliding window for calculating average latency.
	latencyQueue *linkedlistqueue.Queue
	windowSize   int

	lock sync.Mutex
}

type StatsSnapshot struct {
	Assigned       uint64            `json:"assigned"`
	Unassigned     uint64            `json:"unassigned"`
	Failed         uint64            `json:"failed"`
	LockMisses     uint64            `json:"lockMisses"`
	Reasons        map[string]uint64 `json:"reasons"`
	AvgLatencyMsec int64             `json:"avgLatencyMsec"`
}

func ProvideStats(config *config.Config) *Stats {
	return NewStats(*config.StatsWindowSize)
}

func NewStats(windowSize int) *Stats {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Stats{
		reasons:      make(map[string]uint64),
		latencyQueue: linkedlistqueue.New(),
		windowSize:   windowSize,
	}
}

func (s *Stats) record(result *Result, err error, latency time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch {
	case err != nil:
		s.failed++
	case result.Assigned():
		s.assigned++
	default:
		s.unassigned++
	}
	if err == nil {
		s.reasons[result.Reason]++
	}

	if s.latencyQueue.Size() >= s.windowSize {
		s.latencyQueue.Dequeue()
	}
	s.latencyQueue.Enqueue(latency)

	it := s.latencyQueue.Iterator()
	var total time.Duration
	for it.Next() {
		total += it.Value().(time.Duration)
	}
	s.avgLatency = total / time.Duration(s.latencyQueue.Size())
}

func (s *Stats) recordLockMiss() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lockMisses++
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.lock.Lock()
	defer s.lock.Unlock()

	reasons := make(map[string]uint64, len(s.reasons))
	for reason, count := range s.reasons {
		reasons[reason] = count
	}
	return StatsSnapshot{
		Assigned:       s.assigned,
		Unassigned:     s.unassigned,
		Failed:         s.failed,
		LockMisses:     s.lockMisses,
		Reasons:        reasons,
		AvgLatencyMsec: s.avgLatency.Milliseconds(),
	}
}
