package verify

import (
	"sync"
	"time"
)

// Quality is a coarse rating of recent connection latency.
type Quality string

const (
	QualityGood Quality = "good"
	QualityFair Quality = "fair"
	QualityPoor Quality = "poor"
)

const (
	goodRTT     = 150 * time.Millisecond
	fairRTT     = 600 * time.Millisecond
	sampleCount = 8
)

// QualityTracker rates the connection from recent round-trip samples.
// Without samples the connection is rated fair.
type QualityTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
}

func NewQualityTracker() *QualityTracker {
	return &QualityTracker{samples: make([]time.Duration, 0, sampleCount)}
}

func (q *QualityTracker) Record(rtt time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.samples) < sampleCount {
		q.samples = append(q.samples, rtt)
		return
	}
	q.samples[q.next] = rtt
	q.next = (q.next + 1) % sampleCount
}

// RecordFailure counts a failed round trip as a slow one.
func (q *QualityTracker) RecordFailure() {
	q.Record(2 * fairRTT)
}

func (q *QualityTracker) Quality() Quality {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.samples) == 0 {
		return QualityFair
	}
	var sum time.Duration
	for _, s := range q.samples {
		sum += s
	}
	switch avg := sum / time.Duration(len(q.samples)); {
	case avg < goodRTT:
		return QualityGood
	case avg < fairRTT:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Scale adapts a base timeout to the quality: halved when good, doubled
// when poor.
func (q Quality) Scale(d time.Duration) time.Duration {
	switch q {
	case QualityGood:
		return d / 2
	case QualityPoor:
		return d * 2
	default:
		return d
	}
}
