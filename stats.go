package extmem

import (
	"sync/atomic"
	"time"
)

// latencyBuckets are the histogram boundaries, in nanoseconds, used for
// both read and write latency tracking. Logarithmic spacing from 1us
// to 10s, matching the teacher's Metrics histogram.
var latencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Stats accumulates I/O counters, a latency histogram, and outstanding-
// request bookkeeping for one disk. A BlockManager keeps one Stats per
// disk and exposes both the per-disk breakdown and a merged aggregate
// through ManagerStats. All fields are safe for concurrent use.
type Stats struct {
	readOps, writeOps       atomic.Uint64
	readBytes, writeBytes   atomic.Uint64
	readErrors, writeErrors atomic.Uint64

	totalLatencyNs atomic.Uint64
	opCount        atomic.Uint64
	latencyHist    [numLatencyBuckets]atomic.Uint64

	ioWaitNs    atomic.Uint64
	allocWaitNs atomic.Uint64

	outstanding     atomic.Int64
	peakOutstanding atomic.Int64

	startedAt int64
}

// NewStats returns a zeroed Stats with its clock started now.
func NewStats() *Stats {
	return &Stats{startedAt: nowUnixNano()}
}

// RecordRead records a completed (or failed) read transfer of n bytes
// that took latency to serve.
func (s *Stats) RecordRead(n uint64, latency time.Duration, success bool) {
	s.readOps.Add(1)
	if success {
		s.readBytes.Add(n)
	} else {
		s.readErrors.Add(1)
	}
	s.recordLatency(latency)
}

// RecordWrite records a completed (or failed) write transfer of n bytes
// that took latency to serve.
func (s *Stats) RecordWrite(n uint64, latency time.Duration, success bool) {
	s.writeOps.Add(1)
	if success {
		s.writeBytes.Add(n)
	} else {
		s.writeErrors.Add(1)
	}
	s.recordLatency(latency)
}

func (s *Stats) recordLatency(d time.Duration) {
	ns := uint64(d.Nanoseconds())
	s.totalLatencyNs.Add(ns)
	s.opCount.Add(1)
	for i, bucket := range latencyBuckets {
		if ns <= bucket {
			s.latencyHist[i].Add(1)
		}
	}
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets, the way
// the teacher's Metrics.calculatePercentile does.
func (s *Stats) calculatePercentile(percentile float64) uint64 {
	total := s.opCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range latencyBuckets {
		count := s.latencyHist[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = s.latencyHist[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return latencyBuckets[numLatencyBuckets-1]
}

// RecordIOWait adds d to the cumulative time callers spent blocked in
// Request.Wait.
func (s *Stats) RecordIOWait(d time.Duration) {
	s.ioWaitNs.Add(uint64(d.Nanoseconds()))
}

// RecordAllocWait adds d to the cumulative time spent blocked waiting
// for a free buffer in a ReadWritePool.
func (s *Stats) RecordAllocWait(d time.Duration) {
	s.allocWaitNs.Add(uint64(d.Nanoseconds()))
}

// RequestStarted marks one more request outstanding, updating the peak.
func (s *Stats) RequestStarted() {
	n := s.outstanding.Add(1)
	for {
		peak := s.peakOutstanding.Load()
		if n <= peak || s.peakOutstanding.CompareAndSwap(peak, n) {
			return
		}
	}
}

// RequestFinished marks one outstanding request as complete.
func (s *Stats) RequestFinished() {
	s.outstanding.Add(-1)
}

// Snapshot is a point-in-time copy of a Stats for reporting.
type Snapshot struct {
	ReadOps, WriteOps       uint64
	ReadBytes, WriteBytes   uint64
	ReadErrors, WriteErrors uint64

	AvgLatency    time.Duration
	LatencyP50    time.Duration
	LatencyP99    time.Duration
	LatencyP999   time.Duration
	LatencyHist   [numLatencyBuckets]uint64

	IOWait    time.Duration
	AllocWait time.Duration

	Outstanding     int64
	PeakOutstanding int64

	UptimeNs int64
}

// Snapshot captures the current counter values and derives the latency
// percentiles and histogram copy from them.
func (s *Stats) Snapshot() Snapshot {
	opCount := s.opCount.Load()
	snap := Snapshot{
		ReadOps:         s.readOps.Load(),
		WriteOps:        s.writeOps.Load(),
		ReadBytes:       s.readBytes.Load(),
		WriteBytes:      s.writeBytes.Load(),
		ReadErrors:      s.readErrors.Load(),
		WriteErrors:     s.writeErrors.Load(),
		IOWait:          time.Duration(s.ioWaitNs.Load()),
		AllocWait:       time.Duration(s.allocWaitNs.Load()),
		Outstanding:     s.outstanding.Load(),
		PeakOutstanding: s.peakOutstanding.Load(),
		UptimeNs:        nowUnixNano() - s.startedAt,
	}
	if opCount > 0 {
		snap.AvgLatency = time.Duration(s.totalLatencyNs.Load() / opCount)
		snap.LatencyP50 = time.Duration(s.calculatePercentile(0.50))
		snap.LatencyP99 = time.Duration(s.calculatePercentile(0.99))
		snap.LatencyP999 = time.Duration(s.calculatePercentile(0.999))
	}
	for i := range latencyBuckets {
		snap.LatencyHist[i] = s.latencyHist[i].Load()
	}
	return snap
}

// Reset zeroes every counter except Outstanding, which keeps counting
// live requests; PeakOutstanding restarts from the current Outstanding.
// Not safe to call concurrently with in-flight requests that will still
// report against this Stats.
func (s *Stats) Reset() {
	s.readOps.Store(0)
	s.writeOps.Store(0)
	s.readBytes.Store(0)
	s.writeBytes.Store(0)
	s.readErrors.Store(0)
	s.writeErrors.Store(0)
	s.totalLatencyNs.Store(0)
	s.opCount.Store(0)
	for i := range s.latencyHist {
		s.latencyHist[i].Store(0)
	}
	s.ioWaitNs.Store(0)
	s.allocWaitNs.Store(0)
	s.peakOutstanding.Store(s.outstanding.Load())
	s.startedAt = nowUnixNano()
}

// mergeSnapshot folds other's counters into a running aggregate
// snapshot. Histogram buckets are cumulative counts against the same
// shared latencyBuckets boundaries across every disk, so summing them
// bucket-by-bucket yields a valid combined histogram; percentiles are
// then recomputed from the merged histogram rather than averaged.
func mergeSnapshot(agg *Snapshot, other Snapshot) {
	agg.ReadOps += other.ReadOps
	agg.WriteOps += other.WriteOps
	agg.ReadBytes += other.ReadBytes
	agg.WriteBytes += other.WriteBytes
	agg.ReadErrors += other.ReadErrors
	agg.WriteErrors += other.WriteErrors
	agg.IOWait += other.IOWait
	agg.AllocWait += other.AllocWait
	agg.Outstanding += other.Outstanding
	if other.PeakOutstanding > agg.PeakOutstanding {
		agg.PeakOutstanding = other.PeakOutstanding
	}
	if other.UptimeNs > agg.UptimeNs {
		agg.UptimeNs = other.UptimeNs
	}
	for i := range agg.LatencyHist {
		agg.LatencyHist[i] += other.LatencyHist[i]
	}
}

// percentileFromHistogram mirrors Stats.calculatePercentile but
// operates on an already-merged histogram and op count, for computing
// ManagerStats.Aggregate's percentiles after per-disk histograms have
// been summed.
func percentileFromHistogram(hist [numLatencyBuckets]uint64, totalOps uint64, percentile float64) time.Duration {
	if totalOps == 0 {
		return 0
	}
	target := uint64(float64(totalOps) * percentile)
	prevBucket := uint64(0)
	for i, bucket := range latencyBuckets {
		count := hist[i]
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = hist[i-1]
			}
			if count == prevCount {
				return time.Duration(bucket)
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return time.Duration(prevBucket + uint64(fraction*float64(bucket-prevBucket)))
		}
		prevBucket = bucket
	}
	return time.Duration(latencyBuckets[numLatencyBuckets-1])
}

// ScopedTimer starts a clock on construction and adds the elapsed time
// to record when Stop is called. Meant to be used with defer so every
// exit path, including an early return on error, is accounted for.
type ScopedTimer struct {
	start  time.Time
	record func(time.Duration)
}

// StartTimer begins timing; record is invoked once, from Stop.
func StartTimer(record func(time.Duration)) *ScopedTimer {
	return &ScopedTimer{start: time.Now(), record: record}
}

// Stop records the elapsed time since the timer was started.
func (t *ScopedTimer) Stop() {
	if t.record != nil {
		t.record(time.Since(t.start))
	}
}

func nowUnixNano() int64 { return time.Now().UnixNano() }
