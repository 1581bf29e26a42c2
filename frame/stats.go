package frame

import (
	"runtime"
	"time"

	"github.com/edwinsyarief/mugen/logging"
)

// stats aggregates frame reports and logs rate and memory figures once per
// interval.
type stats struct {
	log            logging.Logger
	last           time.Time
	interval       time.Duration
	memStats       runtime.MemStats
	frames         int
	dropped        int
	degraded       int
	instances      int
	lastGCCount    uint32
	lastTotalAlloc uint64
}

func newStats(log logging.Logger, interval time.Duration, now time.Time) *stats {
	return &stats{log: log, interval: interval, last: now}
}

// tick records r and reports whether a line was logged.
func (s *stats) tick(r *Report, now time.Time) bool {
	if s == nil || s.interval <= 0 {
		return false
	}
	s.frames++
	s.instances += r.Instances
	if r.Dropped {
		s.dropped++
	}
	if r.Degraded {
		s.degraded++
	}
	elapsed := now.Sub(s.last)
	if elapsed < s.interval {
		return false
	}

	runtime.ReadMemStats(&s.memStats)
	secs := elapsed.Seconds()
	allocRate := float64(s.memStats.TotalAlloc-s.lastTotalAlloc) / 1024 / 1024 / secs
	s.log.Info("frame stats",
		"run", r.RunID.String(),
		"frame", r.Frame,
		"fps", float64(s.frames)/secs,
		"instances_per_frame", s.instances/s.frames,
		"dropped", s.dropped,
		"degraded", s.degraded,
		"heap_mb", float64(s.memStats.Alloc)/1024/1024,
		"alloc_mb_s", allocRate,
		"gc", s.memStats.NumGC-s.lastGCCount,
		"sys_mb", float64(s.memStats.Sys)/1024/1024,
	)

	s.last = now
	s.frames, s.dropped, s.degraded, s.instances = 0, 0, 0, 0
	s.lastGCCount = s.memStats.NumGC
	s.lastTotalAlloc = s.memStats.TotalAlloc
	return true
}
