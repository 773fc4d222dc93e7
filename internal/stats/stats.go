// Package stats keeps the process-wide upload counters served by /status.
package stats

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProcessStats is the counter registry shared by all requests. One mutex
// guards the whole group so a single Update is observed atomically.
type ProcessStats struct {
	mu       sync.Mutex
	start    time.Time
	clients  map[string]int64
	archives int64
	rules    int64
	bytes    int64
	versions map[string]any
}

// Snapshot is the /status document.
type Snapshot struct {
	StartTime         float64          `json:"start_time"`
	Uptime            string           `json:"uptime"`
	Clients           map[string]int64 `json:"clients"`
	ArchivesProcessed int64            `json:"archives_processed"`
	RulesReturned     int64            `json:"rules_returned"`
	BytesProcessed    int64            `json:"bytes_processed"`
	Versions          map[string]any   `json:"versions"`
}

// New creates the registry. versions is reported verbatim by Snapshot.
func New(start time.Time, versions map[string]any) *ProcessStats {
	if versions == nil {
		versions = map[string]any{}
	}
	return &ProcessStats{
		start:    start,
		clients:  map[string]int64{},
		versions: versions,
	}
}

// Update records one successfully assembled upload.
func (s *ProcessStats) Update(client string, size int64, rules int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client]++
	s.archives++
	s.rules += int64(rules)
	s.bytes += size
}

// Snapshot copies the counters as of now.
func (s *ProcessStats) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		StartTime:         float64(s.start.UnixNano()) / float64(time.Second),
		Uptime:            FormatUptime(now.Sub(s.start)),
		Clients:           maps.Clone(s.clients),
		ArchivesProcessed: s.archives,
		RulesReturned:     s.rules,
		BytesProcessed:    s.bytes,
		Versions:          maps.Clone(s.versions),
	}
}

// FormatUptime renders d as HH:MM:SS; hours are not wrapped at 24.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	h, rem := secs/3600, secs%3600
	return fmt.Sprintf("%02d:%02d:%02d", h, rem/60, rem%60)
}

func (s *ProcessStats) read(f func(*ProcessStats) int64) func() float64 {
	return func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return float64(f(s))
	}
}

// Register exposes the totals to Prometheus. Per-client counts stay on
// /status only; user agents are unbounded.
func (s *ProcessStats) Register(reg prometheus.Registerer) error {
	const ns = "insights_gateway"
	cs := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns, Name: "archives_processed_total", Help: "Archives evaluated and returned.",
		}, s.read(func(s *ProcessStats) int64 { return s.archives })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns, Name: "rules_returned_total", Help: "Rule reports returned to clients.",
		}, s.read(func(s *ProcessStats) int64 { return s.rules })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns, Name: "bytes_processed_total", Help: "Upload bytes of processed archives.",
		}, s.read(func(s *ProcessStats) int64 { return s.bytes })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns, Name: "uptime_seconds", Help: "Seconds since the process started.",
		}, func() float64 { return time.Since(s.start).Seconds() }),
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
