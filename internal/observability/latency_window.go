package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// StageStats summarizes the recent samples of one relay stage: a whole route,
// or the translation call for one language group.
type StageStats struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// Indicator counts discrete relay events such as dropped frames or
// translation fallbacks since process start.
type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// LatencySnapshot is the body of /v1/perf/latency.
type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators"`
}

// latencyWindow keeps the last size durations per stage.
type latencyWindow struct {
	mu         sync.Mutex
	size       int
	stages     map[string]*durations
	indicators map[string]int
}

// durations is a bounded ring; seen counts every sample ever added.
type durations struct {
	buf  []time.Duration
	seen int
}

func (d *durations) add(v time.Duration, size int) {
	if len(d.buf) < size {
		d.buf = append(d.buf, v)
	} else {
		d.buf[d.seen%size] = v
	}
	d.seen++
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:       size,
		stages:     make(map[string]*durations),
		indicators: make(map[string]int),
	}
}

func (w *latencyWindow) Observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ring, ok := w.stages[stage]
	if !ok {
		ring = &durations{}
		w.stages[stage] = ring
	}
	ring.add(d, w.size)
}

func (w *latencyWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

// Snapshot returns stages and indicators sorted by name.
func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	stages := make([]StageStats, 0, len(w.stages))
	for name, ring := range w.stages {
		sorted := append([]time.Duration(nil), ring.buf...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum time.Duration
		for _, v := range sorted {
			sum += v
		}
		stages = append(stages, StageStats{
			Stage:   name,
			Samples: len(sorted),
			AvgMS:   millis(sum / time.Duration(len(sorted))),
			P50MS:   millis(nearestRank(sorted, 0.50)),
			P95MS:   millis(nearestRank(sorted, 0.95)),
			MaxMS:   millis(sorted[len(sorted)-1]),
		})
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })

	indicators := make([]Indicator, 0, len(w.indicators))
	for name, n := range w.indicators {
		indicators = append(indicators, Indicator{Name: name, Count: n})
	}
	sort.Slice(indicators, func(i, j int) bool { return indicators[i].Name < indicators[j].Name })

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      stages,
		Indicators:  indicators,
	}
}

// nearestRank picks the smallest sample covering fraction q of sorted.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(q*float64(len(sorted)) + 0.999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
