package observability

import (
	"sort"
	"sync"
	"time"
)

const (
	StageChatTotal       = "chat_total"
	StageGatewayComplete = "gateway_complete"
)

// p95 budgets for /perf/latency; a stage without one reports 0.
var stageTargets = map[string]time.Duration{
	StageGatewayComplete: 8 * time.Second,
	StageChatTotal:       9 * time.Second,
}

type StageStats struct {
	Stage        string `json:"stage"`
	Samples      int    `json:"samples"`
	LastMS       int64  `json:"last_ms"`
	P50MS        int64  `json:"p50_ms"`
	P95MS        int64  `json:"p95_ms"`
	MaxMS        int64  `json:"max_ms"`
	TargetP95MS  int64  `json:"target_p95_ms,omitempty"`
	WithinTarget *bool  `json:"within_target,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// latencyWindow remembers the last size durations observed per stage.
type latencyWindow struct {
	mu     sync.Mutex
	size   int
	stages map[string][]time.Duration
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{size: size, stages: make(map[string][]time.Duration)}
}

func (w *latencyWindow) Observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	samples := append(w.stages[stage], d)
	if len(samples) > w.size {
		samples = samples[len(samples)-w.size:]
	}
	w.stages[stage] = samples
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.stages)),
	}
	for stage, samples := range w.stages {
		if len(samples) == 0 {
			continue
		}
		sorted := append([]time.Duration(nil), samples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		stats := StageStats{
			Stage:   stage,
			Samples: len(sorted),
			LastMS:  samples[len(samples)-1].Milliseconds(),
			P50MS:   nearestRank(sorted, 50).Milliseconds(),
			P95MS:   nearestRank(sorted, 95).Milliseconds(),
			MaxMS:   sorted[len(sorted)-1].Milliseconds(),
		}
		if target, ok := stageTargets[stage]; ok {
			within := nearestRank(sorted, 95) <= target
			stats.TargetP95MS = target.Milliseconds()
			stats.WithinTarget = &within
		}
		snap.Stages = append(snap.Stages, stats)
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })
	return snap
}

// nearestRank picks the smallest sample with at least pct percent of the
// window at or below it. sorted must be ascending and non-empty.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
