package observability

import (
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe(StageGatewayComplete, 500*time.Millisecond)
	w.Observe(StageGatewayComplete, 900*time.Millisecond)
	w.Observe(StageGatewayComplete, 700*time.Millisecond)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageGatewayComplete || s.Samples != 3 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	if s.LastMS != 700 || s.P50MS != 700 || s.P95MS != 900 || s.MaxMS != 900 {
		t.Fatalf("stats = %+v, want last=700 p50=700 p95=900 max=900", s)
	}
	if s.TargetP95MS != 8000 || s.WithinTarget == nil || !*s.WithinTarget {
		t.Fatalf("target = %d within=%v, want 8000 within", s.TargetP95MS, s.WithinTarget)
	}
}

func TestLatencyWindowKeepsMostRecent(t *testing.T) {
	w := newLatencyWindow(2)
	w.Observe(StageChatTotal, 20*time.Second)
	w.Observe(StageChatTotal, time.Second)
	w.Observe(StageChatTotal, 2*time.Second)

	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.MaxMS != 2000 {
		t.Fatalf("stats = %+v, want the two most recent samples", s)
	}
	if !*s.WithinTarget {
		t.Fatalf("WithinTarget = false after the slow sample aged out")
	}
}

func TestLatencyWindowUnknownStageHasNoTarget(t *testing.T) {
	w := newLatencyWindow(4)
	w.Observe("custom", 10*time.Millisecond)
	w.Observe("", time.Second)
	w.Observe("custom", -time.Second)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].Samples != 1 {
		t.Fatalf("Stages = %+v, want one valid sample", snap.Stages)
	}
	if snap.Stages[0].TargetP95MS != 0 || snap.Stages[0].WithinTarget != nil {
		t.Fatalf("unexpected target on custom stage: %+v", snap.Stages[0])
	}
}

func TestMetricsObserveGatewayLatency(t *testing.T) {
	m := NewMetrics("observability_test_gateway")
	m.ObserveGatewayLatency(120 * time.Millisecond)
	m.ObserveStage(StageChatTotal, 150*time.Millisecond)

	snap := m.SnapshotLatency()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	if snap.Stages[0].Stage != StageChatTotal || snap.Stages[0].LastMS != 150 {
		t.Fatalf("Stages[0] = %+v", snap.Stages[0])
	}
	if snap.Stages[1].Stage != StageGatewayComplete || snap.Stages[1].LastMS != 120 {
		t.Fatalf("Stages[1] = %+v", snap.Stages[1])
	}
}
