package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"options-dashboard-sync/internal/model"
)

func snapshotWith(rejections map[string]model.Rejection) *model.Snapshot {
	s := model.DefaultSnapshot()
	for ticker, rej := range rejections {
		s.Symbols[ticker] = &model.Symbol{Symbol: ticker, Rejection: rej}
	}
	return s
}

func bullish(ended bool) model.Rejection {
	return model.Rejection{Trend: model.TrendBullish, FoundAt: 1700000000000, Ended: ended}
}

type memorySink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (m *memorySink) Notify(_ context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return m.err
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func TestNotifier_DedupesByTickerAndTrend(t *testing.T) {
	n := NewNotifier(&memorySink{}, zap.NewNop())

	first := n.Check(snapshotWith(map[string]model.Rejection{
		"AAPL": bullish(false),
		"MSFT": {Trend: model.TrendNone},
	}))
	if len(first) != 1 || first[0].Ticker != "AAPL" || first[0].Tag() != "Trend_AAPL_Bullish" {
		t.Fatalf("unexpected alerts %+v", first)
	}

	if again := n.Check(snapshotWith(map[string]model.Rejection{"AAPL": bullish(false)})); len(again) != 0 {
		t.Errorf("same (ticker, trend) must not notify twice, got %+v", again)
	}

	flipped := n.Check(snapshotWith(map[string]model.Rejection{
		"AAPL": {Trend: model.TrendBearish, FoundAt: 1},
	}))
	if len(flipped) != 1 || flipped[0].Trend != model.TrendBearish {
		t.Errorf("a new trend should notify, got %+v", flipped)
	}
}

func TestNotifier_RearmsAfterEndAndPrune(t *testing.T) {
	n := NewNotifier(&memorySink{}, zap.NewNop())
	active := snapshotWith(map[string]model.Rejection{"AAPL": bullish(false)})

	n.Check(active)
	n.Check(snapshotWith(map[string]model.Rejection{"AAPL": bullish(true)}))
	if got := n.Check(active); len(got) != 1 {
		t.Errorf("ended rejection should re-arm, got %+v", got)
	}

	n.Check(model.DefaultSnapshot())
	if got := n.Check(active); len(got) != 1 {
		t.Errorf("pruned ticker should re-arm, got %+v", got)
	}
}

func TestAlert_Text(t *testing.T) {
	a := Alert{Ticker: "AAPL", Trend: model.TrendBearish, FoundAt: time.Date(2024, 1, 2, 9, 30, 0, 0, time.Local)}
	if a.Title() != "AAPL is Bearish" {
		t.Errorf("unexpected title %q", a.Title())
	}
	if a.Body() != "AAPL is Bearish at 09:30:00." {
		t.Errorf("unexpected body %q", a.Body())
	}
}

func TestNotifier_RunDeliversAndLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memorySink{err: errors.New("no permission")}
	n := NewNotifier(sink, zap.New(core))

	ch := make(chan *model.Snapshot, 2)
	ch <- snapshotWith(map[string]model.Rejection{"AAPL": bullish(false)})
	ch <- snapshotWith(map[string]model.Rejection{"AAPL": bullish(false), "SPY": bullish(false)})
	close(ch)

	n.Run(context.Background(), ch)

	if sink.count() != 2 {
		t.Errorf("expected 2 deliveries, got %d", sink.count())
	}
	if logs.FilterMessage("Failed to deliver alert").Len() != 2 {
		t.Error("sink failures should be logged")
	}
}

func TestNotifier_RunStopsOnCancel(t *testing.T) {
	n := NewNotifier(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, make(chan *model.Snapshot))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
