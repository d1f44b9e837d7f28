package alerts

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

// Alert 某个 ticker 出现新的 rejection 形态
type Alert struct {
	Ticker     string
	Trend      model.Trend
	IsImminent bool
	FoundAt    time.Time
}

func (a Alert) Title() string {
	return fmt.Sprintf("%s is %s", a.Ticker, a.Trend)
}

func (a Alert) Body() string {
	return fmt.Sprintf("%s is %s at %s.", a.Ticker, a.Trend, a.FoundAt.Format(time.TimeOnly))
}

// Tag 同一 (ticker, trend) 的通知共用一个 tag
func (a Alert) Tag() string {
	return fmt.Sprintf("Trend_%s_%s", a.Ticker, a.Trend)
}

// Sink 通知的实际投递方 (桌面通知、日志等)
type Sink interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogSink 把通知写入日志
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = service.Logger
	}
	return &LogSink{logger: logger.Sugar()}
}

func (s *LogSink) Notify(_ context.Context, a Alert) error {
	s.logger.Infof("NOTIFY [%s] %s (imminent=%t)", a.Tag(), a.Body(), a.IsImminent)
	return nil
}

// Notifier 按 (ticker, trend) 去重；rejection 结束或 ticker 被移除后重新武装
type Notifier struct {
	mu       sync.Mutex
	notified map[string]model.Trend
	sink     Sink
	logger   *zap.Logger
}

func NewNotifier(sink Sink, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = service.Logger
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Notifier{
		notified: map[string]model.Trend{},
		sink:     sink,
		logger:   logger.With(zap.String("component", "alerts")),
	}
}

// Check 返回本次快照中新出现的提醒，按 ticker 排序
func (n *Notifier) Check(s *model.Snapshot) []Alert {
	if s == nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Alert
	for _, ticker := range slices.Sorted(maps.Keys(s.Symbols)) {
		sym := s.Symbols[ticker]
		if sym == nil {
			continue
		}
		rej := sym.Rejection
		if !rej.Active() {
			delete(n.notified, ticker)
			continue
		}
		if prev, ok := n.notified[ticker]; ok && prev == rej.Trend {
			continue
		}
		n.notified[ticker] = rej.Trend
		out = append(out, Alert{
			Ticker:     ticker,
			Trend:      rej.Trend,
			IsImminent: rej.IsImminent,
			FoundAt:    time.UnixMilli(rej.FoundAt),
		})
	}

	for ticker := range n.notified {
		if _, ok := s.Symbols[ticker]; !ok {
			delete(n.notified, ticker)
		}
	}
	return out
}

// Run 消费快照流直到 ctx 结束或通道关闭
func (n *Notifier) Run(ctx context.Context, snapshots <-chan *model.Snapshot) {
	n.logger.Info("Starting rejection notifier")
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Rejection notifier stopped")
			return
		case s, ok := <-snapshots:
			if !ok {
				return
			}
			for _, a := range n.Check(s) {
				if err := n.sink.Notify(ctx, a); err != nil {
					n.logger.Warn("Failed to deliver alert", zap.String("tag", a.Tag()), zap.Error(err))
				}
			}
		}
	}
}
