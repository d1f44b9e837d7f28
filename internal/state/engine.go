package state

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

// Enricher 在事件进入 reducer 之前对其加工 (例如补算指标)，必须不修改原事件内容
type Enricher func(model.Event) model.Event

// Engine 持有唯一权威的 Snapshot，是它唯一的写入者
type Engine struct {
	mu       sync.Mutex
	snapshot *model.Snapshot
	enricher Enricher
	logger   *zap.Logger

	snapshotChan chan *model.Snapshot // 最新快照广播通道 (只保留最新值)
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = service.OrNop(logger) }
}

func WithEnricher(enricher Enricher) Option {
	return func(e *Engine) { e.enricher = enricher }
}

// WithInitialSnapshot 默认从 model.DefaultSnapshot() 开始
func WithInitialSnapshot(s *model.Snapshot) Option {
	return func(e *Engine) {
		if s != nil {
			e.snapshot = s
		}
	}
}

// NewEngine 创建并初始化 Engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		snapshot:     model.DefaultSnapshot(),
		logger:       service.Logger,
		snapshotChan: make(chan *model.Snapshot, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "state"))
	return e
}

// Dispatch 串行应用一个事件并返回新的快照
// 无法应用的事件只记录诊断日志，状态保持不变
func (e *Engine) Dispatch(ev model.Event) *model.Snapshot {
	if e.enricher != nil {
		ev = e.enricher(ev)
	}

	e.mu.Lock()
	prev := e.snapshot
	next, err := Reduce(prev, ev)
	e.snapshot = next
	if next != prev {
		e.publish(next)
	}
	e.mu.Unlock()

	if err != nil {
		e.logDiagnostic(ev, err)
	}
	return next
}

// DispatchAll 按顺序应用一批事件
func (e *Engine) DispatchAll(events ...model.Event) *model.Snapshot {
	var s *model.Snapshot
	for _, ev := range events {
		s = e.Dispatch(ev)
	}
	if s == nil {
		return e.Snapshot()
	}
	return s
}

// Snapshot 当前快照，调用方只读
func (e *Engine) Snapshot() *model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// GetSnapshotChannel 供下游 (例如 alerts) 消费最新快照
// 只有一个消费者；消费慢时中间状态会被跳过，但总能拿到最新值
func (e *Engine) GetSnapshotChannel() <-chan *model.Snapshot {
	return e.snapshotChan
}

// publish 调用方持有 e.mu，因此替换旧值与写入之间没有其他写者
func (e *Engine) publish(s *model.Snapshot) {
	select {
	case e.snapshotChan <- s:
		return
	default:
	}

	// 通道已满：丢弃旧快照再写入
	select {
	case <-e.snapshotChan:
	default:
	}
	select {
	case e.snapshotChan <- s:
	default:
		e.logger.Warn("Snapshot channel full! Dropping snapshot.")
	}
}

func (e *Engine) logDiagnostic(ev model.Event, err error) {
	switch {
	case errors.Is(err, ErrUnknownAction):
		e.logger.Warn("Unexpected action", zap.String("action", string(ev.Action)))
	default:
		e.logger.Warn("Dropped event", zap.String("action", string(ev.Action)), zap.Error(err))
	}
}
