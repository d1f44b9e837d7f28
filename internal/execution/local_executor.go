package execution

import (
	"context"

	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

// Dispatcher 本地状态写入入口 (state.Engine)
type Dispatcher interface {
	Dispatch(ev model.Event) *model.Snapshot
}

// LocalExecutor 回放控制先写入本地状态再转发，界面无需等服务端确认
// 其他意图原样转发，结果由推送事件确认
type LocalExecutor struct {
	Executor
	store  Dispatcher
	logger *zap.Logger
}

func NewLocalExecutor(remote Executor, store Dispatcher, logger *zap.Logger) *LocalExecutor {
	if logger == nil {
		logger = service.Logger
	}
	return &LocalExecutor{
		Executor: remote,
		store:    store,
		logger:   logger.With(zap.String("executor", "Local")),
	}
}

func (e *LocalExecutor) SetReplayMode(ctx context.Context, mode model.ReplayMode) error {
	e.store.Dispatch(model.ReplayModeSet(&mode))
	if err := e.Executor.SetReplayMode(ctx, mode); err != nil {
		e.logger.Warn("Failed to update replay mode", zap.String("symbol", mode.Symbol), zap.Error(err))
		return err
	}
	return nil
}
