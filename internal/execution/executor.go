package execution

import (
	"context"

	"options-dashboard-sync/internal/model"
)

// Executor 把本地意图发往服务端的请求/响应通道
// 调用成功只代表请求被接受，最终结果由后续推送事件确认
type Executor interface {
	// SetReplayMode 修改全局回放控制 (播放/暂停/速度)
	SetReplayMode(ctx context.Context, mode model.ReplayMode) error

	// ReloadTicker 重新加载 ticker 的行情 (回放模式下回到起点)
	ReloadTicker(ctx context.Context, ticker string) error

	// UpdatePriceLevels 用户手动覆盖支撑/阻力位
	UpdatePriceLevels(ctx context.Context, ticker string, levels []float64) error

	// ResetPriceLevels 恢复服务端计算的价位
	ResetPriceLevels(ctx context.Context, ticker string) error

	AddTicker(ctx context.Context, ticker string) error
	RemoveTicker(ctx context.Context, ticker string) error
	SetFavorite(ctx context.Context, ticker string, favorite bool) error
}
