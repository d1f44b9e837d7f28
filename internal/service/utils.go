package service

import (
	"fmt"
	"time"
)

// 将 time.Duration 原(1h0m0s或者5m0s)格式化为标准的 K 线周期字符串，如 "1m", "5m", "1h"
func FormatInterval(d time.Duration) string {
	// 优先处理天 (d)
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}

	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}

	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}

	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}

	// 默认或无法识别的，返回原始 Duration 的 String()
	return d.String()
}

// TimeframeLabel 服务端以秒为单位推送图表周期 (Chart.timeframe)
func TimeframeLabel(seconds int64) string {
	return FormatInterval(time.Duration(seconds) * time.Second)
}
