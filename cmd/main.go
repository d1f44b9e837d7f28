package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"options-dashboard-sync/internal/alerts"
	"options-dashboard-sync/internal/api"
	"options-dashboard-sync/internal/execution"
	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
	"options-dashboard-sync/internal/state"
	"options-dashboard-sync/pkg/ta"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := service.LoadConfig("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := service.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer service.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 状态引擎 (可选：补算缺失指标)
	engineOpts := []state.Option{state.WithLogger(service.Logger)}
	if cfg.Indicators.Backfill {
		calc := ta.NewCalculator(ta.Config{
			RSIPeriod: cfg.Indicators.RSIPeriod,
			MAPeriod:  cfg.Indicators.MAPeriod,
			BBPeriod:  cfg.Indicators.BBPeriod,
			ATRPeriod: cfg.Indicators.ATRPeriod,
		}, service.Logger.Sugar())
		engineOpts = append(engineOpts, state.WithEnricher(calc.EnrichEvent))
	}
	engine := state.NewEngine(engineOpts...)

	// 2. 请求/响应通道
	rest, err := execution.NewRESTExecutor(&execution.RESTConfig{BaseURL: cfg.Server.RESTURL}, service.Logger)
	if err != nil {
		service.Logger.Fatal("Failed to create REST executor", zap.Error(err))
	}
	executor := execution.NewLocalExecutor(rest, engine, service.Logger)

	// 3. 推送通道：消息与连接状态在同一个分发 goroutine 上按顺序进入引擎
	connector := api.Open(cfg.Server.WSURL,
		func(ev model.Event) { engine.Dispatch(ev) },
		api.WithLogger(service.Logger),
		api.WithReconnectDelay(cfg.Channel.ReconnectDelay),
		api.WithHeartbeatTimeout(cfg.Channel.HeartbeatTimeout),
		api.WithHandshakeTimeout(cfg.Channel.HandshakeTimeout),
		api.WithReadLimit(cfg.Channel.ReadLimit),
		api.WithStatusHandler(func(connected bool) {
			engine.Dispatch(model.ConnectionChanged(connected))
		}),
	)

	var wg conc.WaitGroup

	// 4. rejection 提醒
	if cfg.Alerts.Enabled {
		notifier := alerts.NewNotifier(alerts.NewLogSink(service.Logger), service.Logger)
		wg.Go(func() { notifier.Run(ctx, engine.GetSnapshotChannel()) })
	}

	// 5. 请求服务端跟踪配置中的 ticker，结果通过 UPDATE_CHART 推送确认
	wg.Go(func() {
		for _, ticker := range cfg.Watchlist {
			if err := executor.AddTicker(ctx, ticker); err != nil {
				service.Logger.Warn("Failed to add ticker", zap.String("ticker", ticker), zap.Error(err))
			}
		}
	})

	service.Logger.Info("Dashboard sync started",
		zap.String("ws", cfg.Server.WSURL),
		zap.String("rest", cfg.Server.RESTURL),
		zap.Int("watchlist", len(cfg.Watchlist)))

	<-ctx.Done()
	service.Logger.Info("Shutting down...")

	connector.Close()
	select {
	case <-connector.Done():
	case <-time.After(shutdownTimeout):
		service.Logger.Warn("Timed out waiting for websocket to close")
	}
	wg.Wait()

	snap := engine.Snapshot()
	service.Logger.Info("Stopped",
		zap.Bool("connected", snap.Connected),
		zap.Int("symbols", len(snap.Symbols)),
		zap.Int("quotes", len(snap.Quotes)))
}
