package drag

import (
	"sync"

	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

// 止损/止盈标记名
const (
	MarkerStopLoss     = "SL"
	MarkerTargetProfit = "TP"
)

// Bracket 一组止损与止盈价格
type Bracket struct {
	Direction    model.Direction
	StopLoss     float64
	TargetProfit float64
}

// NewBracket orderType 可以是 long/short 或期权类型 CALL/PUT
func NewBracket(orderType string, stopLoss, targetProfit float64) (Bracket, error) {
	dir, err := model.ParseDirection(orderType)
	if err != nil {
		return Bracket{}, err
	}
	return Bracket{Direction: dir, StopLoss: stopLoss, TargetProfit: targetProfit}, nil
}

// Valid 多头要求 SL < last < TP，空头要求 SL > last > TP
func (b Bracket) Valid(last float64) bool {
	switch b.Direction {
	case model.DirLong:
		return b.StopLoss < last && last < b.TargetProfit
	case model.DirShort:
		return b.StopLoss > last && last > b.TargetProfit
	}
	return false
}

// Markers 供 Controller.SetMarkers 使用
func (b Bracket) Markers() map[string]float64 {
	return map[string]float64{
		MarkerStopLoss:     b.StopLoss,
		MarkerTargetProfit: b.TargetProfit,
	}
}

// LastPriceFunc 返回当前最新价，没有报价时 ok 为 false
type LastPriceFunc func() (price float64, ok bool)

// LastPriceOf 从快照读取 ticker 的最新价：优先报价的 last_price，否则取第一个图表最后一根 K 线的收盘价
func LastPriceOf(snapshot func() *model.Snapshot, ticker string) LastPriceFunc {
	return func() (float64, bool) {
		s := snapshot()
		if s == nil {
			return 0, false
		}
		if q, ok := s.Quotes[ticker]; ok && q != nil && q.LastPrice != nil {
			return *q.LastPrice, true
		}
		sym, ok := s.Symbols[ticker]
		if !ok || sym == nil || len(sym.Charts) == 0 {
			return 0, false
		}
		prices := sym.Charts[0].Prices
		if len(prices) == 0 {
			return 0, false
		}
		return prices[len(prices)-1].Close, true
	}
}

// BracketArbiter 拖动 SL/TP 时的仲裁者，拒绝会使止损与止盈跑到最新价同一侧的修改
type BracketArbiter struct {
	mu      sync.Mutex
	bracket Bracket
	last    LastPriceFunc
	logger  *zap.Logger
}

func NewBracketArbiter(bracket Bracket, last LastPriceFunc, logger *zap.Logger) *BracketArbiter {
	if logger == nil {
		logger = service.Logger
	}
	return &BracketArbiter{
		bracket: bracket,
		last:    last,
		logger:  logger.With(zap.String("component", "bracket")),
	}
}

// Update 满足 UpdateHandler 签名
func (a *BracketArbiter) Update(name string, price float64) bool {
	last, ok := a.last()
	if !ok {
		a.logger.Debug("No last price, rejecting bracket update", zap.String("line", name))
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.bracket
	switch name {
	case MarkerStopLoss:
		next.StopLoss = price
	case MarkerTargetProfit:
		next.TargetProfit = price
	default:
		return false
	}
	if !next.Valid(last) {
		return false
	}
	a.bracket = next
	return true
}

func (a *BracketArbiter) Bracket() Bracket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bracket
}
