package ta

import (
	"math"
	"slices"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

// Config 指标周期
type Config struct {
	RSIPeriod int
	MAPeriod  int // EMA
	BBPeriod  int // 布林带 (WMA, 2 倍标准差)
	ATRPeriod int
}

func DefaultConfig() Config {
	return Config{RSIPeriod: 14, MAPeriod: 20, BBPeriod: 20, ATRPeriod: 14}
}

// Calculator 为服务端缺失的指标补算数值，从不覆盖已有的值
type Calculator struct {
	cfg    Config
	Logger *zap.SugaredLogger
}

// NewCalculator 初始化技术指标计算器
func NewCalculator(cfg Config, logger *zap.SugaredLogger) *Calculator {
	def := DefaultConfig()
	if cfg.RSIPeriod < 2 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.MAPeriod < 2 {
		cfg.MAPeriod = def.MAPeriod
	}
	if cfg.BBPeriod < 2 {
		cfg.BBPeriod = def.BBPeriod
	}
	if cfg.ATRPeriod < 1 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Calculator{cfg: cfg, Logger: logger}
}

// EnrichEvent 满足 state.Enricher，只处理 UPDATE_CHART
func (c *Calculator) EnrichEvent(ev model.Event) model.Event {
	if ev.Action != model.ActionUpdateChart || ev.Symbol == nil {
		return ev
	}
	ev.Symbol = c.EnrichSymbol(ev.Symbol)
	return ev
}

// EnrichSymbol 写时复制：没有任何补算时返回原指针
// ATR 取最后一个图表 (最大周期) 的最新值
func (c *Calculator) EnrichSymbol(sym *model.Symbol) *model.Symbol {
	var charts []model.Chart
	var filled []string
	for i := range sym.Charts {
		prices, changed := c.enrichPrices(sym.Charts[i].Prices)
		if !changed {
			continue
		}
		if charts == nil {
			charts = slices.Clone(sym.Charts)
		}
		charts[i].Prices = prices
		filled = append(filled, service.TimeframeLabel(sym.Charts[i].Timeframe))
	}

	atr := sym.ATR
	if atr == nil && len(sym.Charts) > 0 {
		if v, ok := c.latestATR(sym.Charts[len(sym.Charts)-1].Prices); ok {
			atr = &v
		}
	}

	if charts == nil && atr == sym.ATR {
		return sym
	}
	out := *sym
	if charts != nil {
		out.Charts = charts
	}
	out.ATR = atr
	c.Logger.Debugf("Backfilled indicators for %s: charts=%v atr=%t", sym.Symbol, filled, atr != sym.ATR)
	return &out
}

func (c *Calculator) enrichPrices(prices []model.Price) ([]model.Price, bool) {
	if !needsBackfill(prices) {
		return prices, false
	}

	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}

	rsi := series(closes, c.cfg.RSIPeriod, c.cfg.RSIPeriod, func() []float64 {
		return talib.Rsi(closes, c.cfg.RSIPeriod)
	})
	ma := series(closes, c.cfg.MAPeriod-1, c.cfg.MAPeriod, func() []float64 {
		return talib.Ema(closes, c.cfg.MAPeriod)
	})
	bbw := series(closes, c.cfg.BBPeriod-1, c.cfg.BBPeriod, func() []float64 {
		upper, middle, lower := talib.BBands(closes, c.cfg.BBPeriod, 2, 2, talib.WMA)
		out := make([]float64, len(closes))
		for i := range out {
			out[i] = math.NaN()
			if middle[i] != 0 {
				out[i] = 100 * (upper[i] - lower[i]) / middle[i]
			}
		}
		return out
	})

	out := slices.Clone(prices)
	changed := false
	for i := range out {
		if out[i].RSI == nil && valid(rsi, i) {
			out[i].RSI = model.Float(rsi.values[i])
			changed = true
		}
		if out[i].MA == nil && valid(ma, i) {
			out[i].MA = model.Float(ma.values[i])
			changed = true
		}
		if out[i].BBW == nil && valid(bbw, i) {
			out[i].BBW = model.Float(bbw.values[i])
			changed = true
		}
	}
	if !changed {
		return prices, false
	}
	return out, true
}

func (c *Calculator) latestATR(prices []model.Price) (float64, bool) {
	n := len(prices)
	if n <= c.cfg.ATRPeriod {
		return 0, false
	}
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, p := range prices {
		high[i], low[i], closes[i] = p.High, p.Low, p.Close
	}
	atr := talib.Atr(high, low, closes, c.cfg.ATRPeriod)
	v := atr[n-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// indicator 指标序列，下标小于 lookback 的值无效
type indicator struct {
	values   []float64
	lookback int
}

func series(closes []float64, lookback, period int, compute func() []float64) *indicator {
	if len(closes) <= lookback || period < 1 {
		return nil
	}
	return &indicator{values: compute(), lookback: lookback}
}

func valid(ind *indicator, i int) bool {
	if ind == nil || i < ind.lookback || i >= len(ind.values) {
		return false
	}
	v := ind.values[i]
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func needsBackfill(prices []model.Price) bool {
	for _, p := range prices {
		if p.RSI == nil || p.MA == nil || p.BBW == nil {
			return true
		}
	}
	return false
}
