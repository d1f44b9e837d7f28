package model

// Account 服务端分配的连接账户信息
type Account struct {
	WsID    int64   `json:"ws_id"`
	Number  string  `json:"number"`
	Balance float64 `json:"balance"`
}

// Price 代表一根 K 线，可选字段由服务端或 pkg/ta 补算
type Price struct {
	Time   int64    `json:"time"` // 秒级时间戳，同一 Chart 内严格递增
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume float64  `json:"volume"`
	RSI    *float64 `json:"rsi,omitempty"`
	MA     *float64 `json:"ma,omitempty"`
	BBW    *float64 `json:"bbw,omitempty"`
}

// PriceLevel 支撑/阻力价格线，可被用户拖拽
type PriceLevel struct {
	Price    float64 `json:"price"`
	Weight   float64 `json:"weight,omitempty"`
	At       int64   `json:"at"` // 来源标记
	IsActive bool    `json:"is_active"`
}

// Divergence 价格与 RSI 的背离
type Divergence struct {
	DivType    Trend   `json:"div_type"`
	Start      int64   `json:"start"`
	StartPrice float64 `json:"start_price"`
	StartRSI   float64 `json:"start_rsi"`
	End        int64   `json:"end"`
	EndPrice   float64 `json:"end_price"`
	EndRSI     float64 `json:"end_rsi"`
}

// Chart 单一周期的序列
type Chart struct {
	Timeframe   int64        `json:"timeframe"` // 秒
	Prices      []Price      `json:"prices"`
	RSIBracket  []float64    `json:"rsiBracket,omitempty"`
	Divergences []Divergence `json:"divergences"`
	Messages    []string     `json:"messages"`
	Trend       *Trend       `json:"trend,omitempty"`
}

// RejectionPoint 拒绝形态上的一个关键点
type RejectionPoint struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// Rejection 趋势拒绝形态，Trend != None 时 Points 预期为 3 个点
type Rejection struct {
	Trend      Trend            `json:"trend"`
	IsImminent bool             `json:"is_imminent"`
	IsGapFill  bool             `json:"is_gap_fill,omitempty"`
	FoundAt    int64            `json:"found_at"` // 毫秒
	Ended      bool             `json:"ended"`
	Points     []RejectionPoint `json:"points"`
}

// Active 形态仍然有效
func (r Rejection) Active() bool {
	return r.Trend != TrendNone && r.Trend != "" && !r.Ended
}

// Symbol 单个 ticker 的完整市场状态，整体替换，不做字段合并
type Symbol struct {
	Symbol                string       `json:"symbol"`
	LastUpdated           int64        `json:"last_updated"`
	ATR                   *float64     `json:"atr,omitempty"`
	PriceLevels           []PriceLevel `json:"price_levels"`
	PriceLevelsOverridden bool         `json:"price_levels_overridden"`
	Rejection             Rejection    `json:"rejection"`
	Charts                []Chart      `json:"charts"`
}

// ChartFor 按周期 (秒) 查找图表
func (s *Symbol) ChartFor(timeframe int64) (*Chart, bool) {
	for i := range s.Charts {
		if s.Charts[i].Timeframe == timeframe {
			return &s.Charts[i], true
		}
	}
	return nil, false
}

// Quote 最新报价，字段可缺省
type Quote struct {
	Symbol    string   `json:"symbol"`
	AskPrice  *float64 `json:"ask_price,omitempty"`
	BidPrice  *float64 `json:"bid_price,omitempty"`
	LastPrice *float64 `json:"last_price,omitempty"`
}

// ReplayMode 全局回放控制
type ReplayMode struct {
	Playing bool   `json:"playing"`
	Symbol  string `json:"symbol"`
	Speed   int    `json:"speed"`
}

// Snapshot 应用状态的一个不可变值
// 读者不得修改；任何修改都必须经由事件与 reducer 产生新的 Snapshot
type Snapshot struct {
	Connected  bool
	Account    Account
	Symbols    map[string]*Symbol
	Quotes     map[string]*Quote
	ReplayMode *ReplayMode
}

// DefaultSnapshot 初始状态
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Connected: false,
		Account: Account{
			WsID: -1,
		},
		Symbols: map[string]*Symbol{},
		Quotes:  map[string]*Quote{},
	}
}

// Float 构造可选数值字段
func Float(v float64) *float64 {
	return &v
}
