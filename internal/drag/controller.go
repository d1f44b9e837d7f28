package drag

import (
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"options-dashboard-sync/internal/compare"
	"options-dashboard-sync/internal/service"
)

// DefaultThreshold 命中判定的像素距离
const DefaultThreshold = 5.0

// EventKind 指针事件类型
type EventKind string

const (
	PointerDown EventKind = "pointerdown"
	PointerMove EventKind = "pointermove"
	PointerUp   EventKind = "pointerup"
)

// ButtonPrimary 只有主键按下才可能开始拖拽
const ButtonPrimary = 0

type Cursor string

const (
	CursorDefault  Cursor = ""
	CursorGrabbing Cursor = "grabbing"
)

// PointerEvent ClientY 为窗口坐标，由控制器减去 Surface.Top() 得到图表内坐标
type PointerEvent struct {
	Button  int
	ClientY float64
}

// Listener 返回 true 表示事件被认领，不再向其他处理器传播
type Listener func(PointerEvent) bool

// Surface 图表绘制层
type Surface interface {
	Top() float64
	Listen(kind EventKind, fn Listener) (remove func())
	SetCursor(cursor Cursor)
	MoveMarker(name string, price float64)
}

// Transform 价格与像素坐标互转，无法换算时 ok 为 false
type Transform interface {
	PriceToPixel(price float64) (y float64, ok bool)
	PixelToPrice(y float64) (price float64, ok bool)
}

// UpdateHandler 返回 false 表示否决本次拖动，标记保持原价
type UpdateHandler func(name string, price float64) bool

// Session 一次拖拽，从命中的 pointer-down 到对应的 pointer-up
type Session struct {
	LineID        string
	OriginalPrice float64
}

// Controller 绑定一个图表表面，把指针事件转换为标记价格的修改请求
type Controller struct {
	surface   Surface
	transform Transform
	threshold float64
	tickSize  decimal.Decimal
	epsilon   float64
	logger    *zap.Logger

	mu         sync.Mutex
	active     bool
	markers    map[string]float64
	onUpdate   UpdateHandler
	session    *Session
	removeDown func()
	removeDrag []func()
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = service.OrNop(logger) }
}

func WithThreshold(px float64) Option {
	return func(c *Controller) {
		if px >= 0 {
			c.threshold = px
		}
	}
}

// WithTickSize 拖动得到的价格按最小变动单位取整，0 表示不取整
func WithTickSize(tick float64) Option {
	return func(c *Controller) {
		if tick > 0 {
			c.tickSize = decimal.NewFromFloat(tick)
		}
	}
}

// WithEpsilon SetMarkers 判定“无变化”时使用的价格容差
func WithEpsilon(eps float64) Option {
	return func(c *Controller) {
		if eps >= 0 {
			c.epsilon = eps
		}
	}
}

// OptionsFromConfig 由配置文件的 Drag 段生成选项
func OptionsFromConfig(cfg service.DragConfig) []Option {
	return []Option{
		WithThreshold(cfg.Threshold),
		WithTickSize(cfg.TickSize),
		WithEpsilon(cfg.LimitEpsilon),
	}
}

// NewController 创建并激活控制器 (注册 pointer-down 监听)
func NewController(surface Surface, transform Transform, opts ...Option) *Controller {
	c := &Controller{
		surface:   surface,
		transform: transform,
		threshold: DefaultThreshold,
		epsilon:   compare.PriceEpsilon,
		logger:    service.Logger,
		markers:   map[string]float64{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "drag"))

	c.logger.Debug("Activating line drag controller")
	c.active = true
	c.removeDown = surface.Listen(PointerDown, c.onPointerDown)
	return c
}

// SetMarkers 替换可拖动标记集合，返回 false 表示与当前集合近似相等 (无需重绘)
// 正在拖动的标记被移除时，拖拽随之结束
func (c *Controller) SetMarkers(markers map[string]float64) bool {
	c.mu.Lock()
	if compare.ApproxEqual(c.markers, markers, c.epsilon) {
		c.mu.Unlock()
		return false
	}
	c.markers = maps.Clone(markers)
	if c.markers == nil {
		c.markers = map[string]float64{}
	}

	var cleanup []func()
	if c.session != nil {
		if _, ok := c.markers[c.session.LineID]; !ok {
			c.logger.Debug("Dragged marker removed, ending session", zap.String("line", c.session.LineID))
			cleanup = c.endSessionLocked()
		}
	}
	c.mu.Unlock()

	c.runCleanup(cleanup)
	return true
}

// SetUpdateHandler nil 表示无条件接受
func (c *Controller) SetUpdateHandler(h UpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = h
}

// Session 当前拖拽 (如有)
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Markers 当前标记价格的副本
func (c *Controller) Markers() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.markers)
}

// Deactivate 移除全部监听，可重复调用
func (c *Controller) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cleanup := c.endSessionLocked()
	cleanup = append(cleanup, c.removeDown)
	c.removeDown = nil
	c.mu.Unlock()

	c.logger.Debug("Deactivating line drag controller")
	c.runCleanup(cleanup)
}

func (c *Controller) onPointerDown(ev PointerEvent) bool {
	c.mu.Lock()
	if !c.active || c.session != nil || ev.Button != ButtonPrimary || len(c.markers) == 0 {
		c.mu.Unlock()
		return false
	}

	y := ev.ClientY - c.surface.Top()
	name, found := c.hitTestLocked(y)
	if !found {
		c.mu.Unlock()
		return false
	}

	c.session = &Session{LineID: name, OriginalPrice: c.markers[name]}
	c.removeDrag = []func(){
		c.surface.Listen(PointerMove, c.onPointerMove),
		c.surface.Listen(PointerUp, c.onPointerUp),
	}
	c.mu.Unlock()

	c.surface.SetCursor(CursorGrabbing)
	c.logger.Debug("Drag session started", zap.String("line", name), zap.Float64("y", y))
	return true
}

// hitTestLocked 距离最近且不超过阈值的标记获胜，距离相同时按名字排序取第一个
func (c *Controller) hitTestLocked(y float64) (string, bool) {
	best, bestDist := "", math.Inf(1)
	for _, name := range slices.Sorted(maps.Keys(c.markers)) {
		px, ok := c.transform.PriceToPixel(c.markers[name])
		if !ok {
			continue
		}
		d := math.Abs(px - y)
		if d <= c.threshold && d < bestDist {
			best, bestDist = name, d
		}
	}
	return best, best != ""
}

func (c *Controller) onPointerMove(ev PointerEvent) bool {
	c.mu.Lock()
	session, handler := c.session, c.onUpdate
	c.mu.Unlock()
	if session == nil {
		return false
	}

	price, ok := c.transform.PixelToPrice(ev.ClientY - c.surface.Top())
	if !ok {
		return false
	}
	price = c.snap(price)

	// 回调在锁外执行，仲裁者可以回调控制器
	if handler != nil && !handler(session.LineID, price) {
		c.logger.Debug("Drag update vetoed", zap.String("line", session.LineID), zap.Float64("price", price))
		return true
	}

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return true
	}
	c.markers[session.LineID] = price
	c.mu.Unlock()

	c.surface.MoveMarker(session.LineID, price)
	return true
}

func (c *Controller) onPointerUp(PointerEvent) bool {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return false
	}
	name := c.session.LineID
	cleanup := c.endSessionLocked()
	c.mu.Unlock()

	c.runCleanup(cleanup)
	c.logger.Debug("Drag session ended", zap.String("line", name))
	return true
}

// endSessionLocked 返回需要在锁外执行的清理动作
func (c *Controller) endSessionLocked() []func() {
	if c.session == nil {
		return nil
	}
	c.session = nil
	cleanup := append(c.removeDrag, func() { c.surface.SetCursor(CursorDefault) })
	c.removeDrag = nil
	return cleanup
}

func (c *Controller) runCleanup(fns []func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (c *Controller) snap(price float64) float64 {
	if c.tickSize.IsZero() {
		return price
	}
	snapped, _ := decimal.NewFromFloat(price).Div(c.tickSize).Round(0).Mul(c.tickSize).Float64()
	return snapped
}
