package api

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/service"
)

const (
	DefaultReconnectDelay   = 5 * time.Second  // 固定重连间隔，无退避、无上限
	DefaultHeartbeatTimeout = 15 * time.Second // 服务端每 10s 发送 HEARTBEAT
	DefaultHandshakeTimeout = 10 * time.Second

	closeWriteWait = time.Second
	dispatchBuffer = 1024
)

// MessageHandler 接收解码后的事件
type MessageHandler func(model.Event)

// StatusHandler 连接建立时收到 true，任何断开 (包括重试中的失败) 收到 false
type StatusHandler func(connected bool)

// Connector 维护到单一端点的至多一个活动连接
// 消息与状态回调都在同一个分发 goroutine 上按发生顺序调用
type Connector struct {
	endpoint         string
	header           http.Header
	dialer           *websocket.Dialer
	reconnectDelay   time.Duration
	heartbeatTimeout time.Duration
	handshakeTimeout time.Duration
	readLimit        int64
	logger           *zap.Logger
	onMessage        MessageHandler

	mu             sync.Mutex
	onStatus       StatusHandler
	conn           *websocket.Conn
	dialing        bool
	closing        bool
	connected      bool
	retryCount     int
	reconnectTimer *time.Timer

	qmu     sync.RWMutex
	queue   chan func()
	stopped bool
	done    chan struct{}
}

type Option func(*Connector)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Connector) { c.logger = service.OrNop(logger) }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.heartbeatTimeout = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithStatusHandler 在第一次拨号前注册状态回调，避免错过第一次 true
func WithStatusHandler(h StatusHandler) Option {
	return func(c *Connector) { c.onStatus = h }
}

func WithReadLimit(limit int64) Option {
	return func(c *Connector) { c.readLimit = limit }
}

func WithHeader(header http.Header) Option {
	return func(c *Connector) { c.header = header }
}

// Open 创建 Connector 并立即开始连接
// 连接失败不会返回错误，只会记录日志并进入重连循环
func Open(endpoint string, onMessage MessageHandler, opts ...Option) *Connector {
	c := &Connector{
		endpoint:         endpoint,
		reconnectDelay:   DefaultReconnectDelay,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		logger:           service.Logger,
		onMessage:        onMessage,
		queue:            make(chan func(), dispatchBuffer),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "ws"), zap.String("endpoint", endpoint))
	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.handshakeTimeout,
	}

	go c.dispatchLoop()
	c.connect()
	return c
}

// OnStatusChange 注册 (替换) 状态回调，只支持一个订阅者
func (c *Connector) OnStatusChange(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = h
}

// Connected 传输层当前是否打开
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done 在最后一个回调执行完之后关闭 (仅在 Close 之后发生)
func (c *Connector) Done() <-chan struct{} {
	return c.done
}

// Close 进入终止状态：不再重连，关闭当前连接。可重复调用
func (c *Connector) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	conn, dialing := c.conn, c.dialing
	c.mu.Unlock()

	if conn != nil {
		c.logger.Info("Closing websocket connection")
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		// 读循环随后报错，由 handleClose 发出 false 并结束分发
		_ = conn.Close()
		return
	}
	if !dialing {
		c.logger.Warn("Cannot close ws connection, not connected")
		c.stopDispatch()
	}
}

// connect 已有连接、正在拨号或正在关闭时什么都不做
func (c *Connector) connect() {
	c.mu.Lock()
	if c.closing || c.conn != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	c.dialing = true
	c.retryCount++
	attempt := c.retryCount
	c.mu.Unlock()

	go c.dial(attempt)
}

func (c *Connector) dial(attempt int) {
	log := c.logger.With(zap.Int("attempt", attempt), zap.String("attempt_id", uuid.NewString()))
	log.Info("Trying to connect ws")

	conn, _, err := c.dialer.Dial(c.endpoint, c.header)

	c.mu.Lock()
	c.dialing = false
	closing := c.closing
	if err == nil && !closing {
		c.conn = conn
		c.connected = true
	}
	c.mu.Unlock()

	if err != nil {
		log.Warn("Failed to connect ws", zap.Error(err))
		c.lost(closing)
		return
	}
	if closing {
		log.Info("Connection established after close, discarding")
		_ = conn.Close()
		c.lost(true)
		return
	}

	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}
	conn.SetPingHandler(func(data string) error {
		c.armDeadline(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(closeWriteWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})

	log.Info("Successfully connected to ws")
	c.emitStatus(true)
	go c.readLoop(conn, log)
}

// readLoop 持续读取消息；读超时即视为僵尸连接
func (c *Connector) readLoop(conn *websocket.Conn, log *zap.Logger) {
	c.armDeadline(conn)
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err, log)
			return
		}
		c.armDeadline(conn)

		ev, err := DecodeFrame(messageType, payload)
		if err != nil {
			log.Warn("Failed to parse ws message", zap.Error(err), zap.Int("size", len(payload)))
			continue
		}
		c.enqueue(func() {
			if c.onMessage != nil {
				c.onMessage(ev)
			}
		})
	}
}

func (c *Connector) armDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.heartbeatTimeout))
}

func (c *Connector) handleClose(conn *websocket.Conn, err error, log *zap.Logger) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
	}
	closing := c.closing
	c.mu.Unlock()
	_ = conn.Close()

	var netErr net.Error
	switch {
	case closing:
		log.Info("Websocket closed successfully!")
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Warn("Didn't receive HEARTBEAT from server, closed zombie connection",
			zap.Duration("deadline", c.heartbeatTimeout), zap.Duration("retry_in", c.reconnectDelay))
	default:
		log.Warn("Websocket closed, will retry connection", zap.Duration("retry_in", c.reconnectDelay), zap.Error(err))
	}
	c.lost(closing)
}

// lost 通知断开；非主动关闭时按固定间隔安排重连
func (c *Connector) lost(closing bool) {
	c.emitStatus(false)
	if closing {
		c.stopDispatch()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, c.connect)
}

func (c *Connector) emitStatus(status bool) {
	c.enqueue(func() {
		c.mu.Lock()
		h := c.onStatus
		c.mu.Unlock()
		if h != nil {
			h(status)
		}
	})
}

func (c *Connector) enqueue(fn func()) {
	c.qmu.RLock()
	defer c.qmu.RUnlock()
	if c.stopped {
		return
	}
	c.queue <- fn
}

func (c *Connector) stopDispatch() {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.queue)
	}
}

func (c *Connector) dispatchLoop() {
	defer close(c.done)
	for fn := range c.queue {
		fn()
	}
}
