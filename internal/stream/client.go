package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cv-console/internal/metrics"
	"cv-console/internal/types"
)

// ErrClientClosed клиент уже закрыт
var ErrClientClosed = errors.New("stream client closed")

// Option настраивает клиента
type Option func(*Client)

// WithDialer заменяет транспорт (по умолчанию gorilla/websocket)
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithReconnect включает политику переподключения
func WithReconnect(p ReconnectPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithCameraID добавляет camera_id в логи клиента
func WithCameraID(id string) Option {
	return func(c *Client) { c.cameraID = id }
}

// OnState обработчик смены состояния
func OnState(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// OnFrame обработчик нового кадра
func OnFrame(fn func(Frame)) Option {
	return func(c *Client) { c.onFrame = fn }
}

// OnStats обработчик телеметрии fps
func OnStats(fn func(Stats)) Option {
	return func(c *Client) { c.onStats = fn }
}

type eventKind int

const (
	eventState eventKind = iota
	eventFrame
	eventStats
)

type event struct {
	kind  eventKind
	state State
	frame Frame
	stats Stats
}

// Client держит не более одного живого сокета к потоку камеры.
//
// Обработчики вызываются последовательно в отдельной горутине клиента
// в порядке изменений. Ожидающие кадры схлопываются: медленный
// обработчик видит только последний кадр. Из обработчиков нельзя
// вызывать Close.
type Client struct {
	logger   *zap.Logger
	dialer   Dialer
	metrics  *metrics.Metrics
	policy   ReconnectPolicy
	cameraID string

	onState func(State)
	onFrame func(Frame)
	onStats func(Stats)

	mu       sync.Mutex
	endpoint string
	state    State
	frame    *Frame
	fps      *float64
	lastErr  error
	seq      uint64
	conn     *connection
	closed   bool
	attempt  int
	retry    *time.Timer
	queue    []event
	frameIdx int
	statsIdx int

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewClient создает неактивного клиента
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		logger:   logger,
		state:    StateInactive,
		frameIdx: -1,
		statsIdx: -1,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.dialer == nil {
		c.dialer = NewWebSocketDialer(DefaultHandshakeTimeout, 0)
	}
	if c.cameraID != "" {
		c.logger = c.logger.With(zap.String("camera_id", c.cameraID))
	}

	go c.dispatch()

	return c
}

// SetEndpoint переключает клиента на новый адрес.
// Тот же адрес ничего не делает. Пустой адрес закрывает текущее
// соединение и оставляет состояние как есть.
func (c *Client) SetEndpoint(endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if endpoint == c.endpoint {
		return nil
	}

	c.teardownLocked()
	c.endpoint = endpoint
	c.attempt = 0
	c.frame = nil
	c.fps = nil
	c.lastErr = nil

	if endpoint == "" {
		c.logger.Info("Stream endpoint cleared")
		return nil
	}

	c.openLocked()
	return nil
}

// Reconnect закрывает текущее соединение и открывает новое к тому же адресу
func (c *Client) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.endpoint == "" {
		return nil
	}

	c.teardownLocked()
	c.attempt = 0
	c.openLocked()
	return nil
}

// Close закрывает соединение и останавливает доставку событий.
// После возврата обработчики больше не вызываются.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.teardownLocked()
	c.queue = nil
	c.frameIdx, c.statsIdx = -1, -1
	c.mu.Unlock()

	close(c.stop)
	<-c.done

	c.logger.Debug("Stream client closed")
	return nil
}

// State возвращает текущее состояние соединения
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint возвращает текущий адрес потока
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Frame возвращает последний кадр
func (c *Client) Frame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return Frame{}, false
	}
	return *c.frame, true
}

// FPS возвращает последнее значение fps от источника
func (c *Client) FPS() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fps == nil {
		return 0, false
	}
	return *c.fps, true
}

// LastError возвращает последнюю ошибку транспорта
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot возвращает согласованный срез состояния
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Endpoint: c.endpoint,
		State:    c.state,
		Retries:  c.attempt,
	}
	if c.conn != nil {
		s.ConnID = c.conn.id
	}
	if c.frame != nil {
		f := *c.frame
		s.Frame = &f
	}
	if c.fps != nil {
		v := *c.fps
		s.FPS = &v
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// openLocked запускает новое соединение к c.endpoint
func (c *Client) openLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		id:       uuid.NewString(),
		endpoint: c.endpoint,
		cancel:   cancel,
		dialed:   make(chan struct{}),
		metrics:  c.metrics,
	}
	c.conn = conn
	c.metrics.ConnectionOpened()
	c.setStateLocked(StateConnecting)

	c.logger.Info("Opening stream connection",
		zap.String("endpoint", conn.endpoint),
		zap.String("conn_id", conn.id),
	)

	go c.run(ctx, conn)
}

// teardownLocked закрывает текущее соединение и дожидается завершения
// его dial, чтобы два сокета никогда не были открыты одновременно.
func (c *Client) teardownLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}

	old := c.conn
	if old == nil {
		return
	}
	c.conn = nil

	old.close()
	<-old.dialed

	c.logger.Debug("Stream connection torn down", zap.String("conn_id", old.id))
}

func (c *Client) isCurrentLocked(conn *connection) bool {
	return !c.closed && c.conn == conn
}

func (c *Client) run(ctx context.Context, conn *connection) {
	ws, err := c.dialer.Dial(ctx, conn.endpoint)
	if err == nil && !conn.attach(ws) {
		_ = ws.Close()
		err = context.Canceled
	}
	close(conn.dialed)

	if err != nil {
		c.fail(conn, err)
		return
	}

	c.mu.Lock()
	if !c.isCurrentLocked(conn) {
		c.mu.Unlock()
		return
	}
	c.attempt = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("Stream connected",
		zap.String("endpoint", conn.endpoint),
		zap.String("conn_id", conn.id),
	)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.closeWith(conn, err)
			return
		}
		c.handleMessage(conn, data)
	}
}

// fail ошибка dial: error, затем disconnected
func (c *Client) fail(conn *connection, err error) {
	conn.close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrentLocked(conn) {
		return
	}

	c.logger.Warn("Stream connection failed",
		zap.String("endpoint", conn.endpoint),
		zap.String("conn_id", conn.id),
		zap.Error(err),
	)

	c.lastErr = err
	c.setStateLocked(StateError)
	c.setStateLocked(StateDisconnected)
	c.scheduleRetryLocked(conn)
}

// closeWith завершение чтения: штатное закрытие источником сразу
// переводит в disconnected, сетевой сбой проходит через error.
func (c *Client) closeWith(conn *connection, err error) {
	conn.close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrentLocked(conn) {
		return
	}

	if isCleanClose(err) {
		c.logger.Info("Stream closed by peer",
			zap.String("conn_id", conn.id),
			zap.Error(err),
		)
	} else {
		c.logger.Warn("Stream read failed",
			zap.String("conn_id", conn.id),
			zap.Error(err),
		)
		c.lastErr = err
		c.setStateLocked(StateError)
	}

	c.setStateLocked(StateDisconnected)
	c.scheduleRetryLocked(conn)
}

func (c *Client) handleMessage(conn *connection, data []byte) {
	msg, err := types.DecodeFrameMessage(data)
	if err != nil {
		c.logger.Warn("Dropping malformed stream message",
			zap.String("conn_id", conn.id),
			zap.Int("size", len(data)),
			zap.Error(err),
		)
		c.metrics.MessageDropped()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrentLocked(conn) {
		return
	}

	if msg.HasImage() {
		c.seq++
		f := Frame{Image: *msg.Image, Seq: c.seq, ReceivedAt: time.Now()}
		c.frame = &f
		c.metrics.FrameReceived()
		c.enqueueLocked(event{kind: eventFrame, frame: f})
	}

	if msg.HasFPS() {
		v := *msg.FPS
		c.fps = &v
		c.enqueueLocked(event{kind: eventStats, stats: Stats{FPS: v}})
	}
}

func (c *Client) scheduleRetryLocked(conn *connection) {
	next := c.attempt + 1
	if !c.policy.allows(next) {
		return
	}
	c.attempt = next
	delay := c.policy.Delay(next)

	c.logger.Info("Scheduling stream reconnect",
		zap.Int("attempt", next),
		zap.Duration("delay", delay),
	)

	c.retry = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if !c.isCurrentLocked(conn) {
			return
		}
		c.metrics.Reconnect()
		c.retry = nil
		c.teardownLocked()
		c.openLocked()
	})
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("Stream state changed",
		zap.String("from", string(c.state)),
		zap.String("state", string(s)),
	)
	c.state = s
	c.metrics.StateTransition(string(s))
	c.enqueueLocked(event{kind: eventState, state: s})
}

// enqueueLocked ставит событие в очередь. Кадры и телеметрия, еще не
// доставленные с момента последней смены состояния, заменяются новыми.
func (c *Client) enqueueLocked(ev event) {
	if c.closed {
		return
	}

	switch ev.kind {
	case eventState:
		c.frameIdx, c.statsIdx = -1, -1
		c.queue = append(c.queue, ev)
	case eventFrame:
		if c.onFrame == nil {
			return
		}
		if c.frameIdx >= 0 {
			c.queue[c.frameIdx] = ev
		} else {
			c.frameIdx = len(c.queue)
			c.queue = append(c.queue, ev)
		}
	case eventStats:
		if c.onStats == nil {
			return
		}
		if c.statsIdx >= 0 {
			c.queue[c.statsIdx] = ev
		} else {
			c.statsIdx = len(c.queue)
			c.queue = append(c.queue, ev)
		}
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatch() {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.frameIdx = shift(c.frameIdx)
			c.statsIdx = shift(c.statsIdx)
			c.mu.Unlock()

			c.deliver(ev)
		}
	}
}

func shift(idx int) int {
	if idx <= 0 {
		return -1
	}
	return idx - 1
}

func (c *Client) deliver(ev event) {
	switch ev.kind {
	case eventState:
		if c.onState != nil {
			c.onState(ev.state)
		}
	case eventFrame:
		if c.onFrame != nil {
			c.onFrame(ev.frame)
		}
	case eventStats:
		if c.onStats != nil {
			c.onStats(ev.stats)
		}
	}
}

// connection одно соединение клиента. Сокет закрывается ровно один раз.
type connection struct {
	id       string
	endpoint string
	cancel   context.CancelFunc
	dialed   chan struct{}
	metrics  *metrics.Metrics

	mu     sync.Mutex
	ws     Conn
	closed bool
	once   sync.Once
}

// attach привязывает открытый сокет. false если соединение уже закрыто.
func (cn *connection) attach(ws Conn) bool {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if cn.closed {
		return false
	}
	cn.ws = ws
	cn.metrics.SocketOpened()
	return true
}

func (cn *connection) close() {
	cn.once.Do(func() {
		cn.cancel()

		cn.mu.Lock()
		cn.closed = true
		ws := cn.ws
		cn.mu.Unlock()

		if ws != nil {
			_ = ws.Close()
			cn.metrics.SocketClosed()
		}
	})
}
