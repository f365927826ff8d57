package lsg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"MicroPulse/internal/dbn"
	"MicroPulse/internal/domain/models"
	domrepo "MicroPulse/internal/domain/repository"
	"MicroPulse/pkg/logger"
)

// Session states.
const (
	StateDisconnected   = "disconnected"
	StateGreeting       = "greeting"
	StateChallenge      = "challenge"
	StateAuthenticating = "authenticating"
	StateStreaming      = "streaming"
)

// AuthError is returned when the gateway rejects the CRAM response. It is
// terminal for that socket: the caller decides whether to retry.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "lsg: authentication failed: " + e.Msg }

var (
	ErrNotConnected     = errors.New("lsg: not connected")
	ErrAlreadyConnected = errors.New("lsg: already connected")
	// ErrClosed is returned by Connect after a manual Disconnect. A client
	// is single-use; build a new one for a fresh session.
	ErrClosed = errors.New("lsg: client closed")
	// ErrBufferCap is returned by the read loop when the peer outruns the
	// decoder past the configured receive-buffer cap. Treated like any
	// other transport error: the session reconnects with a fresh buffer.
	ErrBufferCap = errors.New("lsg: receive buffer cap exceeded")
)

// Config for one gateway session.
type Config struct {
	Dataset           string
	APIKey            string
	Domain            string
	Port              int
	Addr              string        // explicit dial address; derived from Dataset/Domain/Port when empty
	HeartbeatInterval time.Duration // requested from the gateway
	HeartbeatMargin   time.Duration // extra silence tolerated past the interval
	DialTimeout       time.Duration
	EventBuffer       int     // capacity of the outbound event channel
	ReceiveBufferCap  int     // hard cap on undecoded bytes held per socket
	Backoff           Backoff // reconnect schedule; zero value means 2s doubling capped at 60s
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Port == 0 {
		out.Port = 13000
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 15 * time.Second
	}
	if out.HeartbeatMargin <= 0 {
		out.HeartbeatMargin = 5 * time.Second
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 10 * time.Second
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = 4096
	}
	if out.ReceiveBufferCap <= 0 {
		out.ReceiveBufferCap = 16 << 20
	}
	return out
}

type subscription struct {
	schema     string
	symbolType string
	symbols    []string
	replay     bool
}

// Client owns one gateway socket: text handshake, binary record stream,
// heartbeat liveness and post-streaming reconnects. One sequential loop
// drives the socket; decoded events fan out through a single channel.
type Client struct {
	cfg     Config
	log     *logger.Logger
	metrics domrepo.Metrics
	backoff Backoff

	mu        sync.Mutex
	state     string
	sessionID string
	subs      []subscription
	conn      net.Conn
	reader    *bufio.Reader
	dec       *dbn.Decoder
	version   uint8
	hbPeriod  time.Duration
	attempt   int

	events    chan models.Event
	started   atomic.Bool
	closed    atomic.Bool // Disconnect completed; the client cannot be reused
	streaming atomic.Bool // the session reached streaming at least once
	manual    atomic.Bool // Disconnect was called; suppress reconnect
	lastRecv  atomic.Int64

	decoded atomic.Uint64
	read    atomic.Uint64
	dropped atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient builds a session client. Multiple independent clients may
// coexist; nothing here is process-global.
func NewClient(cfg Config, log *logger.Logger, metrics domrepo.Metrics) *Client {
	backoff := cfg.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultBackoff()
	}
	c := &Client{
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: metrics,
		backoff: backoff,
		state:   StateDisconnected,
	}
	c.events = make(chan models.Event, c.cfg.EventBuffer)
	return c
}

// Subscribe registers a subscription for the next handshake. Symbols are
// split into batches of at most 500 per subscription line when sent.
func (c *Client) Subscribe(schema, symbolType string, symbols []string, replayFromStart bool) error {
	if c.started.Load() {
		return ErrAlreadyConnected
	}
	if schema == "" || len(symbols) == 0 {
		return fmt.Errorf("lsg: subscription needs a schema and symbols")
	}
	c.mu.Lock()
	c.subs = append(c.subs, subscription{
		schema:     schema,
		symbolType: symbolType,
		symbols:    symbols,
		replay:     replayFromStart,
	})
	c.mu.Unlock()
	return nil
}

// Connect dials and authenticates. An error here is terminal for the
// attempt: no retry is scheduled. After the first successful handshake the
// client reconnects on its own when the socket dies.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.establish(runCtx); err != nil {
		c.setState(StateDisconnected)
		c.started.Store(false)
		cancel()
		return err
	}

	c.wg.Add(2)
	go c.run(runCtx)
	go c.monitorHeartbeat(runCtx)
	return nil
}

// Events returns the decoded event channel. It is closed after Disconnect.
func (c *Client) Events() <-chan models.Event { return c.events }

// IsConnected reports whether the session is currently streaming.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateStreaming
}

// Status returns a read-only transport snapshot for the query surface.
func (c *Client) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ConnectionStatus{
		State:            c.state,
		SessionID:        c.sessionID,
		DBNVersion:       c.version,
		ReconnectAttempt: c.attempt,
		Subscriptions:    len(c.subs),
		RecordsDecoded:   c.decoded.Load(),
		EventsDropped:    c.dropped.Load(),
		BytesRead:        c.read.Load(),
	}
}

// Disconnect cancels all timers, closes the socket and suppresses the
// auto-reconnect that would otherwise fire on close.
func (c *Client) Disconnect() error {
	if !c.started.Load() {
		return ErrNotConnected
	}
	c.manual.Store(true)
	c.closed.Store(true)
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
	c.wg.Wait()
	c.setState(StateDisconnected)
	close(c.events)
	c.started.Store(false)
	return nil
}

// establish performs one dial + handshake + metadata read. The caller owns
// retry policy.
func (c *Client) establish(ctx context.Context) error {
	addr := c.cfg.Addr
	if addr == "" {
		addr = GatewayAddr(c.cfg.Dataset, c.cfg.Domain, c.cfg.Port)
	}
	c.setState(StateGreeting)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("lsg dial %s: %w", addr, err)
	}
	// The buffered reader stays attached for the binary phase so read-ahead
	// past a newline is never lost at the text/binary cutover.
	reader := bufio.NewReaderSize(conn, 64<<10)

	if err := c.handshake(conn, reader); err != nil {
		_ = conn.Close()
		return err
	}
	if err := c.readMetadata(conn, reader); err != nil {
		_ = conn.Close()
		return fmt.Errorf("lsg metadata: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = reader
	c.state = StateStreaming
	c.attempt = 0
	c.mu.Unlock()
	c.streaming.Store(true)
	c.lastRecv.Store(time.Now().UnixNano())

	c.log.Info("session streaming",
		logger.String("dataset", c.cfg.Dataset),
		logger.String("session_id", c.sessionID),
		logger.Int("dbn_version", int(c.version)))
	c.emit(models.Event{Type: models.EventConnected, Received: time.Now()})
	return nil
}

func (c *Client) handshake(conn net.Conn, reader *bufio.Reader) error {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.DialTimeout))
	defer conn.SetDeadline(time.Time{})

	// Greeting: lsg_version=...
	greeting, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("lsg greeting: %w", err)
	}
	gv := parseKV(greeting)
	c.log.Debug("gateway greeting", logger.String("lsg_version", gv["lsg_version"]))

	// Challenge: cram=...
	c.setState(StateChallenge)
	challengeLine, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("lsg challenge: %w", err)
	}
	challenge, ok := parseKV(challengeLine)["cram"]
	if !ok {
		return fmt.Errorf("lsg challenge line missing cram: %q", strings.TrimSpace(challengeLine))
	}

	c.setState(StateAuthenticating)
	auth := fmt.Sprintf("auth=%s|dataset=%s|encoding=dbn|ts_out=0|heartbeat_interval_s=%d\n",
		ComputeAuthResponse(challenge, c.cfg.APIKey),
		c.cfg.Dataset,
		int(c.cfg.HeartbeatInterval.Seconds()))
	if _, err := io.WriteString(conn, auth); err != nil {
		return fmt.Errorf("lsg auth write: %w", err)
	}

	replyLine, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("lsg auth reply: %w", err)
	}
	reply := parseKV(replyLine)
	if reply["success"] != "1" {
		msg := reply["error"]
		if msg == "" {
			msg = strings.TrimSpace(replyLine)
		}
		return &AuthError{Msg: msg}
	}

	hb := c.cfg.HeartbeatInterval
	if s, ok := reply["heartbeat_interval_s"]; ok {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			hb = time.Duration(secs) * time.Second
		}
	}

	c.mu.Lock()
	c.sessionID = reply["session_id"]
	c.hbPeriod = hb
	subs := c.subs
	c.mu.Unlock()

	// Subscriptions may only be written in the authenticating->streaming
	// window, before the session starts.
	for _, sub := range subs {
		for _, batch := range batchSymbols(sub.symbols, 500) {
			line := fmt.Sprintf("schema=%s|stype_in=%s|symbols=%s",
				sub.schema, sub.symbolType, strings.Join(batch, ","))
			if sub.replay {
				line += "|start=0"
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				return fmt.Errorf("lsg subscribe write: %w", err)
			}
		}
	}
	if _, err := io.WriteString(conn, "start_session\n"); err != nil {
		return fmt.Errorf("lsg start_session write: %w", err)
	}
	// Everything from here on is binary.
	return nil
}

func (c *Client) readMetadata(conn net.Conn, reader *bufio.Reader) error {
	prelude := make([]byte, dbn.PreludeSize)
	if _, err := io.ReadFull(reader, prelude); err != nil {
		return err
	}
	version, blockLen, err := dbn.ParsePrelude(prelude)
	if err != nil {
		return err
	}
	block := make([]byte, blockLen)
	if _, err := io.ReadFull(reader, block); err != nil {
		return err
	}
	meta, err := dbn.ParseMetadata(version, block)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.version = version
	c.dec = dbn.NewDecoder(meta, c.log)
	c.mu.Unlock()
	return nil
}

// run drives the socket: read until it dies, then either stop (manual
// disconnect, or never reached streaming) or back off and redial.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		err := c.readLoop(ctx)
		c.emit(models.Event{Type: models.EventDisconnected, Received: time.Now()})
		c.closeConn()

		if ctx.Err() != nil || c.manual.Load() {
			c.setState(StateDisconnected)
			return
		}
		if err != nil {
			c.log.Warn("session closed", logger.Error(err))
		}

		for {
			c.mu.Lock()
			c.attempt++
			attempt := c.attempt
			c.mu.Unlock()
			c.metrics.RecordReconnect()
			c.setState(StateDisconnected)

			wait := c.backoff.Next(attempt)
			c.log.Info("reconnect scheduled",
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if err := c.establish(ctx); err != nil {
				c.log.Warn("reconnect failed", logger.Int("attempt", attempt), logger.Error(err))
				continue
			}
			break
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	reader := c.reader
	dec := c.dec
	c.mu.Unlock()
	if reader == nil || dec == nil {
		return ErrNotConnected
	}

	buf := make([]byte, 0, 64<<10)
	tmp := make([]byte, 32<<10)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := reader.Read(tmp)
		if n > 0 {
			c.lastRecv.Store(time.Now().UnixNano())
			c.read.Add(uint64(n))
			buf = append(buf, tmp[:n]...)

			events, consumed := dec.Decode(buf, time.Now())
			if consumed > 0 {
				buf = buf[:copy(buf, buf[consumed:])]
			}
			for i := range events {
				c.decoded.Add(1)
				c.metrics.RecordDecoded(string(events[i].Type))
				if events[i].Type == models.EventError {
					c.log.Warn("gateway error", logger.String("msg", events[i].Error.Msg))
				}
				c.emit(events[i])
			}
			if len(buf) > c.cfg.ReceiveBufferCap {
				return ErrBufferCap
			}
		}
		if err != nil {
			return err
		}
	}
}

// monitorHeartbeat polls on a short tick and force-closes the socket when
// nothing has arrived for longer than the negotiated interval plus margin.
// Prolonged silence is a dead connection regardless of what TCP thinks.
func (c *Client) monitorHeartbeat(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			streaming := c.state == StateStreaming
			limit := c.hbPeriod + c.cfg.HeartbeatMargin
			c.mu.Unlock()
			if !streaming {
				continue
			}
			silent := time.Since(time.Unix(0, c.lastRecv.Load()))
			if silent > limit {
				c.metrics.RecordHeartbeatTimeout()
				c.log.Warn("heartbeat timeout, forcing close",
					logger.Duration("silent", silent),
					logger.Duration("limit", limit))
				c.closeConn()
			}
		}
	}
}

func (c *Client) emit(ev models.Event) {
	select {
	case c.events <- ev:
	default:
		// Drop-newest under backpressure; counted, never blocking the
		// socket loop.
		c.dropped.Add(1)
		c.metrics.RecordDropped("transport")
	}
}

func (c *Client) setState(s string) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func batchSymbols(symbols []string, n int) [][]string {
	if len(symbols) <= n {
		return [][]string{symbols}
	}
	var out [][]string
	for start := 0; start < len(symbols); start += n {
		end := start + n
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}

var _ domrepo.MarketStream = (*Client)(nil)
