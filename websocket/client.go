// Package websocket implements the real-time client connection to the
// mail-server backend: a state machine over one gorilla/websocket
// transport per authenticated identity, with exponential-backoff
// reconnection, per-channel request/response correlation, and channel
// subscription bookkeeping. It leverages the gorilla/websocket library
// for underlying WebSocket functionality and is designed for concurrent
// safety.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mailwire/mailwire"
	"github.com/mailwire/mailwire/logger"
	"github.com/mailwire/mailwire/protocol"
	"github.com/mailwire/mailwire/util"
)

// --------------------------------------------------------------------------------
// Constants

// Constants defining default configuration values for the client.
const (
	DefaultConnectTimeout    = 10 * time.Second // Bound on a single connection attempt.
	DefaultRequestTimeout    = 5 * time.Second  // Bound on subscribe/unsubscribe/fetch round-trips.
	DefaultReconnectDelay    = 1 * time.Second  // Initial delay between reconnect attempts.
	DefaultMaxReconnectDelay = 32 * time.Second // Cap for the doubling reconnect delay.
	DefaultPongTimeout       = 5 * time.Second  // How long a ping may go unanswered.

	// ReconnectBackoffMultiplier documents the growth factor of the
	// reconnect delay; util.Backoff doubles per attempt.
	ReconnectBackoffMultiplier = 2
)

// opConnect labels connect-attempt timeouts in RequestTimeoutError.
const opConnect = protocol.ClientMessageType("connect")

// --------------------------------------------------------------------------------
// Types

// Option defines a function that configures a Client and returns an error if configuration fails.
type Option func(*Client) error

// Config encapsulates settings controlling connection, correlation, and resilience.
//
// All fields are optional; unset values fall back to defaults defined above.
type Config struct {
	Proxy             func(*http.Request) (*url.URL, error) // Proxy routing function; nil disables proxy.
	TLSClientConfig   *tls.Config                           // TLS settings for wss://; nil uses system defaults.
	Reconnect         bool                                  // Reconnect automatically on unexpected closes.
	ReconnectDelay    time.Duration                         // Initial backoff delay.
	MaxReconnectDelay time.Duration                         // Backoff delay cap.
	ReconnectAttempts uint                                  // Max reconnect attempts; 0 means unlimited.
	AutoSubscribe     bool                                  // Replay active subscriptions after reconnect.
	PingInterval      time.Duration                         // Keep-alive ping interval; 0 means server-driven.
	PongTimeout       time.Duration                         // How long to wait for a pong.
	ConnectTimeout    time.Duration                         // Bound on a connection attempt.
	RequestTimeout    time.Duration                         // Bound on a protocol round-trip.
	Debug             bool                                  // Print frames with colorized output.
}

// Subscription records one channel subscription on a connection. Entries
// are owned exclusively by the client; they do not survive a transport
// close and are re-established by the auto-subscribe replay.
type Subscription struct {
	Channel      protocol.Channel
	Params       protocol.Params
	Active       bool
	SubscribedAt time.Time
}

// pendingResult carries the outcome of an in-flight request.
type pendingResult struct {
	msg *protocol.ServerMessage
	err error
}

// pendingRequest correlates an in-flight subscribe/unsubscribe/fetch call
// to its eventual server response. At most one request per channel may be
// in flight; responses are matched by channel, never positionally.
type pendingRequest struct {
	op protocol.ClientMessageType
	ch chan pendingResult // Buffered; resolution never blocks the reader.
}

// Client maintains one persistent, authenticated connection to the mail
// server and exposes subscribe/unsubscribe/fetch with request/response
// correlation plus typed events for pushed data.
//
// It is safe for concurrent use.
type Client struct {
	config  Config
	url     string
	header  http.Header
	logger  logger.Interface
	emitter *emitter

	ctx    context.Context // Lifecycle context; cancelled on Close().
	cancel context.CancelFunc

	mu           sync.Mutex // Protects all connection state below.
	state        State
	conn         *websocket.Conn
	gen          int // Connection generation; stale goroutines bail out on mismatch.
	auth         mailwire.Auth
	subs         map[protocol.Channel]*Subscription
	subOrder     []protocol.Channel
	replay       []*Subscription // Snapshot taken on unexpected close for auto-subscribe.
	pending      map[protocol.Channel]*pendingRequest
	attempt      uint          // Current reconnect attempt count.
	waiters      []chan error  // Connect callers awaiting the in-flight attempt.
	reconnecting bool          // True while the reconnect loop runs.
	wake         chan struct{} // Nudges the reconnect loop out of its backoff wait.
	closed       bool

	sendMu sync.Mutex // Ensures thread-safe message sending.
}

// --------------------------------------------------------------------------------
// Initialization

// New creates a new client for the given endpoint and applies options.
//
// The client is not connected until Connect is called.
func New(endpoint string, opts ...Option) (*Client, error) {
	l, err := logger.New("info", os.Stdout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: Config{
			Reconnect:         true,
			ReconnectDelay:    DefaultReconnectDelay,
			MaxReconnectDelay: DefaultMaxReconnectDelay,
			AutoSubscribe:     true,
			PongTimeout:       DefaultPongTimeout,
			ConnectTimeout:    DefaultConnectTimeout,
			RequestTimeout:    DefaultRequestTimeout,
		},
		url:     endpoint,
		header:  make(http.Header),
		logger:  l,
		emitter: newEmitter(),
		subs:    make(map[protocol.Channel]*Subscription),
		pending: make(map[protocol.Channel]*pendingRequest),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	return c.With(opts...)
}

// With applies a list of options to the Client and returns the modified instance along with any error.
func (c *Client) With(opts ...Option) (*Client, error) {
	for i, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(c); err != nil {
			return c, fmt.Errorf("failed to apply option at index %d: %w", i, err)
		}
	}

	return c, nil
}

// --------------------------------------------------------------------------------
// Connection Management

// Connect establishes the connection for the given identity. The
// credentials travel as query parameters on the dial URL, never as a
// protocol message.
//
// Calling Connect while an attempt is already in flight (connecting or
// reconnecting) does not race a second transport open: the call awaits
// the outcome of the shared attempt. Connect returns once the connection
// is established, or with the attempt's error.
func (c *Client) Connect(ctx context.Context, auth mailwire.Auth) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return ErrClosed
	}

	c.auth = auth

	switch c.state {
	case StateConnected:
		c.mu.Unlock()

		return nil

	case StateDisconnecting:
		c.mu.Unlock()

		return ErrDisconnecting

	case StateConnecting, StateReconnecting:
		w := make(chan error, 1)
		c.waiters = append(c.waiters, w)
		c.nudgeLocked() // Skip any backoff wait in progress.
		c.mu.Unlock()

		select {
		case err := <-w:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// StateDisconnected: this caller drives the dial.
	emit := c.transitionLocked(StateConnecting)
	c.mu.Unlock()
	emit()

	conn, err := c.dial(ctx, auth)
	if err != nil {
		c.mu.Lock()
		emit = c.transitionLocked(StateDisconnected)
		ws := c.takeWaitersLocked()
		c.mu.Unlock()
		emit()
		notifyWaiters(ws, err)

		return err
	}

	if !c.install(conn, StateConnecting) {
		return ErrDisconnected
	}

	return nil
}

// Disconnect closes the connection deliberately: all subscription state
// is cleared, outstanding requests are rejected with a cancellation
// error, and any scheduled reconnection is abandoned.
func (c *Client) Disconnect(code int, reason string) {
	c.mu.Lock()

	if c.closed || c.state == StateDisconnected || c.state == StateDisconnecting {
		c.mu.Unlock()

		return
	}

	conn := c.conn
	c.conn = nil
	c.gen++
	c.attempt = 0
	c.rejectPendingLocked(ErrDisconnected)
	c.subs = make(map[protocol.Channel]*Subscription)
	c.subOrder = nil
	c.replay = nil
	emit := c.transitionLocked(StateDisconnecting)
	ws := c.takeWaitersLocked()
	c.nudgeLocked() // Unparks the reconnect loop so it can observe the state change.
	c.mu.Unlock()

	emit()
	notifyWaiters(ws, ErrDisconnected)

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = conn.Close()
	}

	c.mu.Lock()
	emit = c.transitionLocked(StateDisconnected)
	c.mu.Unlock()
	emit()

	if c.config.Debug {
		PrintCloseMessage(code, reason)
	}

	c.emitDisconnected(code, reason)
}

// Close permanently shuts the client down. It disconnects, cancels the
// lifecycle context, and rejects any further calls with ErrClosed.
func (c *Client) Close() {
	c.Disconnect(mailwire.CloseUserDisconnect, "client closed")

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Connected reports whether the client is currently connected.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Subscriptions returns a copy of the current subscription entries in
// subscription order.
func (c *Client) Subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Subscription, 0, len(c.subOrder))

	for _, ch := range c.subOrder {
		if s := c.subs[ch]; s != nil {
			out = append(out, *s)
		}
	}

	return out
}

// --------------------------------------------------------------------------------
// Requests

// Subscribe opens a channel subscription and returns the server's initial
// data response. On success the subscription is recorded for auto-replay;
// re-subscribing an already-subscribed channel replaces its parameters.
func (c *Client) Subscribe(ctx context.Context, ch protocol.Channel, params protocol.Params) (*protocol.ServerMessage, error) {
	return c.request(ctx, protocol.NewSubscribeMessage(ch, params))
}

// Unsubscribe stops a channel subscription. The subscription is marked
// inactive once the server acknowledges, regardless of the ack's content,
// since the caller's intent was to stop.
func (c *Client) Unsubscribe(ctx context.Context, ch protocol.Channel) error {
	_, err := c.request(ctx, protocol.NewUnsubscribeMessage(ch))

	return err
}

// Fetch requests a pagination continuation on an already-subscribed
// channel. It does not alter subscription state, and is rejected locally
// with ErrNotSubscribed when the channel has no active subscription.
func (c *Client) Fetch(ctx context.Context, ch protocol.Channel, params protocol.Params) (*protocol.ServerMessage, error) {
	return c.request(ctx, protocol.NewFetchMessage(ch, params))
}

// request performs one correlated protocol round-trip.
func (c *Client) request(ctx context.Context, msg *protocol.ClientMessage) (*protocol.ServerMessage, error) {
	ch := msg.Channel
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil, ErrClosed
	}

	if c.state != StateConnected {
		c.mu.Unlock()

		return nil, ErrNotConnected
	}

	if msg.Type == protocol.TypeFetch {
		if s := c.subs[ch]; s == nil || !s.Active {
			c.mu.Unlock()

			return nil, fmt.Errorf("%w: %q", ErrNotSubscribed, ch)
		}
	}

	if _, dup := c.pending[ch]; dup {
		c.mu.Unlock()

		return nil, fmt.Errorf("%w: %q", ErrRequestPending, ch)
	}

	p := &pendingRequest{op: msg.Type, ch: make(chan pendingResult, 1)}
	c.pending[ch] = p
	c.mu.Unlock()

	data, err := msg.Encode()
	if err != nil {
		c.removePending(ch, p)

		return nil, err
	}

	if err := c.send(data); err != nil {
		c.removePending(ch, p)

		return nil, err
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		if msg.Type == protocol.TypeUnsubscribe {
			c.markUnsubscribed(ch)
		}

		if res.err != nil {
			return nil, res.err
		}

		if msg.Type == protocol.TypeSubscribe {
			c.recordSubscribed(ch, msg.Data)
		}

		return res.msg, nil

	case <-timer.C:
		c.removePending(ch, p)

		return nil, &RequestTimeoutError{Channel: ch, Op: msg.Type, Timeout: c.config.RequestTimeout}

	case <-ctx.Done():
		c.removePending(ch, p)

		return nil, ctx.Err()

	case <-c.ctx.Done():
		c.removePending(ch, p)

		return nil, ErrClosed
	}
}

// --------------------------------------------------------------------------------
// Event Registration

// OnConnected registers a listener for successful connections.
func (c *Client) OnConnected(fn ConnectedHandler) ListenerID {
	return c.emitter.add(EventConnected, fn)
}

// OnDisconnected registers a listener for connection loss.
func (c *Client) OnDisconnected(fn DisconnectedHandler) ListenerID {
	return c.emitter.add(EventDisconnected, fn)
}

// OnReconnecting registers a listener for reconnect attempts.
func (c *Client) OnReconnecting(fn ReconnectingHandler) ListenerID {
	return c.emitter.add(EventReconnecting, fn)
}

// OnError registers a listener for errors with no pending request to
// reject. Unobserved errors are logged instead of lost.
func (c *Client) OnError(fn ErrorHandler) ListenerID {
	return c.emitter.add(EventError, fn)
}

// OnData registers a listener for data frames. Every data frame is
// broadcast here even when it also resolved a pending request, so
// passive listeners on a channel observe responses too.
func (c *Client) OnData(fn MessageHandler) ListenerID {
	return c.emitter.add(EventData, fn)
}

// OnUpdate registers a listener for incremental update frames.
func (c *Client) OnUpdate(fn MessageHandler) ListenerID {
	return c.emitter.add(EventUpdate, fn)
}

// OnStateChange registers a listener for state transitions.
func (c *Client) OnStateChange(fn StateChangeHandler) ListenerID {
	return c.emitter.add(EventStateChange, fn)
}

// Off removes a previously registered listener. It reports whether the
// listener existed.
func (c *Client) Off(id ListenerID) bool {
	return c.emitter.remove(id)
}

// RemoveAllListeners clears the named events, or every listener when
// called without arguments.
func (c *Client) RemoveAllListeners(events ...Event) {
	c.emitter.removeAll(events...)
}

// --------------------------------------------------------------------------------
// Lifecycle Management (Private)

// dial opens the transport with the identity attached as query parameters.
func (c *Client) dial(ctx context.Context, auth mailwire.Auth) (*websocket.Conn, error) {
	target, err := c.dialURL(auth)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		Proxy:            c.config.Proxy,
		TLSClientConfig:  c.config.TLSClientConfig,
		HandshakeTimeout: c.config.ConnectTimeout,
	}

	dctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dctx, target, c.header)
	if err != nil {
		if resp != nil {
			c.logger.Error("connect failed: HTTP %d %s", resp.StatusCode, resp.Status)
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RequestTimeoutError{Op: opConnect, Timeout: c.config.ConnectTimeout}
		}

		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return conn, nil
}

// dialURL appends the identity to the endpoint's query string.
func (c *Client) dialURL(auth mailwire.Auth) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", c.url, err)
	}

	q := u.Query()
	q.Set("userId", auth.UserID)
	q.Set("accessToken", auth.AccessToken)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// install adopts an established transport: it bumps the connection
// generation, starts the reader and keep-alive goroutines, settles any
// waiting Connect callers, and announces the connected state. The state
// must still be the one the dial started from; a disconnect that raced
// the dial wins, and the fresh transport is closed instead of adopted.
func (c *Client) install(conn *websocket.Conn, from State) bool {
	c.mu.Lock()

	if c.closed || c.state != from {
		c.mu.Unlock()
		_ = conn.Close()

		return false
	}

	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempt = 0
	emit := c.transitionLocked(StateConnected)
	ws := c.takeWaitersLocked()
	c.mu.Unlock()

	if c.config.PingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))
		})

		go c.keepAlive(conn, gen)
	}

	go c.readLoop(conn, gen)

	c.logger.Info("connected to %s", c.url)

	if c.config.Debug {
		PrintConnectMessage()
	}

	emit()
	c.emitConnected()
	notifyWaiters(ws, nil)

	return true
}

// readLoop reads frames until the transport fails or is replaced.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportClose(gen, err)

			return
		}

		if c.config.Debug {
			PrintTextMessage(data, "received")
		}

		c.dispatch(gen, data)
	}
}

// keepAlive sends periodic pings; an unanswered ping trips the read
// deadline, which surfaces in the read loop as a transport failure.
func (c *Client) keepAlive(conn *websocket.Conn, gen int) {
	t := time.NewTicker(c.config.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
		}

		c.mu.Lock()
		stale := c.gen != gen || c.conn != conn
		c.mu.Unlock()

		if stale {
			return
		}

		deadline := time.Now().Add(c.config.PongTimeout)
		if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
			c.logger.Warn("keep-alive ping failed: %v", err)

			return
		}
	}
}

// handleTransportClose reacts to an unexpected transport failure on the
// given connection generation. Intentional closes bump the generation
// first, so their reader's report is ignored here. Close codes that mark
// the credentials themselves as bad are terminal: retrying with the same
// identity cannot succeed.
func (c *Client) handleTransportClose(gen int, err error) {
	code := websocket.CloseAbnormalClosure
	reason := err.Error()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
		reason = ce.Text
	}

	switch code {
	case mailwire.CloseTokenExpired:
		c.teardown(gen, code, reason, ErrTokenExpired, false)
	case mailwire.CloseAuthFailed:
		c.teardown(gen, code, reason, ErrAuthFailed, false)
	default:
		c.teardown(gen, code, reason, nil, true)
	}
}

// handleServerDisconnect processes a protocol-level disconnect frame.
// Token expiry is fatal for auto-retry: reconnecting with the stale
// token would only fail again, so the caller must re-authenticate.
func (c *Client) handleServerDisconnect(gen int, msg *protocol.ServerMessage) {
	reason := msg.DisconnectReason()
	c.logger.Info("server disconnect: %s", reason)

	if reason == protocol.ReasonTokenExpired {
		c.teardown(gen, mailwire.CloseTokenExpired, reason, ErrTokenExpired, false)

		return
	}

	c.teardown(gen, mailwire.CloseServerDisconnect, reason, nil, true)
}

// teardown closes the current transport, rejects outstanding requests,
// and either schedules reconnection or settles to disconnected.
func (c *Client) teardown(gen, code int, reason string, cause error, allowRetry bool) {
	c.mu.Lock()

	if c.closed || gen != c.gen {
		c.mu.Unlock()

		return
	}

	conn := c.conn
	c.conn = nil
	c.gen++
	prev := c.state
	c.rejectPendingLocked(ErrConnectionLost)

	retry := allowRetry && c.config.Reconnect && (prev == StateConnected || prev == StateReconnecting)

	if retry {
		c.snapshotReplayLocked()
	} else {
		c.replay = nil
	}

	c.subs = make(map[protocol.Channel]*Subscription)
	c.subOrder = nil

	var emit func()

	startLoop := false

	if retry {
		if !c.reconnecting {
			c.reconnecting = true
			startLoop = true
		}

		emit = c.transitionLocked(StateReconnecting)
	} else {
		emit = c.transitionLocked(StateDisconnected)
	}

	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	emit()

	if c.config.Debug {
		PrintCloseMessage(code, reason)
	}

	c.emitDisconnected(code, reason)

	if cause != nil {
		c.emitError(cause)
	}

	if startLoop {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries the connection with exponentially growing delays
// until it succeeds, the attempt cap is reached, or the client is
// disconnected. Explicit Connect calls during a backoff wait wake the
// loop so they share the next attempt instead of racing their own dial.
func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()

		if c.closed || c.state != StateReconnecting {
			c.mu.Unlock()

			return
		}

		attempt := c.attempt + 1

		if c.config.ReconnectAttempts > 0 && attempt > c.config.ReconnectAttempts {
			emit := c.transitionLocked(StateDisconnected)
			ws := c.takeWaitersLocked()
			c.mu.Unlock()

			emit()

			err := &ReconnectExhaustedError{Attempts: c.config.ReconnectAttempts}
			notifyWaiters(ws, err)
			c.emitDisconnected(mailwire.CloseReconnectsExhausted, "reconnect attempts exhausted")
			c.emitError(err)
			c.logger.Error("reconnection failed after %d attempts", c.config.ReconnectAttempts)

			return
		}

		c.attempt = attempt
		c.mu.Unlock()

		delay := util.Backoff(attempt, c.config.ReconnectDelay, c.config.MaxReconnectDelay)
		c.logger.Info("reconnecting attempt %d in %v", attempt, delay)

		if c.config.Debug {
			PrintRetryMessage(attempt, c.config.ReconnectAttempts, delay)
		}

		c.emitReconnecting(attempt, delay)

		select {
		case <-time.After(delay):
		case <-c.wake:
		case <-c.ctx.Done():
			return
		}

		c.mu.Lock()

		if c.closed || c.state != StateReconnecting {
			c.mu.Unlock()

			return
		}

		auth := c.auth
		c.mu.Unlock()

		conn, err := c.dial(c.ctx, auth)
		if err != nil {
			c.logger.Warn("reconnect attempt %d failed: %v", attempt, err)

			c.mu.Lock()
			ws := c.takeWaitersLocked()
			c.mu.Unlock()
			notifyWaiters(ws, err)

			continue
		}

		if !c.install(conn, StateReconnecting) {
			return
		}

		c.resubscribe()

		return
	}
}

// resubscribe replays the subscriptions that were active before the drop,
// in their original order. One channel failing does not abort the rest.
func (c *Client) resubscribe() {
	c.mu.Lock()
	replay := c.replay
	c.replay = nil
	auto := c.config.AutoSubscribe
	c.mu.Unlock()

	if !auto {
		return
	}

	for _, s := range replay {
		if _, err := c.Subscribe(c.ctx, s.Channel, s.Params); err != nil {
			c.logger.Error("resubscribe %q failed: %v", s.Channel, err)
			c.emitError(fmt.Errorf("resubscribe %q: %w", s.Channel, err))
		}
	}
}

// --------------------------------------------------------------------------------
// Message Handling (Private)

// dispatch routes one parsed frame: disconnect frames drive the state
// machine; data frames resolve the channel's pending request and are also
// broadcast to listeners (dual delivery). Update frames are asynchronous
// pushes and never touch the pending table: one can arrive on a live
// channel while a fetch is in flight there, and must not consume the
// request awaiting its data answer.
func (c *Client) dispatch(gen int, data []byte) {
	msg, err := protocol.ParseServerMessage(data)
	if err != nil {
		c.logger.Warn("dropping frame: %v", err)
		c.emitError(err)

		return
	}

	switch msg.Type {
	case protocol.TypeDisconnect:
		c.handleServerDisconnect(gen, msg)
	case protocol.TypeData:
		c.resolvePending(msg)
		c.emitMessage(EventData, msg)
	case protocol.TypeUpdate:
		if err := msg.Err(); err != nil {
			c.emitError(err)
		}

		c.emitMessage(EventUpdate, msg)
	}
}

// resolvePending settles the in-flight request for the frame's channel,
// if any. Unmatched server failures surface via the error event.
func (c *Client) resolvePending(msg *protocol.ServerMessage) {
	ch := protocol.Channel(msg.Channel)

	c.mu.Lock()
	p := c.pending[ch]

	if p != nil {
		delete(c.pending, ch)
	}

	c.mu.Unlock()

	if p == nil {
		if err := msg.Err(); err != nil {
			c.emitError(err)
		}

		return
	}

	c.logger.Debug("resolved %s %q", p.op, ch)

	if err := msg.Err(); err != nil {
		p.ch <- pendingResult{err: err}

		return
	}

	p.ch <- pendingResult{msg: msg}
}

// send transmits a text frame with a write deadline.
func (c *Client) send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.config.Debug {
		PrintTextMessage(data, "send")
	}

	if err := conn.SetWriteDeadline(time.Now().Add(c.config.RequestTimeout)); err != nil {
		return fmt.Errorf("set write deadline failed: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}

// --------------------------------------------------------------------------------
// State Helpers (Private)

// transitionLocked changes the state under the lock and returns a closure
// that emits the stateChange event; callers invoke it after unlocking so
// listeners never run while the client lock is held.
func (c *Client) transitionLocked(to State) func() {
	old := c.state
	if old == to {
		return func() {}
	}

	c.state = to

	return func() {
		c.logger.Debug("state %s -> %s", old, to)

		for _, fn := range c.emitter.listeners(EventStateChange) {
			fn.(StateChangeHandler)(old, to)
		}
	}
}

// recordSubscribed creates or replaces the subscription entry for ch.
func (c *Client) recordSubscribed(ch protocol.Channel, params protocol.Params) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[ch]; !exists {
		c.subOrder = append(c.subOrder, ch)
	}

	c.subs[ch] = &Subscription{
		Channel:      ch,
		Params:       params,
		Active:       true,
		SubscribedAt: time.Now(),
	}
}

// markUnsubscribed flags the subscription for ch inactive.
func (c *Client) markUnsubscribed(ch protocol.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.subs[ch]; s != nil {
		s.Active = false
	}
}

// snapshotReplayLocked captures the active subscriptions in order for the
// post-reconnect replay.
func (c *Client) snapshotReplayLocked() {
	c.replay = nil

	for _, ch := range c.subOrder {
		if s := c.subs[ch]; s != nil && s.Active {
			cp := *s
			c.replay = append(c.replay, &cp)
		}
	}
}

// removePending drops a pending request if it is still the registered one.
func (c *Client) removePending(ch protocol.Channel, p *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[ch] == p {
		delete(c.pending, ch)
	}
}

// rejectPendingLocked rejects every outstanding request with err.
func (c *Client) rejectPendingLocked(err error) {
	for ch, p := range c.pending {
		p.ch <- pendingResult{err: err}
		delete(c.pending, ch)
	}
}

// nudgeLocked wakes the reconnect loop out of its backoff wait.
func (c *Client) nudgeLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// takeWaitersLocked claims the Connect callers awaiting the current attempt.
func (c *Client) takeWaitersLocked() []chan error {
	ws := c.waiters
	c.waiters = nil

	return ws
}

// notifyWaiters settles waiting Connect callers; channels are buffered so
// this never blocks.
func notifyWaiters(ws []chan error, err error) {
	for _, w := range ws {
		w <- err
	}
}

// --------------------------------------------------------------------------------
// Event Emission (Private)

func (c *Client) emitConnected() {
	for _, fn := range c.emitter.listeners(EventConnected) {
		fn.(ConnectedHandler)()
	}
}

func (c *Client) emitDisconnected(code int, reason string) {
	for _, fn := range c.emitter.listeners(EventDisconnected) {
		fn.(DisconnectedHandler)(code, reason)
	}
}

func (c *Client) emitReconnecting(attempt uint, delay time.Duration) {
	for _, fn := range c.emitter.listeners(EventReconnecting) {
		fn.(ReconnectingHandler)(attempt, delay)
	}
}

// emitError broadcasts an error that has no pending request to reject.
// With no listeners attached it logs instead, so failures stay
// discoverable without ever crashing the host.
func (c *Client) emitError(err error) {
	ls := c.emitter.listeners(EventError)
	if len(ls) == 0 {
		c.logger.Warn("unobserved error: %v", err)

		return
	}

	for _, fn := range ls {
		fn.(ErrorHandler)(err)
	}
}

func (c *Client) emitMessage(ev Event, msg *protocol.ServerMessage) {
	for _, fn := range c.emitter.listeners(ev) {
		fn.(MessageHandler)(msg.Channel, msg)
	}
}

// --------------------------------------------------------------------------------
// Option Functions

// WithReconnect enables or disables automatic reconnection.
func WithReconnect(enable bool) Option {
	return func(c *Client) error {
		c.config.Reconnect = enable

		return nil
	}
}

// WithReconnectDelay sets the initial reconnect backoff delay.
//
// Returns an error if the delay is negative.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("reconnect delay cannot be negative: %v", d)
		}

		c.config.ReconnectDelay = d

		return nil
	}
}

// WithMaxReconnectDelay caps the reconnect backoff delay.
//
// Returns an error if the delay is negative.
func WithMaxReconnectDelay(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("max reconnect delay cannot be negative: %v", d)
		}

		c.config.MaxReconnectDelay = d

		return nil
	}
}

// WithReconnectAttempts caps the number of reconnect attempts; 0 means
// unlimited.
func WithReconnectAttempts(n uint) Option {
	return func(c *Client) error {
		c.config.ReconnectAttempts = n

		return nil
	}
}

// WithAutoSubscribe controls whether active subscriptions are replayed
// after a successful reconnect.
func WithAutoSubscribe(enable bool) Option {
	return func(c *Client) error {
		c.config.AutoSubscribe = enable

		return nil
	}
}

// WithPing enables client-driven keep-alive pings. An interval of 0
// leaves keep-alive to the server.
//
// Returns an error if either duration is negative.
func WithPing(interval, pongTimeout time.Duration) Option {
	return func(c *Client) error {
		if interval < 0 || pongTimeout < 0 {
			return fmt.Errorf("ping durations cannot be negative: interval=%v, pongTimeout=%v", interval, pongTimeout)
		}

		c.config.PingInterval = interval

		if pongTimeout > 0 {
			c.config.PongTimeout = pongTimeout
		}

		return nil
	}
}

// WithConnectTimeout bounds a single connection attempt.
//
// Returns an error if the timeout is not positive.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("connect timeout must be positive: %v", d)
		}

		c.config.ConnectTimeout = d

		return nil
	}
}

// WithRequestTimeout bounds a protocol round-trip.
//
// Returns an error if the timeout is not positive.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive: %v", d)
		}

		c.config.RequestTimeout = d

		return nil
	}
}

// WithDebug enables colorized frame printing.
func WithDebug(enable bool) Option {
	return func(c *Client) error {
		c.config.Debug = enable

		return nil
	}
}

// WithLogger sets a custom logger for the client.
//
// Returns an error if the logger is nil.
func WithLogger(l logger.Interface) Option {
	return func(c *Client) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}

		c.logger = l

		return nil
	}
}

// WithTLS sets the TLS configuration for wss:// endpoints.
func WithTLS(cfg *tls.Config) Option {
	return func(c *Client) error {
		c.config.TLSClientConfig = cfg

		return nil
	}
}

// WithProxy configures the proxy using a URL string or custom function.
//
// Returns an error if the proxy URL is invalid or the type is unsupported.
func WithProxy(proxy any) Option {
	return func(c *Client) error {
		switch p := proxy.(type) {
		case string:
			if p == "" {
				c.config.Proxy = nil

				return nil
			}

			u, err := url.Parse(p)
			if err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", p, err)
			}

			c.config.Proxy = http.ProxyURL(u)
		case func(*http.Request) (*url.URL, error):
			c.config.Proxy = p
		case nil:
			c.config.Proxy = nil
		default:
			return fmt.Errorf("unsupported proxy type: %T", proxy)
		}

		return nil
	}
}

// WithHeader adds a single key-value pair to the handshake headers.
//
// Returns an error if the key is empty.
func WithHeader(key, value string) Option {
	return func(c *Client) error {
		if key == "" {
			return errors.New("header key cannot be empty")
		}

		c.header.Set(key, value)

		return nil
	}
}

// WithHeaders applies multiple headers to the handshake from a map.
//
// Returns an error if any key is empty.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) error {
		for k, v := range headers {
			if k == "" {
				return errors.New("header key cannot be empty")
			}

			c.header.Set(k, v)
		}

		return nil
	}
}

// WithContext replaces the default lifecycle context with a custom one.
//
// Returns an error if the context is nil.
func WithContext(ctx context.Context) Option {
	return func(c *Client) error {
		if ctx == nil {
			return errors.New("context cannot be nil")
		}

		c.ctx, c.cancel = context.WithCancel(ctx)

		return nil
	}
}
