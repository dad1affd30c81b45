// Package pool shares one real-time connection per authenticated identity
// across any number of concurrent callers. Acquires are reference-counted
// and teardown is deferred by a grace window, so a caller releasing and
// immediately re-acquiring (the remount pattern) does not pay for a full
// reconnect.
package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mailwire/mailwire"
	"github.com/mailwire/mailwire/logger"
	"github.com/mailwire/mailwire/websocket"
)

// --------------------------------------------------------------------------------
// Constants

// DefaultCleanupDelay is the grace window an idle connection survives
// after its last reference is released.
const DefaultCleanupDelay = 5 * time.Second

// --------------------------------------------------------------------------------
// Errors

var (
	ErrPoolClosed   = errors.New("mailwire/pool: pool is closed")
	ErrPoolDisabled = errors.New("mailwire/pool: pool is disabled")
)

// --------------------------------------------------------------------------------
// Types

// Option defines a function that configures a Pool and returns an error if configuration fails.
type Option func(*Pool) error

// instance tracks one shared connection and its logical users.
type instance struct {
	id       string // For log correlation.
	client   *websocket.Client
	refCount int
	cleanup  *time.Timer // Armed while refCount is zero.
}

// Pool is a keyed registry of client connections shared by identity.
//
// It is the sole mutator of refcounts and cleanup timers; all per-identity
// mutation is serialized behind its mutex.
type Pool struct {
	url          string
	enabled      bool
	cleanupDelay time.Duration
	clientOpts   []websocket.Option
	logger       logger.Interface

	mu        sync.Mutex
	instances map[string]*instance // Keyed by user id.
	closed    bool
}

// --------------------------------------------------------------------------------
// Initialization

// New creates a pool for the given endpoint and applies options.
func New(endpoint string, opts ...Option) (*Pool, error) {
	l, err := logger.New("info", os.Stdout)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		url:          endpoint,
		enabled:      true,
		cleanupDelay: DefaultCleanupDelay,
		logger:       l,
		instances:    make(map[string]*instance),
	}

	return p.With(opts...)
}

// With applies a list of options to the Pool and returns the modified instance along with any error.
func (p *Pool) With(opts ...Option) (*Pool, error) {
	for i, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(p); err != nil {
			return p, fmt.Errorf("failed to apply option at index %d: %w", i, err)
		}
	}

	return p, nil
}

// --------------------------------------------------------------------------------
// Public Methods

// Enabled reports whether the pool hands out connections at all. Callers
// check this flag instead of probing for errors.
func (p *Pool) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.enabled && !p.closed
}

// GetClient returns the shared client for an identity, creating the
// registry entry on first call. It is a plain accessor: the reference
// count is untouched. Returns nil when the pool is disabled or closed.
func (p *Pool) GetClient(auth mailwire.Auth) *websocket.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled || p.closed {
		return nil
	}

	inst, err := p.instanceLocked(auth)
	if err != nil {
		p.logger.Error("pool: creating client for %q failed: %v", auth.UserID, err)

		return nil
	}

	return inst.client
}

// Connect acquires the shared connection for an identity: the entry is
// created if absent, any pending cleanup is cancelled, the reference
// count is incremented, and the connection is established if it is not
// already up or on its way up. Concurrent acquirers share one transport
// open. If the connect attempt fails the increment is rolled back and
// the error propagates.
func (p *Pool) Connect(ctx context.Context, auth mailwire.Auth) error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return ErrPoolClosed
	}

	if !p.enabled {
		p.mu.Unlock()

		return ErrPoolDisabled
	}

	inst, err := p.instanceLocked(auth)
	if err != nil {
		p.mu.Unlock()

		return err
	}

	if inst.cleanup != nil {
		inst.cleanup.Stop()
		inst.cleanup = nil
	}

	inst.refCount++
	p.logger.Debug("pool: acquire %s for %q, refs=%d", inst.id, auth.UserID, inst.refCount)
	p.mu.Unlock()

	if err := inst.client.Connect(ctx, auth); err != nil {
		p.release(auth.UserID, inst)

		return err
	}

	return nil
}

// Disconnect releases one reference to the identity's connection. When
// the count reaches zero a cleanup timer is armed; if nothing re-acquires
// the connection within the grace window, it is closed and removed.
func (p *Pool) Disconnect(auth mailwire.Auth) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst := p.instances[auth.UserID]
	if inst == nil {
		return
	}

	p.releaseLocked(auth.UserID, inst)
}

// IsConnected reports whether the identity currently has an established
// connection. No side effects.
func (p *Pool) IsConnected(auth mailwire.Auth) bool {
	return p.ConnectionState(auth) == websocket.StateConnected
}

// ConnectionState returns the identity's connection state, or
// StateDisconnected when the identity has no entry. No side effects.
func (p *Pool) ConnectionState(auth mailwire.Auth) websocket.State {
	p.mu.Lock()
	inst := p.instances[auth.UserID]
	p.mu.Unlock()

	if inst == nil {
		return websocket.StateDisconnected
	}

	return inst.client.State()
}

// RefCount returns the current reference count for an identity, or 0
// when it has no entry. No side effects.
func (p *Pool) RefCount(auth mailwire.Auth) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst := p.instances[auth.UserID]
	if inst == nil {
		return 0
	}

	return inst.refCount
}

// Close tears the pool down: every outstanding connection is
// force-disconnected and every cleanup timer cancelled, regardless of
// reference counts.
func (p *Pool) Close() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	instances := p.instances
	p.instances = make(map[string]*instance)
	p.mu.Unlock()

	for _, inst := range instances {
		if inst.cleanup != nil {
			inst.cleanup.Stop()
		}

		inst.client.Close()
	}

	p.logger.Info("pool: closed %d connection(s)", len(instances))
}

// --------------------------------------------------------------------------------
// Private Methods

// instanceLocked returns the entry for an identity, creating it with a
// zero reference count on first sight.
func (p *Pool) instanceLocked(auth mailwire.Auth) (*instance, error) {
	if inst := p.instances[auth.UserID]; inst != nil {
		return inst, nil
	}

	client, err := websocket.New(p.url, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	inst := &instance{
		id:     uuid.NewString(),
		client: client,
	}
	p.instances[auth.UserID] = inst
	p.logger.Debug("pool: created %s for %q", inst.id, auth.UserID)

	return inst, nil
}

// release decrements outside callers' failed acquires.
func (p *Pool) release(key string, inst *instance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instances[key] != inst {
		return
	}

	p.releaseLocked(key, inst)
}

// releaseLocked drops one reference, clamping at zero, and arms the
// cleanup timer when the last reference goes away.
func (p *Pool) releaseLocked(key string, inst *instance) {
	if inst.refCount > 0 {
		inst.refCount--
	}

	p.logger.Debug("pool: release %s for %q, refs=%d", inst.id, key, inst.refCount)

	if inst.refCount == 0 && inst.cleanup == nil && !p.closed {
		inst.cleanup = time.AfterFunc(p.cleanupDelay, func() {
			p.reap(key, inst)
		})
	}
}

// reap closes and removes an instance whose grace window elapsed with no
// re-acquire. A revived instance (refCount back above zero, or a fresh
// entry under the same key) is left alone.
func (p *Pool) reap(key string, inst *instance) {
	p.mu.Lock()

	if p.closed || p.instances[key] != inst || inst.refCount != 0 {
		p.mu.Unlock()

		return
	}

	delete(p.instances, key)
	p.mu.Unlock()

	p.logger.Info("pool: closing idle connection %s for %q", inst.id, key)
	inst.client.Close()
}

// --------------------------------------------------------------------------------
// Option Functions

// WithEnabled turns the pool on or off. A disabled pool returns nil
// clients and rejects Connect with ErrPoolDisabled.
func WithEnabled(enable bool) Option {
	return func(p *Pool) error {
		p.enabled = enable

		return nil
	}
}

// WithCleanupDelay sets the idle grace window before an unreferenced
// connection is torn down.
//
// Returns an error if the delay is negative.
func WithCleanupDelay(d time.Duration) Option {
	return func(p *Pool) error {
		if d < 0 {
			return fmt.Errorf("cleanup delay cannot be negative: %v", d)
		}

		p.cleanupDelay = d

		return nil
	}
}

// WithClientOptions forwards options to every client the pool creates.
func WithClientOptions(opts ...websocket.Option) Option {
	return func(p *Pool) error {
		p.clientOpts = opts

		return nil
	}
}

// WithLogger sets a custom logger for the pool.
//
// Returns an error if the logger is nil.
func WithLogger(l logger.Interface) Option {
	return func(p *Pool) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}

		p.logger = l

		return nil
	}
}
