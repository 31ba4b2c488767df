// Package connection owns the link to the paired peripheral: availability
// checks, connect with supervised reconnects, and serialized sends.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/groutine"
	"github.com/srg/tangible/internal/metrics"
	"github.com/srg/tangible/internal/pairing"
	"github.com/srg/tangible/internal/permission"
	"github.com/srg/tangible/internal/ringchan"
	"github.com/srg/tangible/internal/scanner"
)

const ackBufferSize = 512

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithOptions sets the tuning.
func WithOptions(o Options) Option {
	return func(m *Manager) { m.opts = o }
}

// session is one Connect..Disconnect span. Its writer and supervisor
// goroutines exit when ctx is cancelled.
type session struct {
	address string
	cancel  context.CancelFunc
	queue   chan *request

	link   device.Link
	closed bool // queue no longer accepts requests

	done       <-chan struct{}
	writerDone <-chan struct{}
}

// Manager drives the connection lifecycle for the single paired peripheral.
//
// All methods are safe for concurrent use. State changes only inside the
// Manager and are published to subscribers in order.
type Manager struct {
	radio   device.Radio
	store   pairing.Store
	perms   permission.Checker
	scanner *scanner.Scanner
	logger  *logrus.Logger
	metrics *metrics.Collector
	opts    Options

	mu      sync.Mutex
	state   State
	sess    *session
	changes *ringchan.Broadcaster[State]

	acks      *ringbuffer.RingBuffer
	ackSignal chan struct{}
	journal   *journal
}

// New creates a Manager.
func New(radio device.Radio, store pairing.Store, perms permission.Checker, opts ...Option) *Manager {
	m := &Manager{
		radio:     radio,
		store:     store,
		perms:     perms,
		logger:    logrus.New(),
		opts:      DefaultOptions(),
		changes:   ringchan.NewBroadcaster[State](),
		acks:      ringbuffer.New(ackBufferSize),
		ackSignal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.opts = m.opts.sanitized()
	m.scanner = scanner.New(radio, m.logger, nil)
	m.journal = newJournal(m.opts.JournalSize)
	m.metrics.State(m.state.String(), stateLabels())
	return m
}

// Options returns the effective tuning.
func (m *Manager) Options() Options { return m.opts }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns the peripheral address of the current session, or "".
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.address
}

// Subscribe streams state changes until ctx is done. A subscriber that falls
// behind loses the oldest changes, never the latest.
func (m *Manager) Subscribe(ctx context.Context) <-chan State {
	return m.changes.Subscribe(ctx, 16)
}

// Journal removes and returns the recorded send outcomes, oldest first.
func (m *Manager) Journal() []SendRecord { return m.journal.drain() }

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"from": m.state,
		"to":   s,
	}).Debug("Connection state changed")
	m.state = s
	m.metrics.State(s.String(), stateLabels())
	m.changes.Publish(s)
}

// CheckAvailability decides whether the paired peripheral can be reached
// right now. Missing radio permission yields device.ErrPermission; a scan
// failure is reported as NotFound.
func (m *Manager) CheckAvailability(ctx context.Context) (Availability, error) {
	if !m.perms.HasRadioPermission(ctx) {
		m.metrics.Availability("permission_denied")
		return Pending, device.ErrPermission
	}

	addr, err := m.store.Get(ctx)
	if errors.Is(err, device.ErrNoPairedPeripheral) {
		m.metrics.Availability(NotPaired.String())
		return NotPaired, nil
	}
	if err != nil {
		return Pending, fmt.Errorf("failed to read pairing record: %w", err)
	}

	// A connected peripheral usually stops advertising.
	m.mu.Lock()
	live := m.state == Connected && m.sess != nil && pairing.SameAddress(m.sess.address, addr)
	m.mu.Unlock()
	if live {
		m.metrics.Availability(Available.String())
		return Available, nil
	}

	log := m.logger.WithField("address", addr)
	_, found, err := m.scanner.Find(ctx, m.opts.AvailabilityTimeout, addr)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Pending, ctxErr
	}
	if err != nil {
		log.WithError(err).Warn("Availability scan failed")
		m.metrics.ScanFailed()
		m.metrics.Availability(NotFound.String())
		return NotFound, nil
	}

	result := NotFound
	if found {
		result = Available
	}
	log.WithField("availability", result).Info("Availability checked")
	m.metrics.Availability(result.String())
	return result, nil
}

// Connect dials the paired peripheral and returns once the first link is up
// or the first dial has failed. The link is then supervised until Disconnect
// or ctx ends; with AutoReconnect a dropped link is redialed with
// exponential backoff.
func (m *Manager) Connect(ctx context.Context) error {
	addr, err := m.store.Get(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != Disconnected || m.sess != nil {
		m.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	if !claim(addr, m) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is held by another manager", device.ErrAlreadyConnected, addr)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		address: addr,
		cancel:  cancel,
		queue:   make(chan *request, m.opts.SendQueueSize),
	}
	m.sess = sess
	m.setStateLocked(Connecting)

	m.logger.WithField("address", addr).Info("Connecting to peripheral...")

	// Both done channels are set before the lock is released.
	first := make(chan error, 1)
	sess.writerDone = groutine.Go(sessCtx, "ble-writer", func(ctx context.Context) {
		m.writeLoop(ctx, sess)
	})
	sess.done = groutine.Go(sessCtx, "ble-supervisor", func(ctx context.Context) {
		m.supervise(ctx, sess, first)
	})
	m.mu.Unlock()

	return <-first
}

// Disconnect ends the session: queued sends fail with ErrNotConnected, the
// link is closed and the address claim released. It returns once the
// session is fully torn down. Disconnecting an idle Manager is a no-op.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	sess := m.sess
	if sess == nil {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(Disconnecting)
	m.mu.Unlock()

	m.logger.WithField("address", sess.address).Info("Disconnecting from peripheral...")
	sess.cancel()
	<-sess.done
	return nil
}

// supervise owns the link for the lifetime of sess. The first dial result
// goes to first; later failures are retried when AutoReconnect is set.
func (m *Manager) supervise(ctx context.Context, sess *session, first chan<- error) {
	var firstErr error
	defer func() {
		m.finish(sess)
		if first != nil {
			first <- firstErr
		}
	}()

	log := m.logger.WithField("address", sess.address)
	backoff := m.opts.ReconnectBackoff
	reconnecting := false

	for {
		link, err := m.dial(ctx, sess.address)
		m.metrics.ConnectAttempt(err)
		if err != nil {
			if first != nil {
				firstErr = err
				return
			}
			log.WithError(err).WithField("retry_in", backoff).Warn("Reconnect failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, m.opts.MaxReconnectBackoff)
			continue
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			// Disconnect raced the dial.
			m.mu.Unlock()
			_ = link.Close()
			firstErr = ctx.Err()
			return
		}
		sess.link = link
		m.setStateLocked(Connected)
		m.mu.Unlock()

		if reconnecting {
			m.metrics.Reconnected()
			log.Info("Reconnected to peripheral")
		} else {
			log.Info("Connected to peripheral")
		}
		if first != nil {
			first <- nil
			first = nil
		}
		backoff = m.opts.ReconnectBackoff

		select {
		case <-ctx.Done():
			return
		case <-link.Disconnected():
		}

		if ctx.Err() != nil {
			return
		}
		m.metrics.LinkDropped()
		log.Warn("Link to peripheral dropped")
		_ = link.Close()

		m.mu.Lock()
		sess.link = nil
		if !m.opts.AutoReconnect || ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(Connecting)
		m.mu.Unlock()

		reconnecting = true
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

// dial opens a link bounded by ConnectTimeout and subscribes to acknowledgments.
func (m *Manager) dial(ctx context.Context, address string) (device.Link, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	link, err := m.radio.Dial(dialCtx, address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", address, device.NormalizeError(err))
	}
	if err := link.Subscribe(m.onNotify); err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("failed to subscribe to acknowledgments: %w", device.NormalizeError(err))
	}
	return link, nil
}

// finish tears sess down and returns the Manager to Disconnected.
func (m *Manager) finish(sess *session) {
	sess.cancel()

	m.mu.Lock()
	link := sess.link
	sess.link = nil
	m.mu.Unlock()
	if link != nil {
		if err := link.Close(); err != nil {
			m.logger.WithError(err).Debug("Link close reported an error")
		}
	}

	<-sess.writerDone

	m.mu.Lock()
	if m.sess == sess {
		m.sess = nil
	}
	release(sess.address, m)
	m.setStateLocked(Disconnected)
	m.mu.Unlock()
}

// onNotify collects TX notifications; any non-empty one is an acknowledgment.
func (m *Manager) onNotify(data []byte) {
	if len(data) == 0 {
		return
	}
	if _, err := m.acks.Write(data); err != nil {
		m.logger.WithError(err).Debug("Acknowledgment buffer full, dropping bytes")
	}
	select {
	case m.ackSignal <- struct{}{}:
	default:
	}
}

func (m *Manager) resetAcks() {
	m.acks.Reset()
	select {
	case <-m.ackSignal:
	default:
	}
}

func (m *Manager) readAcks() []byte {
	buf := make([]byte, m.acks.Length())
	n, err := m.acks.Read(buf)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		m.logger.WithError(err).Debug("Failed to read acknowledgment buffer")
	}
	return buf[:n]
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
