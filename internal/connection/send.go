package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/interaction"
)

// Ack is the peripheral's acknowledgment of one frame.
type Ack struct {
	ID   uuid.UUID
	Data []byte
	RTT  time.Duration
}

type result struct {
	ack Ack
	err error
}

type request struct {
	id       uuid.UUID
	ctx      context.Context
	frame    codec.Frame
	enqueued time.Time
	result   chan result
}

// Send encodes i and delivers it. Sends are written one at a time in the
// order they were accepted; a full queue fails fast with device.ErrBusy.
// There is no internal retry.
func (m *Manager) Send(ctx context.Context, i interaction.Interaction) (Ack, error) {
	frame, err := codec.EncodeInteraction(i)
	if err != nil {
		return Ack{}, err
	}
	return m.SendFrame(ctx, frame)
}

// SendFrame delivers a pre-encoded frame through the same queue as Send.
func (m *Manager) SendFrame(ctx context.Context, frame codec.Frame) (Ack, error) {
	if _, err := codec.Decode(frame); err != nil {
		return Ack{}, fmt.Errorf("refusing malformed frame: %w", err)
	}

	req := &request{
		id:       uuid.New(),
		ctx:      ctx,
		frame:    frame,
		enqueued: time.Now(),
		result:   make(chan result, 1),
	}

	m.mu.Lock()
	sess := m.sess
	if m.state != Connected || sess == nil || sess.closed {
		m.mu.Unlock()
		m.record(req, Ack{}, device.ErrNotConnected)
		return Ack{}, device.ErrNotConnected
	}
	select {
	case sess.queue <- req:
	default:
		m.mu.Unlock()
		m.record(req, Ack{}, device.ErrBusy)
		return Ack{}, device.ErrBusy
	}
	depth := len(sess.queue)
	m.mu.Unlock()
	m.metrics.QueueDepth(depth)

	select {
	case r := <-req.result:
		return r.ack, r.err
	case <-ctx.Done():
		// The writer skips or finishes the request on its own.
		return Ack{}, ctx.Err()
	}
}

// writeLoop is the only goroutine that writes to the link.
func (m *Manager) writeLoop(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			m.closeQueue(sess)
			return
		case req := <-sess.queue:
			m.metrics.QueueDepth(len(sess.queue))
			ack, err := m.process(ctx, sess, req)
			m.reply(req, ack, err)
		}
	}
}

// closeQueue stops accepting requests and fails everything still queued.
func (m *Manager) closeQueue(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess.closed = true
	for {
		select {
		case req := <-sess.queue:
			m.reply(req, Ack{}, device.ErrNotConnected)
		default:
			m.metrics.QueueDepth(0)
			return
		}
	}
}

// process writes one frame and waits for its acknowledgment. A write that
// times out is still awaited before returning, so frames never interleave.
func (m *Manager) process(ctx context.Context, sess *session, req *request) (Ack, error) {
	if ctx.Err() != nil {
		return Ack{}, device.ErrNotConnected
	}
	if err := req.ctx.Err(); err != nil {
		return Ack{}, err
	}

	m.mu.Lock()
	link := sess.link
	m.mu.Unlock()
	if link == nil {
		return Ack{}, device.ErrLinkDropped
	}

	m.resetAcks()
	start := time.Now()

	written := make(chan error, 1)
	go func() { written <- link.Write(req.frame, m.opts.WriteWithResponse) }()

	writeTimer := time.NewTimer(m.opts.WriteTimeout)
	defer writeTimer.Stop()

	select {
	case err := <-written:
		if err != nil {
			return Ack{}, m.writeError(link, err)
		}
	case <-link.Disconnected():
		return Ack{}, device.ErrLinkDropped
	case <-writeTimer.C:
		m.logger.WithField("frame", req.frame.Hex()).Warn("Write timed out, waiting for it to settle")
		select {
		case <-written:
		case <-link.Disconnected():
		case <-ctx.Done():
		}
		return Ack{}, fmt.Errorf("%w: write not completed within %s", device.ErrWriteTimeout, m.opts.WriteTimeout)
	}

	ackTimer := time.NewTimer(m.opts.AckTimeout)
	defer ackTimer.Stop()

	select {
	case <-m.ackSignal:
		return Ack{ID: req.id, Data: m.readAcks(), RTT: time.Since(start)}, nil
	case <-ackTimer.C:
		return Ack{}, fmt.Errorf("%w: no acknowledgment within %s", device.ErrWriteTimeout, m.opts.AckTimeout)
	case <-link.Disconnected():
		return Ack{}, device.ErrLinkDropped
	case <-req.ctx.Done():
		return Ack{}, req.ctx.Err()
	case <-ctx.Done():
		return Ack{}, device.ErrNotConnected
	}
}

func (m *Manager) writeError(link device.Link, err error) error {
	select {
	case <-link.Disconnected():
		return fmt.Errorf("%w: %v", device.ErrLinkDropped, err)
	default:
	}
	return fmt.Errorf("write failed: %w", device.NormalizeError(err))
}

func (m *Manager) reply(req *request, ack Ack, err error) {
	m.record(req, ack, err)
	req.result <- result{ack: ack, err: err}
}

func (m *Manager) record(req *request, ack Ack, err error) {
	res := resultLabel(err)
	m.metrics.Sent(res, ack.RTT)

	code, _ := codec.Decode(req.frame)
	m.journal.add(SendRecord{
		ID:     req.id,
		Code:   string(code),
		Frame:  req.frame.Hex(),
		Result: res,
		RTT:    ack.RTT,
		At:     req.enqueued,
	})

	log := m.logger.WithFields(logrus.Fields{
		"id":     req.id,
		"code":   string(code),
		"result": res,
	})
	if err != nil {
		log.WithError(err).Debug("Send failed")
		return
	}
	log.WithField("rtt", ack.RTT).Debug("Send acknowledged")
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, device.ErrBusy):
		return "busy"
	case errors.Is(err, device.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, device.ErrLinkDropped):
		return "link_dropped"
	case errors.Is(err, device.ErrWriteTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
