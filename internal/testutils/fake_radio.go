package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/device"
)

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Address string
	Name    string
	Signal  int
}

func (a FakeAdvertisement) Addr() string      { return a.Address }
func (a FakeAdvertisement) LocalName() string { return a.Name }
func (a FakeAdvertisement) RSSI() int         { return a.Signal }

// FakeRadio is an in-memory device.Radio. Each Scan replays the configured
// advertisements and then blocks until its context ends, like a real radio.
type FakeRadio struct {
	mu          sync.Mutex
	adverts     []device.Advertisement
	scanErr     error
	advertDelay time.Duration
	peripherals map[string]*FakePeripheral

	activeScans atomic.Int32
	scans       atomic.Int32
	dials       atomic.Int32
}

func NewFakeRadio() *FakeRadio {
	return &FakeRadio{peripherals: make(map[string]*FakePeripheral)}
}

// Advertise adds an advertisement replayed by every later scan.
func (r *FakeRadio) Advertise(address, name string, rssi int) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adverts = append(r.adverts, FakeAdvertisement{Address: address, Name: name, Signal: rssi})
	return r
}

// FailScans makes every scan return err after replaying advertisements.
func (r *FakeRadio) FailScans(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
	return r
}

// SetAdvertDelay spaces out advertisements within a scan.
func (r *FakeRadio) SetAdvertDelay(d time.Duration) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advertDelay = d
	return r
}

// AddPeripheral makes p dialable and advertises it.
func (r *FakeRadio) AddPeripheral(p *FakePeripheral, name string) *FakeRadio {
	r.mu.Lock()
	r.peripherals[strings.ToUpper(p.Address)] = p
	r.mu.Unlock()
	return r.Advertise(p.Address, name, -50)
}

func (r *FakeRadio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	r.scans.Add(1)
	r.activeScans.Add(1)
	defer r.activeScans.Add(-1)

	r.mu.Lock()
	adverts := append([]device.Advertisement(nil), r.adverts...)
	scanErr, delay := r.scanErr, r.advertDelay
	r.mu.Unlock()

	rounds := 1
	if allowDup {
		rounds = 2
	}
	for round := 0; round < rounds; round++ {
		for _, adv := range adverts {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			handler(adv)
		}
	}

	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *FakeRadio) Dial(ctx context.Context, address string) (device.Link, error) {
	r.dials.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	p, ok := r.peripherals[strings.ToUpper(address)]
	r.mu.Unlock()
	if !ok {
		<-ctx.Done()
		return nil, fmt.Errorf("dial %s: %w", address, ctx.Err())
	}
	return p.connect()
}

// ActiveScans returns the number of scans currently holding the radio.
func (r *FakeRadio) ActiveScans() int { return int(r.activeScans.Load()) }

// Scans returns the number of scans started.
func (r *FakeRadio) Scans() int { return int(r.scans.Load()) }

// Dials returns the number of dial attempts.
func (r *FakeRadio) Dials() int { return int(r.dials.Load()) }

// AckFunc builds the TX notification for a received frame. A nil result
// means no acknowledgment is sent.
type AckFunc func(frame []byte) []byte

// AckOK acknowledges every frame with "OK".
func AckOK(_ []byte) []byte { return []byte("OK") }

// FakePeripheral emulates the firmware end of the UART service: it verifies
// every frame, records its code and acknowledges it.
type FakePeripheral struct {
	Address string

	mu         sync.Mutex
	ack        AckFunc
	writeDelay time.Duration
	dialErr    []error
	codes      []string
	badFrames  [][]byte
	link       *FakeLink

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	connects    atomic.Int32
}

func NewFakePeripheral(address string) *FakePeripheral {
	return &FakePeripheral{Address: address, ack: AckOK}
}

// SetAck replaces the acknowledgment behavior.
func (p *FakePeripheral) SetAck(fn AckFunc) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ack = fn
	return p
}

// SetWriteDelay makes each write take d.
func (p *FakePeripheral) SetWriteDelay(d time.Duration) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeDelay = d
	return p
}

// FailDials queues errors returned by the next dials, in order.
func (p *FakePeripheral) FailDials(errs ...error) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialErr = append(p.dialErr, errs...)
	return p
}

// Received returns the decoded codes of every valid frame, in arrival order.
func (p *FakePeripheral) Received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.codes...)
}

// BadFrames returns frames that failed verification.
func (p *FakePeripheral) BadFrames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.badFrames...)
}

// MaxConcurrentWrites returns the highest number of writes observed in flight.
func (p *FakePeripheral) MaxConcurrentWrites() int { return int(p.maxInFlight.Load()) }

// Connects returns the number of links opened.
func (p *FakePeripheral) Connects() int { return int(p.connects.Load()) }

// Link returns the current link, or nil.
func (p *FakePeripheral) Link() *FakeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

// Drop severs the current link from the peripheral side.
func (p *FakePeripheral) Drop() {
	if l := p.Link(); l != nil {
		l.drop()
	}
}

func (p *FakePeripheral) connect() (device.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dialErr) > 0 {
		err := p.dialErr[0]
		p.dialErr = p.dialErr[1:]
		return nil, err
	}
	p.connects.Add(1)
	p.link = &FakeLink{peripheral: p, done: make(chan struct{})}
	return p.link, nil
}

func (p *FakePeripheral) receive(frame []byte) []byte {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.maxInFlight.Load()
		if n <= cur || p.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	p.mu.Lock()
	delay, ack := p.writeDelay, p.ack
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	code, err := codec.Decode(frame)
	p.mu.Lock()
	if err != nil {
		p.badFrames = append(p.badFrames, append([]byte(nil), frame...))
	} else {
		p.codes = append(p.codes, string(code))
	}
	p.mu.Unlock()

	if ack == nil {
		return nil
	}
	return ack(frame)
}

// ErrFakeLinkClosed is returned by writes on a closed FakeLink.
var ErrFakeLinkClosed = errors.New("device not connected")

// FakeLink is the host end of a FakePeripheral connection.
type FakeLink struct {
	peripheral *FakePeripheral

	mu      sync.Mutex
	handler func([]byte)
	closed  bool
	done    chan struct{}
	writes  atomic.Int32
}

func (l *FakeLink) Address() string { return l.peripheral.Address }

func (l *FakeLink) Disconnected() <-chan struct{} { return l.done }

func (l *FakeLink) Write(data []byte, _ bool) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrFakeLinkClosed
	}

	l.writes.Add(1)
	ack := l.peripheral.receive(data)
	if len(ack) == 0 {
		return nil
	}

	l.mu.Lock()
	h := l.handler
	closed = l.closed
	l.mu.Unlock()
	if h != nil && !closed {
		go h(ack)
	}
	return nil
}

func (l *FakeLink) Subscribe(handler func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
	return nil
}

func (l *FakeLink) Close() error {
	l.drop()
	return nil
}

// Writes returns the number of writes attempted on this link.
func (l *FakeLink) Writes() int { return int(l.writes.Load()) }

// Closed reports whether the link is down.
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *FakeLink) drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}
