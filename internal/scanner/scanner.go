package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/groutine"
	"github.com/srg/tangible/internal/ringchan"
)

// Peripheral is one discovered device.
type Peripheral struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi"`
}

// Options configures scanning behavior.
type Options struct {
	// AllowDuplicates asks the radio to report repeated advertisements.
	// Each address is still yielded once per scan.
	AllowDuplicates bool `default:"false"`
	// NamedOnly skips peripherals that advertise no local name.
	NamedOnly bool `default:"false"`
	// Buffer is the number of discoveries held for a slow consumer.
	Buffer int `default:"64"`
}

// Scanner handles BLE device discovery
type Scanner struct {
	radio  device.ScanningDevice
	logger *logrus.Logger
	opts   Options
}

// New creates a Scanner over radio. A nil opts uses the defaults.
func New(radio device.ScanningDevice, logger *logrus.Logger, opts *Options) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	return &Scanner{radio: radio, logger: logger, opts: o}
}

// Scan discovers peripherals lazily. The radio is scanning only while the
// sequence is being ranged over: it stops when budget elapses (budget <= 0
// means no limit), ctx ends, or the consumer stops. Every exit waits for the
// radio to be released. A radio failure is yielded once, wrapped in
// device.ErrScanFailure, and ends the sequence.
func (s *Scanner) Scan(ctx context.Context, budget time.Duration) iter.Seq2[Peripheral, error] {
	return func(yield func(Peripheral, error) bool) {
		var (
			scanCtx context.Context
			cancel  context.CancelFunc
		)
		if budget > 0 {
			scanCtx, cancel = context.WithTimeout(ctx, budget)
		} else {
			scanCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		found := ringchan.New[Peripheral](s.opts.Buffer)
		seen := hashmap.New[string, struct{}]()

		var scanErr error
		done := groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
			defer found.Close()
			err := s.radio.Scan(ctx, s.opts.AllowDuplicates, func(adv device.Advertisement) {
				s.handleAdvertisement(adv, seen, found)
			})
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				scanErr = err
			}
		})
		defer func() {
			cancel()
			<-done
		}()

		s.logger.WithField("budget", budget).Debug("Starting BLE scan...")

		count := 0
		for p := range found.C() {
			// Marked here rather than in the radio callback so that an entry
			// overwritten in the buffer can still be reported later.
			if _, loaded := seen.GetOrInsert(key(p.Address), struct{}{}); loaded {
				continue
			}
			count++
			s.logger.WithFields(logrus.Fields{
				"device":  p.Name,
				"address": p.Address,
				"rssi":    p.RSSI,
			}).Debug("Discovered new device")
			if !yield(p, nil) {
				return
			}
		}

		// found is closed, so the scan goroutine has set scanErr.
		if scanErr != nil {
			err := fmt.Errorf("%w: %w", device.ErrScanFailure, device.NormalizeError(scanErr))
			s.logger.WithError(err).Warn("BLE scan failed")
			yield(Peripheral{}, err)
			return
		}
		s.logger.WithField("device_count", count).Debug("BLE scan completed")
	}
}

// handleAdvertisement filters an advertisement and buffers it.
func (s *Scanner) handleAdvertisement(adv device.Advertisement, seen *hashmap.Map[string, struct{}], found *ringchan.RingChannel[Peripheral]) {
	addr := adv.Addr()
	if addr == "" {
		return
	}
	if _, ok := seen.Get(key(addr)); ok {
		return
	}
	name := adv.LocalName()
	if s.opts.NamedOnly && name == "" {
		return
	}
	found.Send(Peripheral{Address: addr, Name: name, RSSI: adv.RSSI()})
}

// Find scans until address is seen (case-insensitive), the budget elapses or
// ctx ends.
func (s *Scanner) Find(ctx context.Context, budget time.Duration, address string) (Peripheral, bool, error) {
	want := key(address)
	for p, err := range s.Scan(ctx, budget) {
		if err != nil {
			return Peripheral{}, false, err
		}
		if key(p.Address) == want {
			return p, true, nil
		}
	}
	return Peripheral{}, false, nil
}

func key(address string) string { return strings.ToUpper(strings.TrimSpace(address)) }
