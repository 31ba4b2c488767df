package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return newPlatformDevice()
}

// Radio adapts a ble.Device to device.Radio. The underlying ble.Device is
// created lazily on first use and shared by scans and dials.
type Radio struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewRadio creates a device.Radio backed by go-ble.
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{logger: logger}
}

func (r *Radio) bleDevice() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", device.NormalizeError(err))
	}
	r.dev = dev
	return dev, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (r *Radio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := r.bleDevice()
	if err != nil {
		return err
	}

	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return device.NormalizeError(err)
	}
	return nil
}

// Dial connects to address, discovers the UART service and returns a link
// bound to its RX and TX characteristics.
func (r *Radio) Dial(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	dev, err := r.bleDevice()
	if err != nil {
		return nil, err
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		r.cancel(client)
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	rx, tx, err := findUARTCharacteristics(profile)
	if err != nil {
		r.cancel(client)
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected, UART service found")

	return newUARTLink(address, client, rx, tx, r.logger), nil
}

func (r *Radio) cancel(client ble.Client) {
	if err := client.CancelConnection(); err != nil {
		r.logger.WithField("cancel_error", err).Warn("Failed to cancel connection after setup failure")
	}
}

func findUARTCharacteristics(profile *ble.Profile) (rx, tx *ble.Characteristic, err error) {
	if profile == nil {
		return nil, nil, device.ErrServiceNotFound
	}

	for _, svc := range profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != device.UARTServiceUUID {
			continue
		}
		for _, char := range svc.Characteristics {
			switch device.NormalizeUUID(char.UUID.String()) {
			case device.UARTRxCharUUID:
				rx = char
			case device.UARTTxCharUUID:
				tx = char
			}
		}
		if rx == nil || tx == nil {
			return nil, nil, fmt.Errorf("%w: rx=%t tx=%t", device.ErrServiceNotFound, rx != nil, tx != nil)
		}
		return rx, tx, nil
	}

	return nil, nil, device.ErrServiceNotFound
}
