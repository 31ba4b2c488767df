package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/groutine"
)

const (
	// DefaultBLEWriteChunkSize is the maximum number of bytes to write in a single BLE operation.
	// BLE 4.0/4.1 defines ATT_MTU of 23 bytes (20 bytes payload after ATT header overhead).
	DefaultBLEWriteChunkSize = 20

	// DefaultBLEWriteDelay is the delay between consecutive write chunks.
	DefaultBLEWriteDelay = 10 * time.Millisecond
)

// uartLink is a device.Link over a go-ble client bound to the UART characteristics.
type uartLink struct {
	address string
	client  ble.Client
	rx      *ble.Characteristic
	tx      *ble.Characteristic
	logger  *logrus.Logger

	writeMutex sync.Mutex
	subscribed bool

	done      chan struct{}
	closeOnce sync.Once
}

func newUARTLink(address string, client ble.Client, rx, tx *ble.Characteristic, logger *logrus.Logger) *uartLink {
	l := &uartLink{
		address: address,
		client:  client,
		rx:      rx,
		tx:      tx,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Monitor the go-ble client Disconnected() channel so callers observe drops.
	// Taken synchronously; the monitor never calls into the client.
	disconnected := client.Disconnected()
	groutine.Go(context.Background(), "ble-link-monitor", func(ctx context.Context) {
		select {
		case <-disconnected:
			l.logger.WithFields(logrus.Fields{
				"address":   address,
				"goroutine": groutine.GetName(ctx),
			}).Warn("BLE stack reported disconnection")
			l.markClosed()
		case <-l.done:
		}
	})

	return l
}

func (l *uartLink) Address() string { return l.address }

func (l *uartLink) Disconnected() <-chan struct{} { return l.done }

// Write sends data on the RX characteristic, split into ATT-sized chunks.
func (l *uartLink) Write(data []byte, withResponse bool) error {
	select {
	case <-l.done:
		return device.ErrLinkDropped
	default:
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	for len(data) > 0 {
		chunkSize := min(len(data), DefaultBLEWriteChunkSize)
		chunk := data[:chunkSize]
		data = data[chunkSize:]

		if err := l.client.WriteCharacteristic(l.rx, chunk, !withResponse); err != nil {
			return fmt.Errorf("failed to write to RX characteristic: %w", device.NormalizeError(err))
		}

		l.logger.WithField("bytes", len(chunk)).Debug("Wrote chunk to device")

		if len(data) > 0 {
			time.Sleep(DefaultBLEWriteDelay)
		}
	}

	return nil
}

// Subscribe enables notifications on the TX characteristic.
func (l *uartLink) Subscribe(handler func([]byte)) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	if err := l.client.Subscribe(l.tx, false, func(data []byte) {
		l.logger.WithField("bytes", len(data)).Debug("Received data from device")
		handler(data)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to TX characteristic: %w", device.NormalizeError(err))
	}
	l.subscribed = true
	return nil
}

// Close unsubscribes and cancels the connection. Safe to call more than once.
func (l *uartLink) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}

	l.writeMutex.Lock()
	subscribed := l.subscribed
	l.subscribed = false
	l.writeMutex.Unlock()

	if subscribed {
		if err := l.client.Unsubscribe(l.tx, false); err != nil {
			l.logger.WithField("error", err).Debug("Failed to unsubscribe from TX characteristic")
		}
	}

	err := l.client.CancelConnection()
	l.markClosed()

	if err != nil {
		return fmt.Errorf("failed to cancel connection: %w", device.NormalizeError(err))
	}
	return nil
}

func (l *uartLink) markClosed() {
	l.closeOnce.Do(func() { close(l.done) })
}
