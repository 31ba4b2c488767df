package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	LinkDropped      ConnectionState = "link_dropped"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrLinkDropped      = &ConnectionError{State: LinkDropped}
)

// Operation errors
var (
	ErrPermission         = errors.New("radio permission not granted")
	ErrNoPairedPeripheral = errors.New("no paired peripheral")
	ErrBusy               = errors.New("send queue full")
	ErrScanFailure        = errors.New("scan failed")
	ErrWriteTimeout       = errors.New("write timeout")
	ErrBluetoothOff       = errors.New("bluetooth is turned off")
	ErrServiceNotFound    = errors.New("uart service not found")
)

// NormalizeError maps known go-ble error strings to structured error types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrLinkDropped, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Advertisement is the subset of a BLE advertisement the core consumes.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
}

// ScanningDevice represents a radio capable of scanning for advertisements.
// Scan blocks until ctx is done or the radio fails.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Dialer opens a UART link to a peripheral address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}

// Radio is a scanning device that can also dial peripherals.
type Radio interface {
	ScanningDevice
	Dialer
}

// Link is a live connection to the peripheral's UART service.
//
// Write sends one frame on the RX characteristic. Subscribe registers the
// handler for TX notifications; only one handler is kept. Disconnected is
// closed when the link drops or Close is called.
type Link interface {
	Address() string
	Write(data []byte, withResponse bool) error
	Subscribe(handler func([]byte)) error
	Disconnected() <-chan struct{}
	Close() error
}
