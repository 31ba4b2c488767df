package main

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/device"
)

// exitError ends the process with a specific code without the ERROR prefix.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// FormatUserError turns core errors into a one-line hint for the terminal.
func FormatUserError(err error) string {
	var hint string
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		hint = "Bluetooth is turned off. Turn it on and try again"
	case errors.Is(err, device.ErrPermission):
		hint = "missing Bluetooth permission"
	case errors.Is(err, device.ErrNoPairedPeripheral):
		hint = "no peripheral is paired. Run 'tangible pair' first"
	case errors.Is(err, device.ErrAlreadyConnected):
		hint = "the peripheral is already connected by another session"
	case errors.Is(err, device.ErrNotConnected), errors.Is(err, device.ErrLinkDropped):
		hint = "the peripheral is not connected"
	case errors.Is(err, device.ErrBusy):
		hint = "too many interactions in flight, try again"
	case errors.Is(err, device.ErrWriteTimeout):
		hint = "the peripheral did not acknowledge in time"
	case errors.Is(err, device.ErrScanFailure):
		hint = "scanning failed"
	case errors.Is(err, device.ErrServiceNotFound):
		hint = "the device does not expose the UART service. Is it a tangible peripheral?"
	case errors.Is(err, codec.ErrNotEncodable):
		hint = "this interaction cannot be sent"
	case errors.Is(err, context.DeadlineExceeded):
		hint = "timed out"
	default:
		return err.Error()
	}

	detail := err.Error()
	if strings.EqualFold(detail, hint) {
		return hint
	}
	return hint + " (" + detail + ")"
}
