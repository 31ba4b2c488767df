package device

import "strings"

// Nordic UART Service UUIDs used by the peripheral firmware.
const (
	UARTServiceUUID = "6e400001b5a3f393e0a9e50e24dcca9e"

	// UARTRxCharUUID is the characteristic the peripheral listens on (host -> device).
	UARTRxCharUUID = "6e400002b5a3f393e0a9e50e24dcca9e"

	// UARTTxCharUUID is the characteristic the peripheral notifies on (device -> host).
	UARTTxCharUUID = "6e400003b5a3f393e0a9e50e24dcca9e"
)

// NormalizeUUID converts a UUID to the lowercase, dash-free form go-ble prints.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(uuid), "-", ""))
}
