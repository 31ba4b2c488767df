// Package device defines the radio abstractions the core is written against
// and the error taxonomy shared by every layer.
//
// A Radio scans for advertisements and dials peripherals; a dial yields a
// Link bound to the peripheral's Nordic UART service. The go-ble subpackage
// provides the production Radio.
package device
