// Package permission answers whether the process may use the Bluetooth radio.
package permission

import (
	"context"
	"sync/atomic"
)

// Checker reports and requests radio permission.
type Checker interface {
	HasRadioPermission(ctx context.Context) bool
	RequestRadioPermission(ctx context.Context) error
}

// Requirement describes one platform permission the radio needs.
type Requirement struct {
	Name        string
	Description string
}

// Static is a Checker with a fixed answer. Request grants it.
type Static struct {
	granted atomic.Bool
}

// NewStatic returns a Static checker.
func NewStatic(granted bool) *Static {
	s := &Static{}
	s.granted.Store(granted)
	return s
}

func (s *Static) HasRadioPermission(context.Context) bool { return s.granted.Load() }

func (s *Static) RequestRadioPermission(context.Context) error {
	s.granted.Store(true)
	return nil
}

// Set changes the answer.
func (s *Static) Set(granted bool) { s.granted.Store(granted) }

// System checks the permission of the running process.
type System struct{}

func (System) HasRadioPermission(ctx context.Context) bool { return hasRadioPermission(ctx) }

func (System) RequestRadioPermission(ctx context.Context) error {
	return requestRadioPermission(ctx)
}

// Required lists the permissions the radio needs on this platform.
func Required() []Requirement { return required() }
