// Package pairing persists the single paired peripheral address.
package pairing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/srg/tangible/internal/device"
)

// Key is the record name shared by every backend.
const Key = "paired_ble_device_mac_address"

// Store holds at most one paired address per installation.
//
// Get returns device.ErrNoPairedPeripheral when nothing is paired. Set
// replaces any previous record. Clear is a no-op when nothing is paired.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, address string) error
	Clear(ctx context.Context) error
}

var macPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}([:-][0-9A-Fa-f]{2}){5}$`)

// ValidateAddress checks that address is a 48-bit MAC or a platform UUID
// identifier and returns its canonical form: MACs upper case with colons,
// UUIDs lower case.
func ValidateAddress(address string) (string, error) {
	a := strings.TrimSpace(address)
	if macPattern.MatchString(a) {
		return strings.ToUpper(strings.ReplaceAll(a, "-", ":")), nil
	}
	if id, err := uuid.Parse(a); err == nil {
		return id.String(), nil
	}
	return "", fmt.Errorf("invalid peripheral address %q: want AA:BB:CC:DD:EE:FF or a UUID", address)
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// MemoryStore keeps the record in memory. The zero value is ready to use.
type MemoryStore struct {
	mu      sync.RWMutex
	address string
}

// NewMemoryStore returns a store optionally seeded with address.
func NewMemoryStore(address string) *MemoryStore {
	return &MemoryStore{address: address}
}

func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.address == "" {
		return "", device.ErrNoPairedPeripheral
	}
	return s.address, nil
}

func (s *MemoryStore) Set(_ context.Context, address string) error {
	addr, err := ValidateAddress(address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.address = ""
	s.mu.Unlock()
	return nil
}
