package pairing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/srg/tangible/internal/device"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the pairing document name inside the config directory.
const DefaultFileName = "pairing.yaml"

type document struct {
	Address string `yaml:"paired_ble_device_mac_address,omitempty"`
}

// FileStore keeps the record in a YAML document. Writes go through a temp
// file in the same directory followed by a rename.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore at path. An empty path resolves to
// tangible/pairing.yaml under os.UserConfigDir ($XDG_CONFIG_HOME on Linux).
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		path = filepath.Join(dir, "tangible", DefaultFileName)
	}
	return &FileStore{Path: path}, nil
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", device.ErrNoPairedPeripheral
		}
		return "", fmt.Errorf("failed to read pairing file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse pairing file %s: %w", s.Path, err)
	}
	if doc.Address == "" {
		return "", device.ErrNoPairedPeripheral
	}
	return doc.Address, nil
}

func (s *FileStore) Set(_ context.Context, address string) error {
	addr, err := ValidateAddress(address)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(document{Address: addr})
	if err != nil {
		return fmt.Errorf("failed to marshal pairing record: %w", err)
	}
	return s.writeAtomic(data)
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pairing file: %w", err)
	}
	return nil
}

func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure pairing directory: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, "tmp-pairing-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to replace pairing file: %w", err)
	}
	return nil
}
