// Package mocks holds testify mocks for the core's collaborator interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Store mocks pairing.Store.
type Store struct {
	mock.Mock
}

func (m *Store) Get(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Store) Set(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}

func (m *Store) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Checker mocks permission.Checker.
type Checker struct {
	mock.Mock
}

func (m *Checker) HasRadioPermission(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *Checker) RequestRadioPermission(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
