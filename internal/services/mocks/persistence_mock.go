// filepath: internal/services/mocks/persistence_mock.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"photogallery/internal/models"
	"photogallery/internal/persistence"
)

// MockPersistenceClient is a mock implementation of persistence.Client
type MockPersistenceClient struct {
	mock.Mock
}

var _ persistence.Client = (*MockPersistenceClient)(nil)

func (m *MockPersistenceClient) Insert(ctx context.Context, rec models.NewRecord) (models.Row, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Row), args.Error(1)
}

func (m *MockPersistenceClient) Select(ctx context.Context) ([]models.Row, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Row), args.Error(1)
}

func (m *MockPersistenceClient) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPersistenceClient) Heartbeat(ctx context.Context) (models.HeartbeatResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.HeartbeatResult), args.Error(1)
}

func (m *MockPersistenceClient) Driver() string { return "mock" }

func (m *MockPersistenceClient) Close() error { return nil }
