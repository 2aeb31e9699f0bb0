// filepath: internal/services/mocks/gallery_mock.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"photogallery/internal/models"
	"photogallery/internal/services"
)

// MockGalleryStore is a mock implementation of services.GalleryStore
type MockGalleryStore struct {
	mock.Mock
}

var _ services.GalleryStore = (*MockGalleryStore)(nil)

func (m *MockGalleryStore) Insert(ctx context.Context, rec models.NewRecord) (models.GalleryImage, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(models.GalleryImage), args.Error(1)
}

func (m *MockGalleryStore) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockGalleryStore) List(ctx context.Context) ([]models.GalleryImage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GalleryImage), args.Error(1)
}

// MockHeartbeatService is a mock implementation of services.HeartbeatService
type MockHeartbeatService struct {
	mock.Mock
}

var _ services.HeartbeatService = (*MockHeartbeatService)(nil)

func (m *MockHeartbeatService) Touch(ctx context.Context) (models.HeartbeatResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.HeartbeatResult), args.Error(1)
}
