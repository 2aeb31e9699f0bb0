// filepath: internal/services/heartbeat_service.go
package services

import (
	"context"

	"photogallery/internal/models"
	"photogallery/internal/persistence"
)

var _ HeartbeatService = (*heartbeatService)(nil)

type heartbeatService struct {
	client persistence.Client
}

// NewHeartbeatService creates a HeartbeatService on top of client.
func NewHeartbeatService(client persistence.Client) *heartbeatService {
	return &heartbeatService{client: client}
}

// Touch calls the heartbeat RPC once. An empty response body is reported as "ok".
func (s *heartbeatService) Touch(ctx context.Context) (models.HeartbeatResult, error) {
	res, err := s.client.Heartbeat(ctx)
	if err != nil {
		return models.HeartbeatResult{}, err
	}
	if res.Body == "" {
		res.Body = "ok"
		res.ContentType = "text/plain; charset=utf-8"
	}
	return res, nil
}
