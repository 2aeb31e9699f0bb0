// filepath: internal/services/info_service.go
package services

import (
	"time"

	"photogallery/internal/models"
)

var _ InfoService = (*infoService)(nil)

type infoService struct {
	Version            string
	StartTime          time.Time
	PersistenceDriver  string
	PersistenceEnabled bool
	PayloadMode        string
}

// NewInfoService creates a new InfoService.
func NewInfoService(version string, startTime time.Time, driver string, enabled bool, payloadMode string) *infoService {
	return &infoService{
		Version:            version,
		StartTime:          startTime,
		PersistenceDriver:  driver,
		PersistenceEnabled: enabled,
		PayloadMode:        payloadMode,
	}
}

// GetInfo retrieves the application information.
func (s *infoService) GetInfo() models.Info {
	return models.Info{
		ServiceName:        "Photo Gallery API",
		Version:            s.Version,
		UptimeSince:        s.StartTime,
		PersistenceDriver:  s.PersistenceDriver,
		PersistenceEnabled: s.PersistenceEnabled,
		PayloadMode:        s.PayloadMode,
	}
}
