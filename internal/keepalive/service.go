// filepath: internal/keepalive/service.go
// Package keepalive calls the heartbeat RPC on a fixed interval so that a hosted
// persistence backend on a free tier is not paused for inactivity.
package keepalive

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"photogallery/internal/logging"
	"photogallery/internal/services"
)

const (
	// MinInterval is the minimum time between heartbeats to prevent busy-looping.
	MinInterval = 1 * time.Minute
	// MaxCallTimeout bounds a single heartbeat call.
	MaxCallTimeout = 30 * time.Second
)

// Dependencies are the collaborators of the keepalive service.
type Dependencies struct {
	Heartbeat services.HeartbeatService
	Auditor   services.Auditor // optional
}

// Service provides the background heartbeat worker.
type Service struct {
	Deps     Dependencies
	interval time.Duration

	timer    *time.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a keepalive service. Intervals below MinInterval are raised to it.
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Service{
		Deps:     deps,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Interval returns the effective heartbeat interval.
func (s *Service) Interval() time.Duration { return s.interval }

// Start kicks off the background worker. The first heartbeat fires immediately.
func (s *Service) Start() {
	logging.Log.Infof("Starting keepalive service (every %v).", s.interval)
	s.timer = time.NewTimer(0)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.timer.C:
				s.RunOnce(context.Background())
				s.timer.Reset(s.interval)
			case <-s.stopCh:
				s.timer.Stop()
				return
			}
		}
	}()
}

// Stop terminates the background worker and waits for an in-flight call.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		logging.Log.Info("Stopping keepalive service.")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// RunOnce performs a single heartbeat and logs its outcome.
func (s *Service) RunOnce(ctx context.Context) {
	timeout := s.interval / 2
	if timeout > MaxCallTimeout {
		timeout = MaxCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.Deps.Heartbeat.Touch(ctx)
	if err != nil {
		logging.Log.Errorf("Keepalive heartbeat failed: %v", err)
		return
	}

	entry := logging.Log.WithFields(logrus.Fields{"status": res.Status, "body": res.Body})
	if res.Status >= 300 {
		entry.Warn("Keepalive heartbeat returned a non-success status")
	} else {
		entry.Debug("Keepalive heartbeat succeeded")
	}
	if s.Deps.Auditor != nil {
		s.Deps.Auditor.Log(ctx, "heartbeat.touch", "system", "Heartbeat", map[string]interface{}{"status": res.Status})
	}
}
