package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

// HoldSweeper periodically releases lapsed holds so their seats return
// to the free pool even when no request touches the trip. Correctness
// does not depend on it; every read and transition already ignores
// lapsed holds.
type HoldSweeper struct {
	holds    *HoldManager
	sessions *BookingSessionService
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	logger   *logrus.Logger
}

// NewHoldSweeper creates a new hold sweeper
func NewHoldSweeper(holds *HoldManager, sessions *BookingSessionService, interval time.Duration, logger *logrus.Logger) *HoldSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HoldSweeper{
		holds:    holds,
		sessions: sessions,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Start runs the sweep loop in a background goroutine.
func (s *HoldSweeper) Start() {
	s.logger.WithField("interval", s.interval).Info("Hold sweeper started")
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the current sweep to finish.
func (s *HoldSweeper) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("Hold sweeper stopped")
}

func (s *HoldSweeper) sweep() {
	released := s.holds.SweepExpired()
	expired := 0
	if s.sessions != nil {
		expired = s.sessions.ExpireStaleSessions()
	}
	if released > 0 || expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"holds_released":   released,
			"sessions_expired": expired,
		}).Info("Sweep completed")
	}
}
