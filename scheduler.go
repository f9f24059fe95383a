package farmwatch

import (
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSweepInterval = 5 * time.Minute

type houseSource interface {
	Ids() ([]uint64, error)
}

type deviceSource interface {
	DeviceIds(houseId uint64) ([]uint64, error)
}

type deviceChecker interface {
	CheckDevice(deviceId uint64) (bool, error)
}

//Scheduler periodically re-evaluates every sensor of every house
//against its threshold. Sweeps run on the scheduler goroutine, so a
//slow sweep simply drops the ticks it overlaps; the bucket-based alert
//dedup keeps the occasional overlap with the ingestion path harmless.
type Scheduler struct {
	houses   houseSource
	sensors  deviceSource
	monitor  deviceChecker
	interval time.Duration
	logger   *logrus.Logger

	stop chan struct{}
}

func NewScheduler(fw *Farmwatch, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Scheduler{
		houses:   fw.Houses,
		sensors:  fw.Sensors,
		monitor:  fw.Monitor,
		interval: interval,
		logger:   fw.Logger,
		stop:     make(chan struct{}),
	}
}

func (s *Scheduler) Run() {
	s.logger.Infof("Threshold monitoring scheduler started, interval %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			s.logger.Info("Threshold monitoring scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

//Sweep walks every house once. Per-device failures are logged and do
//not abort the rest of the sweep.
func (s *Scheduler) Sweep() {
	started := time.Now()

	houseIds, err := s.houses.Ids()
	if err != nil {
		s.logger.WithField("error", err).Error("Error listing houses for monitoring sweep")
		return
	}

	checked := 0
	alerted := 0

	for _, houseId := range houseIds {
		c, a := s.SweepHouse(houseId)
		checked += c
		alerted += a
	}

	s.logger.WithField("houses", len(houseIds)).
		WithField("devices", checked).
		WithField("alerts", alerted).
		Debugf("Monitoring sweep finished in %s", time.Since(started))
}

func (s *Scheduler) SweepHouse(houseId uint64) (checked int, alerted int) {
	deviceIds, err := s.sensors.DeviceIds(houseId)
	if err != nil {
		s.logger.WithField("house_id", houseId).
			WithField("error", err).
			Error("Error listing sensors for monitoring sweep")
		return 0, 0
	}

	for _, deviceId := range deviceIds {
		created, err := s.monitor.CheckDevice(deviceId)
		if err != nil {
			s.logger.WithField("device_id", deviceId).
				WithField("error", err).
				Error("Error checking device threshold")
			continue
		}

		checked++
		if created {
			alerted++
		}
	}

	return checked, alerted
}
