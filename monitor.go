package farmwatch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

type AlertKind int

const (
	AlertNone AlertKind = iota
	AlertBelowMin
	AlertAboveMax
)

func (k AlertKind) String() string {
	switch k {
	case AlertBelowMin:
		return "below_min"
	case AlertAboveMax:
		return "above_max"
	}
	return "none"
}

//Severity maps an alert kind to the stored alert_type. Below-minimum is
//a warning and above-maximum an error, a fixed policy of the platform.
func (k AlertKind) Severity() string {
	switch k {
	case AlertBelowMin:
		return AlertTypeWarning
	case AlertAboveMax:
		return AlertTypeError
	}
	return ""
}

//Evaluate checks a reading against the configured band. A missing bound
//means monitoring is disabled for the device. The above-max check runs
//first and wins the degenerate case where both bounds are violated.
func Evaluate(value float64, min, max *float64) AlertKind {
	if min == nil || max == nil {
		return AlertNone
	}

	if value > *max {
		return AlertAboveMax
	}

	if value < *min {
		return AlertBelowMin
	}

	return AlertNone
}

//BucketStart truncates now to the enclosing half-hour boundary. Two
//callers anywhere in the same half-hour window agree on the result, so
//the alert ledger probe is stable no matter when or where it runs.
func BucketStart(now time.Time) time.Time {
	minute := 0
	if now.Minute() >= 30 {
		minute = 30
	}

	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
}

//MonitoredDevice is the slice of sensor metadata the evaluator needs.
type MonitoredDevice struct {
	DeviceId uint64   `db:"device_id"`
	HouseId  uint64   `db:"house_id"`
	Name     string   `db:"name"`
	TypeName string   `db:"type_name"`
	Unit     string   `db:"unit"`
	MinValue *float64 `db:"min_value"`
	MaxValue *float64 `db:"max_value"`
}

type SensorReader interface {
	MonitoredDevice(deviceId uint64) (*MonitoredDevice, error)
	LatestReading(deviceId uint64) (*Reading, error)
}

type AlertLedger interface {
	RecentExists(deviceId uint64, alertType string, since time.Time) (bool, error)
	Insert(a *Alert) error
}

//AlertPublisher pushes a freshly created alert towards the dashboard
//broadcast. Implementations are best-effort, errors are logged only.
type AlertPublisher interface {
	PublishAlert(a Alert) error
}

//Monitor glues the threshold evaluator to the alert ledger. Inserting
//the alert row is also the dedup record, so the check stays idempotent
//across process restarts and across the scheduler and ingestion paths
//triggering it independently.
type Monitor struct {
	sensors   SensorReader
	alerts    AlertLedger
	publisher AlertPublisher
	now       func() time.Time
	logger    *logrus.Logger
}

func NewMonitor(sensors SensorReader, alerts AlertLedger, logger *logrus.Logger) *Monitor {
	return &Monitor{
		sensors: sensors,
		alerts:  alerts,
		now:     time.Now,
		logger:  logger,
	}
}

func (m *Monitor) SetPublisher(p AlertPublisher) {
	m.publisher = p
}

//CheckReading evaluates one reading against the device threshold and
//creates an alert unless an equal alert already exists in the current
//30-minute bucket. Returns whether an alert was created.
func (m *Monitor) CheckReading(deviceId uint64, value float64) (bool, error) {
	device, err := m.sensors.MonitoredDevice(deviceId)
	if err != nil {
		return false, err
	}

	kind := Evaluate(value, device.MinValue, device.MaxValue)
	if kind == AlertNone {
		return false, nil
	}

	bucket := BucketStart(m.now())

	exists, err := m.alerts.RecentExists(deviceId, kind.Severity(), bucket)
	if err != nil {
		return false, err
	}

	if exists {
		m.logger.WithField("device_id", deviceId).
			WithField("kind", kind.String()).
			Debugf("Similar alert already exists in bucket starting %s, skipping", bucket.Format(time.RFC3339))
		return false, nil
	}

	alert := Alert{
		HouseId:   device.HouseId,
		DeviceId:  deviceId,
		AlertType: kind.Severity(),
		Message:   alertMessage(device, kind, value),
		CreatedAt: m.now().UTC(),
	}

	if err := m.alerts.Insert(&alert); err != nil {
		return false, err
	}

	m.logger.WithField("device_id", deviceId).
		WithField("alert_type", alert.AlertType).
		Infof("Alert created: %s", alert.Message)

	if m.publisher != nil {
		if err := m.publisher.PublishAlert(alert); err != nil {
			m.logger.WithField("error", err).Warning("Error publishing alert")
		}
	}

	return true, nil
}

//CheckDevice runs CheckReading against the most recent stored reading.
//Devices without readings are skipped.
func (m *Monitor) CheckDevice(deviceId uint64) (bool, error) {
	reading, err := m.sensors.LatestReading(deviceId)
	if err != nil {
		return false, err
	}

	if reading == nil {
		return false, nil
	}

	return m.CheckReading(deviceId, reading.Value)
}

//CheckReadings runs the evaluator over a batch of stored readings,
//one row at a time. Per-reading failures are logged and do not stop
//the rest of the batch. Returns the number of alerts created.
func (m *Monitor) CheckReadings(readings []Reading) int {
	alerted := 0

	for i := range readings {
		created, err := m.CheckReading(readings[i].DeviceId, readings[i].Value)
		if err != nil {
			m.logger.WithField("device_id", readings[i].DeviceId).
				WithField("error", err).
				Error("Error checking reading threshold")
			continue
		}

		if created {
			alerted++
		}
	}

	return alerted
}

func alertMessage(device *MonitoredDevice, kind AlertKind, value float64) string {
	measured := formatValue(value) + device.Unit

	switch kind {
	case AlertAboveMax:
		return fmt.Sprintf("[%s] measured value (%s) exceeded the maximum threshold (%s%s)",
			device.Name, measured, formatValue(*device.MaxValue), device.Unit)
	case AlertBelowMin:
		return fmt.Sprintf("[%s] measured value (%s) dropped below the minimum threshold (%s%s)",
			device.Name, measured, formatValue(*device.MinValue), device.Unit)
	}

	return ""
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
