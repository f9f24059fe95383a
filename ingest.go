package farmwatch

import (
	"time"

	"github.com/sirupsen/logrus"
)

//EvaluateReading asks for a single reading to be run through the
//threshold evaluator, off the ingestion request path.
type EvaluateReading struct {
	DeviceId uint64
	Value    float64
}

//NotifySensor asks for a sensor:update push to the dashboard.
type NotifySensor struct {
	HouseId   uint64
	DeviceId  uint64
	Value     float64
	Timestamp time.Time
}

type ingestStore interface {
	ReadingInsert(r *Reading) error
	HouseId(deviceId uint64) (uint64, error)
}

type stateStore interface {
	ApplyStates(states []ActuatorState) error
}

type modeStore interface {
	SetControlMode(houseId uint64, mode string) error
}

type taskQueue interface {
	Create(cmd interface{}) error
}

type eventSink interface {
	Publish(event interface{}) error
}

type thresholdChecker interface {
	CheckReading(deviceId uint64, value float64) (bool, error)
}

type updatePusher interface {
	NotifySensorUpdate(houseId uint64, deviceId uint64, value float64, timestamp time.Time)
	PublishAlert(a Alert) error
}

//Ingestor is the shared ingestion flow behind both the http endpoint
//and the mqtt bridge: persist the reading, apply any raw actuator
//state, then hand evaluation and dashboard notification to the command
//bus so neither can delay or fail the gateway's request.
type Ingestor struct {
	sensors   ingestStore
	actuators stateStore
	houses    modeStore
	tasks     taskQueue
	events    eventSink
	monitor   thresholdChecker
	notifier  updatePusher
	logger    *logrus.Logger
}

func NewIngestor(fw *Farmwatch, notifier *Notifier) *Ingestor {
	ingestor := &Ingestor{
		sensors:   fw.Sensors,
		actuators: fw.Actuators,
		houses:    fw.Houses,
		tasks:     fw.Command,
		events:    fw.Event,
		monitor:   fw.Monitor,
		notifier:  notifier,
		logger:    fw.Logger,
	}

	fw.HandleCommand(EvaluateReading{}, ingestor.evaluateReading)
	fw.HandleCommand(NotifySensor{}, ingestor.notifySensor)

	fw.Monitor.SetPublisher(ingestor)

	return ingestor
}

//Ingest persists one reading and schedules the asynchronous follow-up
//work. Only the persistence error propagates to the caller. Threshold
//evaluation is queued before the house lookup: it only needs the
//device, so a reading from a device with a broken house mapping is
//still evaluated and only the dashboard notification is skipped.
func (ing *Ingestor) Ingest(reading *Reading, states []ActuatorState, mode *string) error {
	if err := ing.sensors.ReadingInsert(reading); err != nil {
		return err
	}

	ing.tasks.Create(EvaluateReading{
		DeviceId: reading.DeviceId,
		Value:    reading.Value,
	})

	houseId, err := ing.sensors.HouseId(reading.DeviceId)
	if err != nil {
		ing.logger.WithField("device_id", reading.DeviceId).
			WithField("error", err).
			Warning("Error resolving house for reading, skipping dashboard notification")
		return nil
	}

	if len(states) > 0 {
		if err := ing.actuators.ApplyStates(states); err != nil {
			ing.logger.WithField("error", err).Warning("Error applying raw actuator states")
		}
	}

	if mode != nil {
		if normalized, err := ParseCommand(*mode); err == nil && IsModeCommand(normalized) {
			if err := ing.houses.SetControlMode(houseId, normalized); err != nil {
				ing.logger.WithField("error", err).Warning("Error applying raw control mode")
			}
		}
	}

	ing.tasks.Create(NotifySensor{
		HouseId:   houseId,
		DeviceId:  reading.DeviceId,
		Value:     reading.Value,
		Timestamp: reading.RecordedAt,
	})

	if err := ing.events.Publish(ReadingSaved{
		DeviceId:  reading.DeviceId,
		HouseId:   houseId,
		Value:     reading.Value,
		Timestamp: reading.RecordedAt,
	}); err != nil {
		ing.logger.WithField("error", err).Warning("Error publishing reading event")
	}

	return nil
}

func (ing *Ingestor) evaluateReading(command interface{}) error {
	cmd := command.(EvaluateReading)

	_, err := ing.monitor.CheckReading(cmd.DeviceId, cmd.Value)
	return err
}

func (ing *Ingestor) notifySensor(command interface{}) error {
	cmd := command.(NotifySensor)

	ing.notifier.NotifySensorUpdate(cmd.HouseId, cmd.DeviceId, cmd.Value, cmd.Timestamp)
	return nil
}

//PublishAlert forwards a fresh alert to the dashboard and to the event
//topic.
func (ing *Ingestor) PublishAlert(a Alert) error {
	if err := ing.events.Publish(AlertCreated(a)); err != nil {
		ing.logger.WithField("error", err).Warning("Error publishing alert event")
	}

	return ing.notifier.PublishAlert(a)
}
