package farmwatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cmodk/go-simplehttp"
	"github.com/sirupsen/logrus"
)

const (
	EventSensorUpdate   = "sensor:update"
	EventActuatorUpdate = "actuator:update"
	EventAlertNew       = "alert:new"

	DefaultNotifyTimeout = 5 * time.Second
)

//ActuatorEvent is the actuator:update broadcast payload.
type ActuatorEvent struct {
	ActuatorId uint64    `json:"actuatorId"`
	Status     string    `json:"status"`
	IsOn       bool      `json:"isOn"`
	Mode       string    `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
}

//NotifyEvent is the envelope posted to the dashboard's internal notify
//endpoint. Event defaults to sensor:update when empty.
type NotifyEvent struct {
	Event     string         `json:"event,omitempty"`
	HouseId   uint64         `json:"houseId"`
	DeviceId  uint64         `json:"deviceId,omitempty"`
	Value     float64        `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Actuator  *ActuatorEvent `json:"actuator,omitempty"`
	Alert     *Alert         `json:"alert,omitempty"`
}

//Notifier pushes live updates from the ingestion process to the
//dashboard process. Every call is best-effort: failures and timeouts
//are logged and swallowed, never surfaced to the triggering request.
type Notifier struct {
	http    *simplehttp.SimpleHttp
	timeout time.Duration
	logger  *logrus.Logger
}

func NewNotifier(baseUrl string, timeout time.Duration, logger *logrus.Logger) *Notifier {
	backend := simplehttp.New(baseUrl, logger)

	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}

	return &Notifier{
		http:    &backend,
		timeout: timeout,
		logger:  logger,
	}
}

//Notify posts the event, bounded by the notifier timeout. The post
//runs in its own goroutine; when the deadline passes the caller moves
//on and the result is logged whenever it arrives.
func (n *Notifier) Notify(event NotifyEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.WithField("error", err).Error("Error encoding notify event")
		return
	}

	done := make(chan error, 1)

	go func() {
		_, err := n.http.Post("/internal/sensor/notify", string(data))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			n.logger.WithField("error", err).
				WithField("event", event.Event).
				Warning("Dashboard notification failed")
		}
	case <-time.After(n.timeout):
		n.logger.WithField("event", event.Event).
			Warningf("Dashboard notification timed out after %s", n.timeout)
	}
}

func (n *Notifier) NotifySensorUpdate(houseId uint64, deviceId uint64, value float64, timestamp time.Time) {
	n.Notify(NotifyEvent{
		Event:     EventSensorUpdate,
		HouseId:   houseId,
		DeviceId:  deviceId,
		Value:     value,
		Timestamp: timestamp,
	})
}

func (n *Notifier) NotifyActuatorUpdate(houseId uint64, actuator ActuatorEvent) {
	n.Notify(NotifyEvent{
		Event:     EventActuatorUpdate,
		HouseId:   houseId,
		Timestamp: actuator.Timestamp,
		Actuator:  &actuator,
	})
}

//PublishAlert implements AlertPublisher for the ingestion process.
func (n *Notifier) PublishAlert(a Alert) error {
	n.Notify(NotifyEvent{
		Event:     EventAlertNew,
		HouseId:   a.HouseId,
		DeviceId:  a.DeviceId,
		Timestamp: a.CreatedAt,
		Alert:     &a,
	})

	return nil
}

//Health checks the dashboard root endpoint, used at ingestion startup.
func (n *Notifier) Health() error {
	done := make(chan error, 1)

	go func() {
		_, err := n.http.Get("/")
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(n.timeout):
		return fmt.Errorf("dashboard health check timed out after %s", n.timeout)
	}
}
