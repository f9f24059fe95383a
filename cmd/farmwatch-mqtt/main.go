package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmodk/go-mqtt"
	"github.com/smartfarm/farmwatch"
)

var (
	app = farmwatch.New()
	lg  = app.Logger
	log = app.Logger

	mq *mqtt.Server

	notifier *farmwatch.Notifier
	ingestor *farmwatch.Ingestor

	no_tls = flag.Bool("disable-tls", false, "Disable tls")
	debug  = flag.Bool("debug", false, "Enable debug information")
)

func main() {
	flag.Parse()

	if *debug {
		app.Logger.Level = logrus.DebugLevel
	} else {
		app.Logger.Level = logrus.WarnLevel
	}

	if app.Config.Dashboard == nil {
		lg.Fatal("Missing Dashboard section in configuration")
	}

	notifier = farmwatch.NewNotifier(
		app.Config.Dashboard.BaseUrl,
		time.Duration(app.Config.Dashboard.NotifyTimeout)*time.Second,
		lg)

	ingestor = farmwatch.NewIngestor(app, notifier)

	if *no_tls == false {
		tls := NewTLSConfig()

		mq = mqtt.NewServer(tls)
	} else {
		mq = mqtt.NewServer(nil)
	}

	if err := mq.Subscribe("/sensor/+/data", 2, SensorDataHandler); err != nil {
		panic(err)
	}

	if err := mq.Subscribe("/actuator/+/command/+", 2, CommandResponseHandler); err != nil {
		panic(err)
	}

	app.HandleEvent(farmwatch.CommandDispatched{}, commandDispatched)

	go mq.Run()

	//Need seperate application names for nsq
	application_name := filepath.Base(os.Args[0])
	hostname, err := os.Hostname()
	if err != nil {
		panic(err)
	}

	app.Event.SetListenName(application_name + "-" + hostname)

	go app.ListenEvents()

	app.Run()
}

//SensorDataHandler ingests a gateway reading published on
///sensor/{device}/data, the mqtt twin of the http ingestion endpoint.
func SensorDataHandler(s *mqtt.Server, msg mqtt.Message) error {

	topic := strings.Split(msg.Topic, "/")
	device_id, err := strconv.ParseUint(topic[2], 10, 64)
	if err != nil {
		return err
	}

	var payload struct {
		Value      *float64                  `json:"value"`
		RecordedAt *time.Time                `json:"recordedAt"`
		Actuators  []farmwatch.ActuatorState `json:"actuators"`
		Mode       *string                   `json:"mode"`
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return err
	}

	if payload.Value == nil {
		return fmt.Errorf("Missing value in payload for device %d", device_id)
	}

	reading := farmwatch.Reading{
		DeviceId: device_id,
		Value:    *payload.Value,
	}

	if payload.RecordedAt != nil {
		reading.RecordedAt = *payload.RecordedAt
	}

	log.Debugf("MQTT reading: %d -> %f\n", device_id, reading.Value)

	return ingestor.Ingest(&reading, payload.Actuators, payload.Mode)
}

//CommandResponseHandler closes a command acked on
///actuator/{actuator}/command/{command}.
func CommandResponseHandler(s *mqtt.Server, msg mqtt.Message) error {

	topic := strings.Split(msg.Topic, "/")

	command_id, err := strconv.ParseUint(topic[4], 10, 64)
	if err != nil {
		return err
	}

	var response struct {
		Status       string                    `json:"status"`
		ErrorMessage *string                   `json:"errorMessage"`
		Actuators    []farmwatch.ActuatorState `json:"actuators"`
	}

	if err := json.Unmarshal(msg.Payload, &response); err != nil {
		return err
	}

	cmd, err := app.Actuators.Ack(command_id, response.Status, response.ErrorMessage)
	if err != nil {
		lg.WithField("command_id", command_id).WithField("error", err).Error("Error acking mqtt command")
		return err
	}

	if cmd.Status == farmwatch.CommandStatusExecuted && len(response.Actuators) > 0 {
		if err := app.Actuators.ApplyStates(response.Actuators); err != nil {
			lg.WithField("error", err).Warning("Error applying acked actuator states")
		}
	}

	status, err := app.Actuators.Status(cmd.ActuatorId)
	if err != nil {
		return err
	}

	notifier.NotifyActuatorUpdate(status.HouseId, farmwatch.ActuatorEvent{
		ActuatorId: status.ActuatorId,
		Status:     cmd.Status,
		IsOn:       status.IsOn,
		Mode:       status.Mode,
		Timestamp:  time.Now().UTC(),
		Name:       status.Name,
		Type:       status.Type,
	})

	return app.Event.Publish(farmwatch.CommandCompleted(*cmd))
}

//commandDispatched pushes a freshly dispatched command to the actuator's
//command topic so a connected controller does not have to poll.
func commandDispatched(event interface{}) error {
	e := event.(farmwatch.CommandDispatched)

	payload, err := json.Marshal(struct {
		CommandId uint64    `json:"commandId"`
		Command   string    `json:"command"`
		CreatedAt time.Time `json:"createdAt"`
	}{e.CommandId, e.Command, e.Timestamp})
	if err != nil {
		return err
	}

	command_topic := fmt.Sprintf("/actuator/%d/command", e.ActuatorId)
	log.Debugf("Publishing command to %s\n", command_topic)

	return mq.Publish(command_topic, 2, false, payload)
}
