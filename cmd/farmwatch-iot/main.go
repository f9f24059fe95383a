package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartfarm/farmwatch"
	farmwatch_app "github.com/smartfarm/farmwatch/app"
)

var (
	app   = farmwatch.New()
	lg    = app.Logger
	debug = flag.Bool("debug", false, "Enable debug output")

	notifier *farmwatch.Notifier
	ingestor *farmwatch.Ingestor
)

func main() {
	flag.Parse()
	if *debug {
		app.Logger.Level = logrus.DebugLevel
	}

	if err := app.App.CheckAndUpdateDatabase(farmwatch.DatabaseStructure); err != nil {
		panic(err)
	}

	if app.Config.Dashboard == nil {
		lg.Fatal("Missing Dashboard section in configuration")
	}

	notifier = farmwatch.NewNotifier(
		app.Config.Dashboard.BaseUrl,
		time.Duration(app.Config.Dashboard.NotifyTimeout)*time.Second,
		lg)

	if err := notifier.Health(); err != nil {
		lg.WithField("error", err).Warning("Dashboard is not reachable, live updates will be dropped until it comes back")
	}

	ingestor = farmwatch.NewIngestor(app, notifier)

	app.Use(farmwatch_app.Cors())

	app.Get("/", infoHandler)
	app.Post("/sensor/data", sensorDataHandler)
	app.Get("/sensor/control/{actuator}", commandPollHandler)
	app.Post("/sensor/status", commandAckHandler)

	app.Run()
}

func infoHandler(w http.ResponseWriter, r *http.Request) {

	info := struct {
		Version string `json:"version"`
	}{
		Version: farmwatch.Version,
	}

	app.JsonResponse(w, info)
}

func sensorDataHandler(w http.ResponseWriter, r *http.Request) {

	var request struct {
		SensorId  uint64                    `json:"sensorId"`
		Value     *float64                  `json:"value"`
		Actuators []farmwatch.ActuatorState `json:"actuators"`
		Mode      *string                   `json:"mode"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	if request.SensorId == 0 || request.Value == nil {
		app.HttpError(w, "sensorId and value are required", http.StatusBadRequest)
		return
	}

	reading := farmwatch.Reading{
		DeviceId: request.SensorId,
		Value:    *request.Value,
	}

	if err := ingestor.Ingest(&reading, request.Actuators, request.Mode); err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonCreated(w, reading)
}

func commandPollHandler(w http.ResponseWriter, r *http.Request) {

	actuator_id, err := farmwatch.GetUintParameter(r, "actuator")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	cmd, err := app.Actuators.NextPending(actuator_id)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	if cmd == nil {
		app.JsonResponse(w, struct {
			HasCommand bool `json:"hasCommand"`
		}{false})
		return
	}

	response := struct {
		HasCommand bool      `json:"hasCommand"`
		CommandId  uint64    `json:"commandId"`
		Command    string    `json:"command"`
		CreatedAt  time.Time `json:"createdAt"`
	}{true, cmd.Id, cmd.Command, cmd.CreatedAt}

	app.JsonResponse(w, response)
}

func commandAckHandler(w http.ResponseWriter, r *http.Request) {

	var request struct {
		CommandId    uint64                    `json:"commandId"`
		Status       string                    `json:"status"`
		ErrorMessage *string                   `json:"errorMessage"`
		Actuators    []farmwatch.ActuatorState `json:"actuators"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	cmd, err := app.Actuators.Ack(request.CommandId, request.Status, request.ErrorMessage)
	if err != nil {
		switch err {
		case farmwatch.ErrInvalidStatus, farmwatch.ErrCommandPending:
			app.HttpBadRequest(w, err)
		case farmwatch.ErrCommandNotFound:
			app.HttpNotFound(w, err)
		default:
			app.HttpInternalError(w, err)
		}
		return
	}

	if cmd.Status == farmwatch.CommandStatusExecuted && len(request.Actuators) > 0 {
		if err := app.Actuators.ApplyStates(request.Actuators); err != nil {
			lg.WithField("error", err).Warning("Error applying acked actuator states")
		}
	}

	notifyCommandResult(cmd)

	if err := app.Event.Publish(farmwatch.CommandCompleted(*cmd)); err != nil {
		lg.WithField("error", err).Warning("Error publishing command event")
	}

	app.JsonResponse(w, cmd)
}

//notifyCommandResult pushes the command's fate with the actuator's
//current state so the dashboard can reconcile even a failed command.
func notifyCommandResult(cmd *farmwatch.ControlCommand) {

	status, err := app.Actuators.Status(cmd.ActuatorId)
	if err != nil {
		lg.WithField("actuator_id", cmd.ActuatorId).
			WithField("error", err).
			Warning("Error loading actuator for notification")
		return
	}

	timestamp := time.Now().UTC()
	if cmd.ExecutedAt != nil {
		timestamp = *cmd.ExecutedAt
	}

	notifier.NotifyActuatorUpdate(status.HouseId, farmwatch.ActuatorEvent{
		ActuatorId: status.ActuatorId,
		Status:     cmd.Status,
		IsOn:       status.IsOn,
		Mode:       status.Mode,
		Timestamp:  timestamp,
		Name:       status.Name,
		Type:       status.Type,
	})
}
