package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/sirupsen/logrus"

	"github.com/smartfarm/farmwatch"
	farmwatch_app "github.com/smartfarm/farmwatch/app"
	ws "github.com/smartfarm/farmwatch/websocket"
)

var (
	app   = farmwatch.New()
	lg    = app.Logger
	debug = flag.Bool("debug", false, "Enable debug output")

	hub *ws.Hub
)

func main() {
	flag.Parse()
	if *debug {
		app.Logger.Level = logrus.DebugLevel
	}

	if err := app.App.CheckAndUpdateDatabase(farmwatch.DatabaseStructure); err != nil {
		panic(err)
	}

	hub = ws.NewHub(lg)
	go hub.Run()

	app.Monitor.SetPublisher(hubPublisher{})

	sweep_interval := farmwatch.DefaultSweepInterval
	if app.Config.Monitor != nil {
		sweep_interval = time.Duration(app.Config.Monitor.SweepInterval) * time.Second
	}

	scheduler := farmwatch.NewScheduler(app, sweep_interval)
	go scheduler.Run()

	app.Use(farmwatch_app.Cors())

	app.Get("/", infoHandler)

	app.Get("/house", houseListHandler)
	app.Get("/house/{house}", houseGetHandler)

	app.Get("/sensor/{house}", sensorOverviewHandler)
	app.Get("/sensor/{house}/timeframe", sensorTimeframeHandler)
	app.Get("/detail/current/{device}", sensorCurrentHandler)
	app.Put("/detail/threshold/{device}", thresholdUpdateHandler)
	app.Get("/detail/{house}/{device}", sensorDetailHandler)

	app.Get("/alert/{house}", alertListHandler)
	app.Get("/alert/{house}/{device}", alertDeviceListHandler)

	app.Post("/actuator/control", actuatorControlHandler)
	app.Get("/actuator/status/{actuator}", actuatorStatusHandler)
	app.Get("/actuator/history/{actuator}", actuatorHistoryHandler)
	app.Get("/actuator/{house}", actuatorListHandler)

	app.Post("/internal/sensor/notify", notifyHandler)
	app.Get("/ws", websocketHandler)

	app.Run()
}

//hubPublisher feeds scheduler-created alerts straight into the local
//broadcast hub, the in-process equivalent of the ingestion notifier.
type hubPublisher struct{}

func (hubPublisher) PublishAlert(a farmwatch.Alert) error {
	hub.BroadcastToHouse(a.HouseId, farmwatch.EventAlertNew, a)
	return nil
}

func infoHandler(w http.ResponseWriter, r *http.Request) {

	info := struct {
		Version string `json:"version"`
	}{
		Version: farmwatch.Version,
	}

	app.JsonResponse(w, info)
}

func houseListHandler(w http.ResponseWriter, r *http.Request) {

	c := farmwatch.HouseCriteria{}
	if err := schema.NewDecoder().Decode(&c, r.URL.Query()); err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	hs, err := app.Houses.List(c)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, hs)
}

func houseGetHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	h, err := app.Houses.Get(farmwatch.HouseCriteria{Id: house_id})
	if err != nil {
		app.HttpNotFound(w, err)
		return
	}

	app.JsonResponse(w, h)
}

func sensorOverviewHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	rows, err := app.Sensors.Overview(house_id)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, rows)
}

func sensorTimeframeHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	tf, err := farmwatch.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	limit := farmwatch.GetIntQuery(r, "limit", 0)

	points, err := app.Sensors.ValuesByTimeframe(house_id, tf, limit)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, points)
}

func sensorDetailHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	device_id, err := farmwatch.GetUintParameter(r, "device")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	detail, err := app.Sensors.Detail(house_id, device_id)
	if err != nil {
		app.HttpNotFound(w, err)
		return
	}

	app.JsonResponse(w, detail)
}

func sensorCurrentHandler(w http.ResponseWriter, r *http.Request) {

	device_id, err := farmwatch.GetUintParameter(r, "device")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	current, err := app.Sensors.CachedLatest(device_id)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	readings, err := app.Sensors.RecentReadings(device_id, farmwatch.GetIntQuery(r, "limit", 30))
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	response := struct {
		Current  *farmwatch.Reading  `json:"current"`
		Readings []farmwatch.Reading `json:"readings"`
	}{current, readings}

	app.JsonResponse(w, response)
}

func thresholdUpdateHandler(w http.ResponseWriter, r *http.Request) {

	device_id, err := farmwatch.GetUintParameter(r, "device")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	var request struct {
		MinValue *float64 `json:"minValue"`
		MaxValue *float64 `json:"maxValue"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	if request.MinValue == nil || request.MaxValue == nil {
		app.HttpError(w, "minValue and maxValue are required", http.StatusBadRequest)
		return
	}

	if err := app.Sensors.ThresholdUpdate(device_id, *request.MinValue, *request.MaxValue); err != nil {
		if err == farmwatch.ErrInvalidThreshold {
			app.HttpBadRequest(w, err)
			return
		}
		app.HttpInternalError(w, err)
		return
	}

	t, err := app.Sensors.ThresholdGet(device_id)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, t)
}

func alertListHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	alerts, err := app.Alerts.ListForHouse(house_id, farmwatch.GetIntQuery(r, "limit", 0))
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, alerts)
}

func alertDeviceListHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	device_id, err := farmwatch.GetUintParameter(r, "device")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	alerts, err := app.Alerts.ListForDevice(house_id, device_id, farmwatch.GetIntQuery(r, "limit", 0))
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, alerts)
}

func actuatorControlHandler(w http.ResponseWriter, r *http.Request) {

	var request struct {
		ActuatorId uint64 `json:"actuatorId"`
		Command    string `json:"command"`
		UserId     uint64 `json:"userId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	if request.ActuatorId == 0 || request.Command == "" {
		app.HttpError(w, "actuatorId and command are required", http.StatusBadRequest)
		return
	}

	result, err := app.Actuators.Dispatch(request.ActuatorId, request.Command, request.UserId)
	if err != nil {
		switch err {
		case farmwatch.ErrInvalidCommand:
			app.HttpBadRequest(w, err)
		case farmwatch.ErrActuatorNotFound:
			app.HttpNotFound(w, err)
		default:
			app.HttpInternalError(w, err)
		}
		return
	}

	broadcastActuatorChange(result)

	if err := app.Event.Publish(farmwatch.CommandDispatched(*result)); err != nil {
		lg.WithField("error", err).Warning("Error publishing dispatch event")
	}

	app.JsonResponse(w, result)
}

//broadcastActuatorChange pushes the post-dispatch state to the house
//room. A mode change affects every actuator in the house, an on/off
//change only the target.
func broadcastActuatorChange(result *farmwatch.DispatchResult) {

	if farmwatch.IsModeCommand(result.Command) {
		actuators, err := app.Actuators.ListForHouse(result.HouseId)
		if err != nil {
			lg.WithField("error", err).Error("Error listing actuators for broadcast")
			return
		}

		for _, actuator := range actuators {
			hub.BroadcastToHouse(result.HouseId, farmwatch.EventActuatorUpdate, actuator)
		}

		return
	}

	status, err := app.Actuators.Status(result.ActuatorId)
	if err != nil {
		lg.WithField("error", err).Error("Error loading actuator for broadcast")
		return
	}

	hub.BroadcastToHouse(result.HouseId, farmwatch.EventActuatorUpdate, status)
}

func actuatorListHandler(w http.ResponseWriter, r *http.Request) {

	house_id, err := farmwatch.GetUintParameter(r, "house")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	actuators, err := app.Actuators.ListForHouse(house_id)
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, actuators)
}

func actuatorStatusHandler(w http.ResponseWriter, r *http.Request) {

	actuator_id, err := farmwatch.GetUintParameter(r, "actuator")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	status, err := app.Actuators.Status(actuator_id)
	if err != nil {
		if err == farmwatch.ErrActuatorNotFound {
			app.HttpNotFound(w, err)
			return
		}
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, status)
}

func actuatorHistoryHandler(w http.ResponseWriter, r *http.Request) {

	actuator_id, err := farmwatch.GetUintParameter(r, "actuator")
	if err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	history, err := app.Actuators.History(actuator_id, farmwatch.GetIntQuery(r, "limit", 0))
	if err != nil {
		app.HttpInternalError(w, err)
		return
	}

	app.JsonResponse(w, history)
}

//notifyHandler receives the ingestion process's fire-and-forget pushes
//and relays them to the websocket house room.
func notifyHandler(w http.ResponseWriter, r *http.Request) {

	var event farmwatch.NotifyEvent

	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		app.HttpBadRequest(w, err)
		return
	}

	if event.HouseId == 0 {
		app.HttpError(w, "houseId is required", http.StatusBadRequest)
		return
	}

	if event.Event == "" {
		event.Event = farmwatch.EventSensorUpdate
	}

	hub.BroadcastToHouse(event.HouseId, event.Event, event)

	app.JsonResponse(w, struct {
		Delivered int `json:"delivered"`
	}{hub.RoomSize(event.HouseId)})
}

func websocketHandler(w http.ResponseWriter, r *http.Request) {

	if err := ws.ServeWs(hub, w, r); err != nil {
		lg.WithField("error", err).Error("Error upgrading websocket connection")
	}
}
