package farmwatch

import (
	"github.com/smartfarm/farmwatch/app"
)

var (
	Version = "1.2.0"

	farmwatch *Farmwatch
)

type Farmwatch struct {
	*app.App
	Houses    *Houses
	Sensors   *Sensors
	Actuators *Actuators
	Alerts    *Alerts
	Monitor   *Monitor
}

func New() *Farmwatch {
	farmwatch = &Farmwatch{
		App: app.New(),
	}

	if farmwatch.Database == nil {
		farmwatch.ConnectMariadb()
	}

	farmwatch.Houses = NewHouses(farmwatch)
	farmwatch.Sensors = NewSensors(farmwatch)
	farmwatch.Actuators = NewActuators(farmwatch)
	farmwatch.Alerts = NewAlerts(farmwatch)
	farmwatch.Monitor = NewMonitor(farmwatch.Sensors, farmwatch.Alerts, farmwatch.Logger)

	return farmwatch
}
