package main

import (
	"flag"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartfarm/farmwatch"
)

var (
	app = farmwatch.New()
	lg  = app.Logger

	days     = flag.Int("days", 7, "Number of days to backfill")
	interval = flag.Int("interval", 300, "Seconds between generated readings")
	debug    = flag.Bool("debug", false, "Enable debug messages")
)

func main() {
	flag.Parse()
	if *debug {
		app.Logger.Level = logrus.DebugLevel
	}

	if err := app.App.CheckAndUpdateDatabase(farmwatch.DatabaseStructure); err != nil {
		panic(err)
	}

	house_ids, err := app.Houses.Ids()
	if err != nil {
		panic(err)
	}

	start := time.Now().UTC().AddDate(0, 0, -*days)
	step := time.Duration(*interval) * time.Second

	for _, house_id := range house_ids {
		devices, err := app.Sensors.List(farmwatch.SensorDeviceCriteria{HouseId: house_id})
		if err != nil {
			panic(err)
		}

		for _, device := range devices {
			seedDevice(device, start, step)
		}
	}
}

//seedDevice backfills a plausible daily curve: a sine over the day with
//some jitter, batched so a whole device commits at once.
func seedDevice(device farmwatch.SensorDevice, start time.Time, step time.Duration) {

	readings := []farmwatch.Reading{}

	for ts := start; ts.Before(time.Now().UTC()); ts = ts.Add(step) {
		day_fraction := float64(ts.Hour()*3600+ts.Minute()*60+ts.Second()) / 86400.0
		value := 25.0 + 10.0*math.Sin(2.0*math.Pi*day_fraction) + rand.Float64()*2.0

		readings = append(readings, farmwatch.Reading{
			DeviceId:   device.Id,
			Value:      math.Round(value*10) / 10,
			RecordedAt: ts,
		})
	}

	if err := app.Sensors.ReadingBatchInsert(readings); err != nil {
		panic(err)
	}

	alerted := app.Monitor.CheckReadings(readings)

	lg.Infof("Seeded %d readings for device %d (%s), %d alerts raised", len(readings), device.Id, device.Name, alerted)
}
