package farmwatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/smartfarm/farmwatch/app"
)

type Reading struct {
	Id         uint64    `db:"id" json:"-"`
	DeviceId   uint64    `db:"device_id" json:"deviceId"`
	Value      float64   `db:"value" json:"value"`
	RecordedAt time.Time `db:"recorded_at" json:"recordedAt"`
}

type SensorDevice struct {
	Id              uint64    `db:"device_id" json:"deviceId"`
	HouseId         uint64    `db:"house_id" json:"houseId"`
	TypeId          uint64    `db:"type_id" json:"typeId"`
	Name            string    `db:"name" json:"name"`
	Model           string    `db:"model" json:"model"`
	Location        string    `db:"location" json:"location"`
	BatteryStatus   int       `db:"battery_status" json:"batteryStatus"`
	FirmwareVersion string    `db:"firmware_version" json:"firmwareVersion"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

type SensorDeviceCriteria struct {
	Id      uint64 `schema:"device_id" db:"device_id"`
	HouseId uint64 `schema:"house_id" db:"house_id"`
	TypeId  uint64 `schema:"type_id" db:"type_id"`

	Limit int `schema:"limit"`
}

type Threshold struct {
	DeviceId uint64  `db:"device_id" json:"deviceId"`
	MinValue float64 `db:"min_value" json:"minValue"`
	MaxValue float64 `db:"max_value" json:"maxValue"`
}

//SensorOverview is the per-sensor dashboard row: metadata, latest value
//and the configured band.
type SensorOverview struct {
	DeviceId        uint64     `db:"device_id" json:"deviceId"`
	Name            string     `db:"name" json:"name"`
	Model           string     `db:"model" json:"model"`
	Location        string     `db:"location" json:"location"`
	BatteryStatus   int        `db:"battery_status" json:"batteryStatus"`
	FirmwareVersion string     `db:"firmware_version" json:"firmwareVersion"`
	SensorType      string     `db:"type_name" json:"sensorType"`
	SensorUnit      string     `db:"unit" json:"sensorUnit"`
	CurrentValue    *float64   `db:"current_value" json:"currentValue"`
	ValueRecordedAt *time.Time `db:"value_recorded_at" json:"valueRecordedAt"`
	MinValue        *float64   `db:"min_value" json:"minValue"`
	MaxValue        *float64   `db:"max_value" json:"maxValue"`
}

//SensorDetail carries the day aggregates for the detail page.
type SensorDetail struct {
	DeviceId        uint64   `db:"device_id" json:"deviceId"`
	Name            string   `db:"name" json:"name"`
	Model           string   `db:"model" json:"model"`
	Location        string   `db:"location" json:"location"`
	BatteryStatus   int      `db:"battery_status" json:"batteryStatus"`
	FirmwareVersion string   `db:"firmware_version" json:"firmwareVersion"`
	SensorType      string   `db:"type_name" json:"sensorType"`
	SensorUnit      string   `db:"unit" json:"sensorUnit"`
	DayMax          *float64 `db:"day_max_value" json:"dayMaxValue"`
	DayMin          *float64 `db:"day_min_value" json:"dayMinValue"`
	DayAvg          *float64 `db:"day_avg_value" json:"dayAvgValue"`
	MinValue        *float64 `db:"min_value" json:"minValue"`
	MaxValue        *float64 `db:"max_value" json:"maxValue"`
	CurrentValue    *float64 `db:"current_value" json:"currentValue"`
}

type Sensors struct {
	db *app.Database
	re *redis.Client
}

func NewSensors(fw *Farmwatch) *Sensors {
	return &Sensors{fw.Database, fw.Redis}
}

func (sensors *Sensors) List(c SensorDeviceCriteria) ([]SensorDevice, error) {
	var ds []SensorDevice
	if err := sensors.db.Match(&ds, "sensor_device", c); err != nil {
		return nil, err
	}

	return ds, nil
}

func (sensors *Sensors) Get(c SensorDeviceCriteria) (*SensorDevice, error) {
	var d SensorDevice
	if err := sensors.db.MatchOne(&d, "sensor_device", c); err != nil {
		return nil, err
	}

	return &d, nil
}

//DeviceIds lists the sensor devices of a house, the scheduler sweep
//walks these.
func (sensors *Sensors) DeviceIds(houseId uint64) ([]uint64, error) {
	var ids []uint64
	if err := sensors.db.Select(&ids, "SELECT device_id FROM sensor_device WHERE house_id = ?", houseId); err != nil {
		return nil, err
	}

	return ids, nil
}

//HouseId resolves the house owning a sensor device.
func (sensors *Sensors) HouseId(deviceId uint64) (uint64, error) {
	var houseId uint64
	if err := sensors.db.Get(&houseId, "SELECT house_id FROM sensor_device WHERE device_id = ?", deviceId); err != nil {
		return 0, err
	}

	return houseId, nil
}

//ReadingInsert appends a sensor reading. Readings are immutable, there
//is no update path.
func (sensors *Sensors) ReadingInsert(r *Reading) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	result, err := sensors.db.Exec(
		"INSERT INTO sensor_data (device_id, value, recorded_at) VALUES (?, ?, ?)",
		r.DeviceId,
		r.Value,
		r.RecordedAt)
	if err != nil {
		return err
	}

	last_id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	r.Id = uint64(last_id)

	sensors.cacheLatest(r)

	return nil
}

//ReadingBatchInsert writes a batch of readings in one transaction. A
//failure on any row rolls back the whole batch.
func (sensors *Sensors) ReadingBatchInsert(readings []Reading) error {
	return sensors.db.WithTransaction(func(tx *sqlx.Tx) error {
		for i := range readings {
			if readings[i].RecordedAt.IsZero() {
				readings[i].RecordedAt = time.Now().UTC()
			}

			if _, err := tx.Exec(
				"INSERT INTO sensor_data (device_id, value, recorded_at) VALUES (?, ?, ?)",
				readings[i].DeviceId,
				readings[i].Value,
				readings[i].RecordedAt); err != nil {
				return err
			}
		}

		return nil
	})
}

func (sensors *Sensors) LatestReading(deviceId uint64) (*Reading, error) {
	var r Reading
	err := sensors.db.Get(&r,
		"SELECT id, device_id, value, recorded_at FROM sensor_data WHERE device_id = ? ORDER BY recorded_at DESC LIMIT 1",
		deviceId)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

//RecentReadings returns the newest raw readings for a device, newest
//first, for the realtime detail chart.
func (sensors *Sensors) RecentReadings(deviceId uint64, limit int) ([]Reading, error) {
	if limit == 0 {
		limit = 30
	}

	var rs []Reading
	err := sensors.db.Select(&rs,
		"SELECT id, device_id, value, recorded_at FROM sensor_data WHERE device_id = ? ORDER BY recorded_at DESC LIMIT ?",
		deviceId,
		limit)
	if err != nil {
		return nil, err
	}

	return rs, nil
}

//CachedLatest reads the latest value through the redis cache when one
//is configured, falling back to the store.
func (sensors *Sensors) CachedLatest(deviceId uint64) (*Reading, error) {
	if sensors.re != nil {
		data, err := sensors.re.Get(context.Background(), latestReadingKey(deviceId)).Result()
		if err == nil {
			var r Reading
			if err := json.Unmarshal([]byte(data), &r); err == nil {
				return &r, nil
			}
		}
	}

	return sensors.LatestReading(deviceId)
}

func (sensors *Sensors) cacheLatest(r *Reading) {
	if sensors.re == nil {
		return
	}

	data, err := json.Marshal(r)
	if err != nil {
		return
	}

	if err := sensors.re.Set(context.Background(), latestReadingKey(r.DeviceId), data, time.Hour).Err(); err != nil {
		sensors.db.Logger.WithField("error", err).Warning("Error caching latest reading")
	}
}

func latestReadingKey(deviceId uint64) string {
	return fmt.Sprintf("sensor/%d/latest", deviceId)
}

//MonitoredDevice loads the metadata the threshold evaluator needs. The
//threshold join is a LEFT JOIN, missing bounds disable monitoring.
func (sensors *Sensors) MonitoredDevice(deviceId uint64) (*MonitoredDevice, error) {
	var d MonitoredDevice
	err := sensors.db.Get(&d, `
		SELECT sd.device_id, sd.house_id, sd.name, st.type_name, st.unit, t.min_value, t.max_value
		FROM sensor_device sd
		JOIN sensor_type st ON sd.type_id = st.type_id
		LEFT JOIN threshold t ON sd.device_id = t.device_id
		WHERE sd.device_id = ?`,
		deviceId)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

//Overview builds the dashboard sensor list for a house.
func (sensors *Sensors) Overview(houseId uint64) ([]SensorOverview, error) {
	var rows []SensorOverview
	err := sensors.db.Select(&rows, `
		SELECT
			sd.device_id,
			sd.name,
			sd.model,
			sd.location,
			sd.battery_status,
			sd.firmware_version,
			st.type_name,
			st.unit,
			latest.value AS current_value,
			latest.recorded_at AS value_recorded_at,
			t.min_value,
			t.max_value
		FROM sensor_device sd
		JOIN sensor_type st ON sd.type_id = st.type_id
		LEFT JOIN threshold t ON sd.device_id = t.device_id
		LEFT JOIN (
			SELECT s1.device_id, s1.value, s1.recorded_at
			FROM sensor_data s1
			JOIN (
				SELECT device_id, MAX(recorded_at) AS latest_time
				FROM sensor_data
				GROUP BY device_id
			) s2 ON s1.device_id = s2.device_id AND s1.recorded_at = s2.latest_time
		) latest ON sd.device_id = latest.device_id
		WHERE sd.house_id = ?
		ORDER BY sd.device_id`,
		houseId)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

//Detail returns the day aggregates and current value for one sensor.
func (sensors *Sensors) Detail(houseId uint64, deviceId uint64) (*SensorDetail, error) {
	var d SensorDetail
	err := sensors.db.Get(&d, `
		SELECT
			sd.device_id,
			sd.name,
			sd.model,
			sd.location,
			sd.battery_status,
			sd.firmware_version,
			st.type_name,
			st.unit,
			agg.day_max_value,
			agg.day_min_value,
			agg.day_avg_value,
			t.min_value,
			t.max_value,
			latest.value AS current_value
		FROM sensor_device sd
		JOIN sensor_type st ON sd.type_id = st.type_id
		LEFT JOIN threshold t ON sd.device_id = t.device_id
		LEFT JOIN (
			SELECT device_id,
				ROUND(MAX(value), 2) AS day_max_value,
				ROUND(MIN(value), 2) AS day_min_value,
				ROUND(AVG(value), 2) AS day_avg_value
			FROM sensor_data
			WHERE DATE(recorded_at) = DATE(NOW())
			GROUP BY device_id
		) agg ON sd.device_id = agg.device_id
		LEFT JOIN (
			SELECT s1.device_id, s1.value
			FROM sensor_data s1
			JOIN (
				SELECT device_id, MAX(recorded_at) AS latest_time
				FROM sensor_data
				WHERE device_id = ?
				GROUP BY device_id
			) s2 ON s1.device_id = s2.device_id AND s1.recorded_at = s2.latest_time
		) latest ON sd.device_id = latest.device_id
		WHERE sd.house_id = ? AND sd.device_id = ?`,
		deviceId,
		houseId,
		deviceId)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

func (sensors *Sensors) ThresholdGet(deviceId uint64) (*Threshold, error) {
	var t Threshold
	err := sensors.db.Get(&t, "SELECT device_id, min_value, max_value FROM threshold WHERE device_id = ?", deviceId)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

//ThresholdUpdate upserts the [min,max] band for a device. The band must
//be a proper interval.
func (sensors *Sensors) ThresholdUpdate(deviceId uint64, minValue float64, maxValue float64) error {
	if minValue >= maxValue {
		return ErrInvalidThreshold
	}

	_, err := sensors.db.Exec(`
		INSERT INTO threshold (device_id, min_value, max_value) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE min_value = VALUES(min_value), max_value = VALUES(max_value)`,
		deviceId,
		minValue,
		maxValue)

	return err
}
