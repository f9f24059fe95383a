package farmwatch

import (
	"time"

	"github.com/smartfarm/farmwatch/app"
)

const (
	AlertTypeWarning = "warning"
	AlertTypeError   = "error"
)

type Alert struct {
	Id        uint64    `db:"alert_id" json:"alertId"`
	HouseId   uint64    `db:"house_id" json:"houseId"`
	DeviceId  uint64    `db:"device_id" json:"deviceId"`
	AlertType string    `db:"alert_type" json:"alertType"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

//AlertEntry is an alert joined with the originating sensor name, the
//shape the dashboard list endpoints return.
type AlertEntry struct {
	AlertType  string    `db:"alert_type" json:"alertType"`
	Message    string    `db:"message" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"timestamp"`
	SensorName string    `db:"name" json:"name"`
}

type Alerts struct {
	db *app.Database
}

func NewAlerts(fw *Farmwatch) *Alerts {
	return &Alerts{fw.Database}
}

func (alerts *Alerts) Insert(a *Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	result, err := alerts.db.Exec(
		"INSERT INTO alert (house_id, device_id, alert_type, message, created_at) VALUES (?, ?, ?, ?, ?)",
		a.HouseId,
		a.DeviceId,
		a.AlertType,
		a.Message,
		a.CreatedAt)
	if err != nil {
		return err
	}

	last_id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	a.Id = uint64(last_id)

	return nil
}

//RecentExists reports whether an alert of the given type exists for the
//device with created_at inside the current dedup window. The alert
//table itself is the dedup ledger.
func (alerts *Alerts) RecentExists(deviceId uint64, alertType string, since time.Time) (bool, error) {
	var count int
	err := alerts.db.Get(&count,
		"SELECT COUNT(*) FROM alert WHERE device_id = ? AND alert_type = ? AND created_at >= ?",
		deviceId,
		alertType,
		since)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

//ListForHouse returns the latest alerts for a house, bounded to a
//30-day window.
func (alerts *Alerts) ListForHouse(houseId uint64, limit int) ([]AlertEntry, error) {
	if limit == 0 {
		limit = 10
	}

	var entries []AlertEntry
	err := alerts.db.Select(&entries, `
		SELECT a.alert_type, a.message, a.created_at, sd.name
		FROM alert a
		JOIN sensor_device sd ON a.device_id = sd.device_id
		WHERE sd.house_id = ?
		AND a.alert_type IN ('warning', 'error')
		AND a.created_at >= DATE_SUB(NOW(), INTERVAL 30 DAY)
		ORDER BY a.created_at DESC
		LIMIT ?`,
		houseId,
		limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (alerts *Alerts) ListForDevice(houseId uint64, deviceId uint64, limit int) ([]AlertEntry, error) {
	if limit == 0 {
		limit = 10
	}

	var entries []AlertEntry
	err := alerts.db.Select(&entries, `
		SELECT a.alert_type, a.message, a.created_at, sd.name
		FROM alert a
		JOIN sensor_device sd ON a.device_id = sd.device_id
		WHERE sd.house_id = ?
		AND a.device_id = ?
		ORDER BY a.created_at DESC
		LIMIT ?`,
		houseId,
		deviceId,
		limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}
