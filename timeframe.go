package farmwatch

import (
	"fmt"
)

//Timeframe selects the aggregation window for chart queries.
type Timeframe int

const (
	TimeframeHourly Timeframe = iota
	TimeframeDaily
	TimeframeMonthly
)

func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "", "hourly":
		return TimeframeHourly, nil
	case "daily":
		return TimeframeDaily, nil
	case "monthly":
		return TimeframeMonthly, nil
	}

	return 0, fmt.Errorf("invalid timeframe: %s", s)
}

func (tf Timeframe) String() string {
	switch tf {
	case TimeframeDaily:
		return "daily"
	case TimeframeMonthly:
		return "monthly"
	}
	return "hourly"
}

type timeframeWindow struct {
	BucketFormat string
	DefaultLimit int
	Aggregated   bool
}

var timeframeWindows = map[Timeframe]timeframeWindow{
	TimeframeHourly:  {"%Y-%m-%d %H:%i:%s", 15, false},
	TimeframeDaily:   {"%Y-%m-%d", 7, true},
	TimeframeMonthly: {"%Y-%m", 12, true},
}

type TimeframePoint struct {
	SensorType string  `db:"sensor_type" json:"sensorType"`
	DeviceId   uint64  `db:"device_id" json:"deviceId"`
	Timestamp  string  `db:"timestamp" json:"timestamp"`
	Value      float64 `db:"value" json:"value"`
}

//ValuesByTimeframe returns per-device chart series for a house. Hourly
//serves the newest raw readings; daily and monthly average readings
//into calendar buckets. The limit counts buckets per device.
func (sensors *Sensors) ValuesByTimeframe(houseId uint64, tf Timeframe, limit int) ([]TimeframePoint, error) {
	window := timeframeWindows[tf]

	if limit <= 0 {
		limit = window.DefaultLimit
	}

	var query string
	if window.Aggregated {
		query = fmt.Sprintf(`
			WITH bucketed AS (
				SELECT
					st.type_name AS sensor_type,
					s.device_id,
					DATE_FORMAT(s.recorded_at, '%s') AS timestamp,
					ROUND(AVG(s.value), 1) AS value
				FROM sensor_data s
				JOIN sensor_device sd ON s.device_id = sd.device_id
				JOIN sensor_type st ON sd.type_id = st.type_id
				WHERE sd.house_id = ?
				GROUP BY s.device_id, st.type_name, DATE_FORMAT(s.recorded_at, '%s')
			),
			ranked AS (
				SELECT bucketed.*, ROW_NUMBER() OVER (
					PARTITION BY device_id
					ORDER BY timestamp DESC
				) AS row_num
				FROM bucketed
			)
			SELECT sensor_type, device_id, timestamp, value
			FROM ranked
			WHERE row_num <= ?
			ORDER BY device_id, timestamp DESC`,
			window.BucketFormat,
			window.BucketFormat)
	} else {
		query = fmt.Sprintf(`
			WITH ranked AS (
				SELECT
					st.type_name AS sensor_type,
					s.device_id,
					DATE_FORMAT(s.recorded_at, '%s') AS timestamp,
					ROUND(s.value, 1) AS value,
					ROW_NUMBER() OVER (
						PARTITION BY s.device_id
						ORDER BY s.recorded_at DESC
					) AS row_num
				FROM sensor_data s
				JOIN sensor_device sd ON s.device_id = sd.device_id
				JOIN sensor_type st ON sd.type_id = st.type_id
				WHERE sd.house_id = ?
			)
			SELECT sensor_type, device_id, timestamp, value
			FROM ranked
			WHERE row_num <= ?
			ORDER BY device_id, timestamp DESC`,
			window.BucketFormat)
	}

	var points []TimeframePoint
	if err := sensors.db.Select(&points, query, houseId, limit); err != nil {
		return nil, err
	}

	return points, nil
}
