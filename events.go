package farmwatch

import (
	"time"
)

//Domain events published to the nsq topic for external consumers when
//a broker is configured.

type ReadingSaved struct {
	DeviceId  uint64    `json:"device_id"`
	HouseId   uint64    `json:"house_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type AlertCreated Alert

type CommandDispatched DispatchResult

type CommandCompleted ControlCommand
