package farmwatch

import (
	"database/sql"
	"strings"
	"time"

	"github.com/cmodk/go-simpleflake"
	"github.com/jmoiron/sqlx"

	"github.com/smartfarm/farmwatch/app"
)

const (
	CommandOn     = "on"
	CommandOff    = "off"
	CommandAuto   = "auto"
	CommandManual = "manual"

	CommandStatusPending   = "pending"
	CommandStatusExecuting = "executing"
	CommandStatusExecuted  = "executed"
	CommandStatusFailed    = "failed"
)

//ParseCommand normalizes a user supplied control command. Commands are
//case-insensitive on the wire and stored lowercased.
func ParseCommand(command string) (string, error) {
	switch strings.ToLower(command) {
	case CommandOn:
		return CommandOn, nil
	case CommandOff:
		return CommandOff, nil
	case CommandAuto:
		return CommandAuto, nil
	case CommandManual:
		return CommandManual, nil
	}

	return "", ErrInvalidCommand
}

func IsModeCommand(command string) bool {
	return command == CommandAuto || command == CommandManual
}

func IsTerminalStatus(status string) bool {
	return status == CommandStatusExecuted || status == CommandStatusFailed
}

type ActuatorDevice struct {
	Id        uint64    `db:"actuator_id" json:"actuatorId"`
	HouseId   uint64    `db:"house_id" json:"houseId"`
	DeviceId  *uint64   `db:"device_id" json:"deviceId"`
	Type      string    `db:"actuator_type" json:"actuatorType"`
	Name      string    `db:"name" json:"name"`
	Model     string    `db:"model" json:"model"`
	Location  string    `db:"location" json:"location"`
	IsOn      bool      `db:"is_on" json:"isOn"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

//ActuatorStatus is an actuator row joined with the house-wide control
//mode, the shape the status and list endpoints return.
type ActuatorStatus struct {
	ActuatorId uint64  `db:"actuator_id" json:"actuatorId"`
	HouseId    uint64  `db:"house_id" json:"houseId"`
	DeviceId   *uint64 `db:"device_id" json:"deviceId"`
	Type       string  `db:"actuator_type" json:"actuatorType"`
	Name       string  `db:"name" json:"name"`
	Location   string  `db:"location" json:"location"`
	IsOn       bool    `db:"is_on" json:"isOn"`
	Mode       string  `db:"mode" json:"mode"`
}

type ControlCommand struct {
	Id           uint64     `db:"command_id" json:"commandId"`
	ActuatorId   uint64     `db:"actuator_id" json:"actuatorId"`
	Command      string     `db:"command" json:"command"`
	RequestedBy  uint64     `db:"requested_by" json:"requestedBy"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	ExecutedAt   *time.Time `db:"executed_at" json:"executedAt"`
	ErrorMessage *string    `db:"error_message" json:"errorMessage"`
}

//ActuatorState is a raw state push from a gateway, applied outside the
//command lifecycle.
type ActuatorState struct {
	ActuatorId uint64 `json:"actuatorId"`
	IsOn       bool   `json:"isOn"`
}

type DispatchResult struct {
	CommandId  uint64    `json:"commandId"`
	ActuatorId uint64    `json:"actuatorId"`
	HouseId    uint64    `json:"houseId"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
}

type Actuators struct {
	db *app.Database
}

func NewActuators(fw *Farmwatch) *Actuators {
	return &Actuators{fw.Database}
}

func (actuators *Actuators) ListForHouse(houseId uint64) ([]ActuatorStatus, error) {
	var as []ActuatorStatus
	err := actuators.db.Select(&as, `
		SELECT ad.actuator_id, ad.house_id, ad.device_id, ad.actuator_type, ad.name, ad.location, ad.is_on, h.control_mode AS mode
		FROM actuator_device ad
		JOIN house h ON ad.house_id = h.house_id
		WHERE ad.house_id = ?
		ORDER BY ad.actuator_id`,
		houseId)
	if err != nil {
		return nil, err
	}

	return as, nil
}

func (actuators *Actuators) Status(actuatorId uint64) (*ActuatorStatus, error) {
	var a ActuatorStatus
	err := actuators.db.Get(&a, `
		SELECT ad.actuator_id, ad.house_id, ad.device_id, ad.actuator_type, ad.name, ad.location, ad.is_on, h.control_mode AS mode
		FROM actuator_device ad
		JOIN house h ON ad.house_id = h.house_id
		WHERE ad.actuator_id = ?`,
		actuatorId)
	if err == sql.ErrNoRows {
		return nil, ErrActuatorNotFound
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

//Dispatch records a control intent and applies the immediate status
//change in one transaction: the pending command row and the status
//mutation commit together or not at all.
func (actuators *Actuators) Dispatch(actuatorId uint64, command string, requestedBy uint64) (*DispatchResult, error) {
	normalized, err := ParseCommand(command)
	if err != nil {
		return nil, err
	}

	cmd := ControlCommand{
		Id:          simpleflake.Next(),
		ActuatorId:  actuatorId,
		Command:     normalized,
		RequestedBy: requestedBy,
		Status:      CommandStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	var houseId uint64

	err = actuators.db.WithTransaction(func(tx *sqlx.Tx) error {
		if err := tx.Get(&houseId, "SELECT house_id FROM actuator_device WHERE actuator_id = ?", actuatorId); err != nil {
			if err == sql.ErrNoRows {
				return ErrActuatorNotFound
			}
			return err
		}

		if _, err := tx.Exec(
			"INSERT INTO control_command (command_id, actuator_id, command, requested_by, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			cmd.Id,
			cmd.ActuatorId,
			cmd.Command,
			cmd.RequestedBy,
			cmd.Status,
			cmd.CreatedAt); err != nil {
			return err
		}

		if IsModeCommand(normalized) {
			_, err := tx.Exec("UPDATE house SET control_mode = ? WHERE house_id = ?", normalized, houseId)
			return err
		}

		_, err := tx.Exec("UPDATE actuator_device SET is_on = ? WHERE actuator_id = ?", normalized == CommandOn, actuatorId)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &DispatchResult{
		CommandId:  cmd.Id,
		ActuatorId: actuatorId,
		HouseId:    houseId,
		Command:    normalized,
		Timestamp:  cmd.CreatedAt,
	}, nil
}

//NextPending claims the oldest pending command for an actuator. The
//claim is a conditional update guarded on status, so two concurrent
//polls can never both receive the same command: the loser retries the
//next-oldest pending row or comes up empty.
func (actuators *Actuators) NextPending(actuatorId uint64) (*ControlCommand, error) {
	for {
		var cmd ControlCommand
		err := actuators.db.Get(&cmd, `
			SELECT command_id, actuator_id, command, requested_by, status, created_at, executed_at, error_message
			FROM control_command
			WHERE actuator_id = ? AND status = ?
			ORDER BY created_at ASC, command_id ASC
			LIMIT 1`,
			actuatorId,
			CommandStatusPending)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		result, err := actuators.db.Exec(
			"UPDATE control_command SET status = ? WHERE command_id = ? AND status = ?",
			CommandStatusExecuting,
			cmd.Id,
			CommandStatusPending)
		if err != nil {
			return nil, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}

		if affected == 1 {
			cmd.Status = CommandStatusExecuting
			return &cmd, nil
		}

		//Lost the claim race, try the next pending command
	}
}

func (actuators *Actuators) Get(commandId uint64) (*ControlCommand, error) {
	var cmd ControlCommand
	err := actuators.db.Get(&cmd, `
		SELECT command_id, actuator_id, command, requested_by, status, created_at, executed_at, error_message
		FROM control_command
		WHERE command_id = ?`,
		commandId)
	if err == sql.ErrNoRows {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, err
	}

	return &cmd, nil
}

//Ack closes a command with its terminal status. Commands move to
//executed or failed only from executing; a still pending command has
//never been handed out and the ack is rejected. A repeated ack for an
//already terminal command is a no-op returning the stored state, so
//gateway retries converge.
func (actuators *Actuators) Ack(commandId uint64, status string, errorMessage *string) (*ControlCommand, error) {
	if !IsTerminalStatus(status) {
		return nil, ErrInvalidStatus
	}

	cmd, err := actuators.Get(commandId)
	if err != nil {
		return nil, err
	}

	if IsTerminalStatus(cmd.Status) {
		return cmd, nil
	}

	if cmd.Status == CommandStatusPending {
		return nil, ErrCommandPending
	}

	executedAt := time.Now().UTC()

	result, err := actuators.db.Exec(
		"UPDATE control_command SET status = ?, executed_at = ?, error_message = ? WHERE command_id = ? AND status = ?",
		status,
		executedAt,
		errorMessage,
		commandId,
		CommandStatusExecuting)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		//Raced with another ack, return whatever state won
		return actuators.Get(commandId)
	}

	cmd.Status = status
	cmd.ExecutedAt = &executedAt
	cmd.ErrorMessage = errorMessage

	return cmd, nil
}

//ApplyStates overwrites actuator on/off state directly, the
//lower-guarantee channel gateways use alongside sensor readings.
func (actuators *Actuators) ApplyStates(states []ActuatorState) error {
	for _, state := range states {
		if _, err := actuators.db.Exec(
			"UPDATE actuator_device SET is_on = ? WHERE actuator_id = ?",
			state.IsOn,
			state.ActuatorId); err != nil {
			return err
		}
	}

	return nil
}

func (actuators *Actuators) History(actuatorId uint64, limit int) ([]ControlCommand, error) {
	if limit == 0 {
		limit = 50
	}

	var cmds []ControlCommand
	err := actuators.db.Select(&cmds, `
		SELECT command_id, actuator_id, command, requested_by, status, created_at, executed_at, error_message
		FROM control_command
		WHERE actuator_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		actuatorId,
		limit)
	if err != nil {
		return nil, err
	}

	return cmds, nil
}
