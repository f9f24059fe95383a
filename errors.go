package farmwatch

import (
	"errors"
)

var (
	ErrInvalidCommand   = errors.New("command must be one of ON, OFF, AUTO or MANUAL")
	ErrInvalidStatus    = errors.New("status must be executed or failed")
	ErrInvalidThreshold = errors.New("min_value must be lower than max_value")
	ErrCommandNotFound  = errors.New("unknown command id")
	ErrCommandPending   = errors.New("command has not been handed to a controller yet")
	ErrActuatorNotFound = errors.New("unknown actuator id")
)
