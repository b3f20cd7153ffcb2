package fleet

import (
	"fmt"

	"github.com/pkg/errors"
)

type Code string

const (
	CodeSuccess            Code = "SUCCESS"
	CodeDroneNotFound      Code = "DRONE_NOT_FOUND"
	CodeMedicationNotFound Code = "MEDICATION_NOT_FOUND"
	CodeBatteryTooLow      Code = "BATTERY_TOO_LOW"
	CodeMaxCountReached    Code = "MAX_COUNT_REACHED"
	CodeOverweight         Code = "OVERWEIGHT"
)

var (
	ErrDroneNotFound = errors.New("drone not found")
	ErrInvalidDrone  = errors.New("invalid drone")
)

// Result is the outcome of a load attempt. Rejections are results, not errors.
type Result struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (r Result) OK() bool {
	return r.Code == CodeSuccess
}

func result(code Code, format string, args ...any) Result {
	return Result{Code: code, Message: fmt.Sprintf(format, args...)}
}
