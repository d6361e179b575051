package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vnsensor/internal/vnerr"
)

// ErrorCode is the code carried by a "$VNERR,<hex>" message.
type ErrorCode uint16

const (
	HardFault            ErrorCode = 1
	SerialBufferOverflow ErrorCode = 2
	InvalidChecksum      ErrorCode = 3
	InvalidCommand       ErrorCode = 4
	NotEnoughParameters  ErrorCode = 5
	TooManyParameters    ErrorCode = 6
	InvalidParameter     ErrorCode = 7
	InvalidRegister      ErrorCode = 8
	UnauthorizedAccess   ErrorCode = 9
	WatchdogReset        ErrorCode = 10
	OutputBufferOverflow ErrorCode = 11
	InsufficientBaudRate ErrorCode = 12
	ErrorBufferOverflow  ErrorCode = 255

	// ReceivedUnexpectedMessage is raised on the host for a command
	// response that matches nothing pending.
	ReceivedUnexpectedMessage ErrorCode = 0x100
)

var errorNames = map[ErrorCode]string{
	HardFault:                 "HardFault",
	SerialBufferOverflow:      "SerialBufferOverflow",
	InvalidChecksum:           "InvalidChecksum",
	InvalidCommand:            "InvalidCommand",
	NotEnoughParameters:       "NotEnoughParameters",
	TooManyParameters:         "TooManyParameters",
	InvalidParameter:          "InvalidParameter",
	InvalidRegister:           "InvalidRegister",
	UnauthorizedAccess:        "UnauthorizedAccess",
	WatchdogReset:             "WatchdogReset",
	OutputBufferOverflow:      "OutputBufferOverflow",
	InsufficientBaudRate:      "InsufficientBaudRate",
	ErrorBufferOverflow:       "ErrorBufferOverflow",
	ReceivedUnexpectedMessage: "ReceivedUnexpectedMessage",
}

func (c ErrorCode) String() string {
	if n, ok := errorNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ErrorCode(%d)", uint16(c))
}

// parseErrorBody reads the code of a "VNERR,<hex>" body.
func parseErrorBody(body string) (ErrorCode, bool) {
	rest, ok := strings.CutPrefix(body, "VNERR,")
	if !ok {
		return 0, false
	}
	rest, _, _ = strings.Cut(rest, ",")
	v, err := strconv.ParseUint(strings.TrimSpace(rest), 16, 16)
	if err != nil {
		return 0, false
	}
	return ErrorCode(v), true
}

// DeviceError is the device refusing a command.
type DeviceError struct {
	Code    ErrorCode
	Command string
}

func (e *DeviceError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("device error %s (%d)", e.Code, uint16(e.Code))
	}
	return fmt.Sprintf("%s: device error %s (%d)", e.Command, e.Code, uint16(e.Code))
}

func (e *DeviceError) Unwrap() error { return vnerr.ErrDeviceRejected }

// AsyncError is a device error or unexpected response that arrived with
// no command waiting for it.
type AsyncError struct {
	Code     ErrorCode
	Message  string
	Received time.Time
}

func (e AsyncError) Error() string {
	return fmt.Sprintf("async %s: %s", e.Code, e.Message)
}
