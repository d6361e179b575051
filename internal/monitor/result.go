package monitor

import (
	"context"
	"errors"

	"vnsensor/internal/command"
	"vnsensor/internal/vnerr"
)

func commandResult(err error) string {
	var de *command.DeviceError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &de):
		return "rejected"
	case errors.Is(err, vnerr.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, vnerr.ErrDisconnected):
		return "disconnected"
	}
	return "error"
}
