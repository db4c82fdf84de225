package query

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/restaurant-backoffice/internal/resource"
)

// Op names a mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Notifier surfaces the outcome of mutations to the user.
type Notifier interface {
	Success(resource string, op Op, id string)
	Error(resource string, op Op, err error)
}

// LogNotifier reports outcomes as log events. A nil Logger means the global
// logger.
type LogNotifier struct {
	Logger *zerolog.Logger
}

func (n LogNotifier) logger() *zerolog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return &log.Logger
}

func (n LogNotifier) Success(res string, op Op, id string) {
	n.logger().Info().Str("resource", res).Str("op", string(op)).Str("id", id).Msg("saved")
}

func (n LogNotifier) Error(res string, op Op, err error) {
	ev := n.logger().Warn().Err(err).Str("resource", res).Str("op", string(op))
	if k := resource.KindOf(err); k != 0 {
		ev = ev.Str("kind", k.String())
	}
	if fields := resource.FieldErrors(err); len(fields) > 0 {
		ev = ev.Interface("fields", fields)
	}
	ev.Msg("save failed")
}
