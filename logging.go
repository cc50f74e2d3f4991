package fyreflow

import (
	"context"
	"log/slog"
)

// discardLogger is the package-wide default: logging is opt-in via
// WithLogger on the Engine; until configured nothing is emitted.
var discardLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func nopLogger() *slog.Logger { return discardLogger }
