package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFor returns the request logger carried by ctx, or the global logger
// tagged with component for background work.
func loggerFor(ctx context.Context, component string) *zerolog.Logger {
	var l zerolog.Logger
	if lg := zerolog.Ctx(ctx); lg != nil && lg.GetLevel() != zerolog.Disabled {
		l = lg.With().Str("component", component).Logger()
	} else {
		l = log.With().Str("component", component).Logger()
	}
	return &l
}
