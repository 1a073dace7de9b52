package app

import (
	"expvar"

	"go.opentelemetry.io/otel"
)

var (
	webhookOutcomes = expvar.NewMap("webhook_outcomes")
	sweptTotal      = expvar.NewInt("sweeper_released_total")
	sweepErrors     = expvar.NewInt("sweeper_errors_total")
)

var tracer = otel.Tracer("github.com/EderamorimTH/rifa-miguel/internal/app")
