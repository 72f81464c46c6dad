// Package di assembles the application with google/wire. The generated
// initializer lives in wire_gen.go; regenerate it with `wire ./...` after
// changing the provider set.
package di

import (
	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/application/propagation"
	"cardvault/application/services"
	"cardvault/infrastructure/config"
	"cardvault/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	CardRepo    ports.CardRepository
	Outbox      ports.Outbox
	Publisher   ports.ChangePublisher
	Presigner   ports.UploadPresigner
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
	CardService *services.CardService
	Processor   *propagation.Processor
	Sweeper     *propagation.Sweeper
}
