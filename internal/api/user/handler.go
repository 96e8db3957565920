package user

import (
	"github.com/ZJUSCT/CSArena/internal/config"
	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
)

// Handler holds all dependencies for the user API handlers.
type Handler struct {
	cfg    *config.Config
	svc    *contest.Service
	broker *pubsub.Broker
}

// NewHandler creates a new user handler with its dependencies.
func NewHandler(cfg *config.Config, svc *contest.Service, broker *pubsub.Broker) *Handler {
	return &Handler{
		cfg:    cfg,
		svc:    svc,
		broker: broker,
	}
}
