// Package events publishes project lifecycle notifications to a message
// broker so downstream systems (reporting, audit, integrations) can
// react to catalog changes. Publishing is best-effort: the API never
// fails a request because the broker is down.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tcmhub/apiserver/config"
)

// Event types emitted by the project service.
const (
	ProjectCreated = "project.created"
	ProjectUpdated = "project.updated"
	ProjectDeleted = "project.deleted"
)

// ProjectEvent describes a single lifecycle change of a project.
type ProjectEvent struct {
	// Type is one of the ProjectCreated/Updated/Deleted constants.
	Type string `json:"type"`

	// ProjectID identifies the affected project.
	ProjectID uuid.UUID `json:"project_id"`

	// Name is the project name at the time of the event. Empty for
	// deletions.
	Name string `json:"name,omitempty"`

	// ActorID is the user that performed the change. Zero for changes
	// whose actor is not tracked, such as boundary-gated deletions.
	ActorID uuid.UUID `json:"actor_id"`

	// OccurredAt is the time the change committed.
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends project events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event ProjectEvent) error
	Close() error
}

// NewPublisher constructs the publisher selected by config, or nil when
// the backend is "none" (events disabled).
func NewPublisher(ctx context.Context, cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg.RabbitMQ, cfg.Topic)
	case "pubsub":
		return NewPubSubPublisher(ctx, cfg.PubSub, cfg.Topic)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
