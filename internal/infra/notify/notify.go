// Package notify delivers requirement-state events to the chat front-end.
// Delivery is fire-and-forget from the engine's perspective: a failed
// delivery is retried on the next transition, never blocks one.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/boardcheck/internal/core/domain"
)

// Event describes a requirement state change worth telling the user about.
type Event struct {
	BoardID       string                  `json:"board_id"`
	Kind          domain.RequirementKind  `json:"kind"`
	NewState      domain.RequirementState `json:"new_state"`
	ObservedValue int                     `json:"observed_value"`
}

// Notifier is the delivery capability.
type Notifier interface {
	Notify(ctx context.Context, userID int64, event Event) error
}

// Config selects and configures the sink.
type Config struct {
	// Mode is "log", "webhook" or "grpc".
	Mode       string `yaml:"mode"`
	WebhookURL string `yaml:"webhook_url"`
	GRPCTarget string `yaml:"grpc_target"`
}

// New builds the configured sink, defaulting to the log sink.
func New(ctx context.Context, cfg Config) (Notifier, error) {
	switch cfg.Mode {
	case "", "log":
		return NewLogNotifier(), nil
	case "webhook":
		return NewWebhookNotifier(cfg.WebhookURL), nil
	case "grpc":
		return NewGRPCNotifier(ctx, cfg.GRPCTarget)
	}
	return nil, fmt.Errorf("unknown notifier mode %q", cfg.Mode)
}

// LogNotifier writes events to the log. Default sink for development.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.Default().With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, userID int64, event Event) error {
	n.log.Info("Notify",
		"user", userID,
		"board", event.BoardID,
		"kind", event.Kind,
		"state", event.NewState,
		"value", event.ObservedValue,
	)
	return nil
}
