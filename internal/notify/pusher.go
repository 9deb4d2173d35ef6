package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Event is the push notification phase for a ride activity.
type Event string

const (
	EventStart  Event = "start"
	EventUpdate Event = "update"
	EventEnd    Event = "end"
)

// Payload is the notification content handed to the push collaborator.
type Payload struct {
	ActivityID   string          `json:"activityId"`
	Event        Event           `json:"event"`
	ContentState json.RawMessage `json:"contentState,omitempty"`
	Attributes   json.RawMessage `json:"attributes,omitempty"`
}

// Pusher delivers a notification payload to the device identified by token.
// Delivery happens after the core state transition has committed; a failed
// delivery is reported to the caller but never rolls that transition back.
type Pusher interface {
	Push(ctx context.Context, token string, p Payload) error
}

// ErrSimulatedFailure is returned by SimulatedPusher when failure injection
// is enabled.
var ErrSimulatedFailure = errors.New("simulated push delivery failure")

// SimulatedPusher logs each delivery instead of contacting a push gateway.
// Each delivery gets a unique id, mirroring the apns-id a real gateway would
// assign.
type SimulatedPusher struct {
	log *slog.Logger

	// FailDelivery makes every Push return ErrSimulatedFailure, for
	// exercising the delivery-failure path end to end.
	FailDelivery bool
}

// NewSimulatedPusher returns a SimulatedPusher logging through log.
func NewSimulatedPusher(log *slog.Logger) *SimulatedPusher {
	return &SimulatedPusher{log: log}
}

// Push implements Pusher.
func (s *SimulatedPusher) Push(ctx context.Context, token string, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailDelivery {
		return ErrSimulatedFailure
	}

	s.log.Info("push delivered (simulated)",
		slog.String("delivery_id", uuid.NewString()),
		slog.String("activity_id", p.ActivityID),
		slog.String("event", string(p.Event)),
		slog.String("token_prefix", token[:8]),
	)
	return nil
}
