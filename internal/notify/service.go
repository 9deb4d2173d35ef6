package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrDuplicateActivity is returned when a start is attempted for an
	// activity id already tracked as live.
	ErrDuplicateActivity = errors.New("activity already started")

	// ErrInvalidToken is returned when the push token fails the format check.
	ErrInvalidToken = errors.New("push token must be 32-200 hexadecimal characters")

	// ErrInvalidPayload is returned when a content-state or attributes blob
	// is not a JSON object.
	ErrInvalidPayload = errors.New("content state and attributes must be JSON objects")
)

// Result reports the outcome of a notification operation. Delivered is false
// when the push collaborator failed; the ride state transition is already
// committed at that point, so the failure is data, not an error.
type Result struct {
	Delivered     bool
	DeliveryError error
}

// Service orchestrates ride notifications: it enforces at-most-once start
// semantics through the Deduper and relays payloads to the Pusher.
type Service struct {
	deduper *Deduper
	pusher  Pusher
}

// NewService returns a Service over the given deduper and pusher.
func NewService(deduper *Deduper, pusher Pusher) *Service {
	return &Service{deduper: deduper, pusher: pusher}
}

// StartRide begins push tracking for an activity. ErrDuplicateActivity if the
// activity is already live; the duplicate check commits before delivery and
// is not rolled back on delivery failure.
func (s *Service) StartRide(ctx context.Context, activityID, token string, contentState, attributes json.RawMessage) (Result, error) {
	if !ValidToken(token) {
		return Result{}, ErrInvalidToken
	}
	if !validBlob(contentState, false) || !validBlob(attributes, true) {
		return Result{}, ErrInvalidPayload
	}

	if !s.deduper.TryStart(activityID) {
		return Result{}, ErrDuplicateActivity
	}

	return s.deliver(ctx, token, Payload{
		ActivityID:   activityID,
		Event:        EventStart,
		ContentState: contentState,
		Attributes:   attributes,
	}), nil
}

// UpdateRide relays an updated content state for a live activity. Updates do
// not consult the deduper; a client may update an activity this process never
// saw start.
func (s *Service) UpdateRide(ctx context.Context, activityID, token string, contentState json.RawMessage) (Result, error) {
	if !ValidToken(token) {
		return Result{}, ErrInvalidToken
	}
	if !validBlob(contentState, false) {
		return Result{}, ErrInvalidPayload
	}

	return s.deliver(ctx, token, Payload{
		ActivityID:   activityID,
		Event:        EventUpdate,
		ContentState: contentState,
	}), nil
}

// EndRide stops push tracking for an activity and relays the optional final
// content state. Ending an unknown activity is a no-op on the deduper.
func (s *Service) EndRide(ctx context.Context, activityID, token string, finalState json.RawMessage) (Result, error) {
	if !ValidToken(token) {
		return Result{}, ErrInvalidToken
	}
	if !validBlob(finalState, true) {
		return Result{}, ErrInvalidPayload
	}

	s.deduper.End(activityID)

	return s.deliver(ctx, token, Payload{
		ActivityID:   activityID,
		Event:        EventEnd,
		ContentState: finalState,
	}), nil
}

func (s *Service) deliver(ctx context.Context, token string, p Payload) Result {
	if err := s.pusher.Push(ctx, token, p); err != nil {
		return Result{Delivered: false, DeliveryError: err}
	}
	return Result{Delivered: true}
}

// validBlob checks that raw is a JSON object. optional allows the blob to be
// absent entirely. A literal null is not an object, even though it unmarshals
// into a map without error.
func validBlob(raw json.RawMessage, optional bool) bool {
	if len(raw) == 0 {
		return optional
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(trimmed, &obj) == nil
}
