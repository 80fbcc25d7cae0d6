package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/forkfleet/forkfleet-backend/internal/analytics/types"
	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
	"github.com/forkfleet/forkfleet-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router := newTestRouter(t, &fakeWriter{}, nil)
	env := types.Envelope{
		EventType: enums.OutboxEventType("unsupported"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterRejectsEmptyAndMalformedPayload(t *testing.T) {
	router := newTestRouter(t, &fakeWriter{}, nil)
	err := router.Handle(context.Background(), types.Envelope{EventType: enums.EventOrderCreated})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty payload, got %v", err)
	}
	err = router.Handle(context.Background(), types.Envelope{EventType: enums.EventOrderCreated, Payload: []byte(`{"order_id":`)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for malformed payload, got %v", err)
	}
}

func TestRouterRoutesToOverride(t *testing.T) {
	handler := &stubHandler{}
	router := newTestRouter(t, &fakeWriter{}, map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated: handler,
	})
	data, _ := json.Marshal(payloads.OrderCreatedEvent{OrderID: uuid.New()})
	env := types.Envelope{
		EventType: enums.EventOrderCreated,
		Payload:   data,
	}
	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handler.called {
		t.Fatalf("handler not invoked")
	}
	if _, ok := handler.payload.(*payloads.OrderCreatedEvent); !ok {
		t.Fatalf("expected decoded order_created payload, got %T", handler.payload)
	}
}

func TestNewRouterValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "router-test"})
	if _, err := NewRouter(nil, logg, nil); err == nil {
		t.Fatal("expected writer required")
	}
	if _, err := NewRouter(&fakeWriter{}, nil, nil); err == nil {
		t.Fatal("expected logger required")
	}
}

func newTestRouter(t *testing.T, writer Writer, overrides map[enums.OutboxEventType]Handler) *Router {
	t.Helper()
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test"}), overrides)
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router
}

type stubHandler struct {
	called  bool
	payload any
}

func (s *stubHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	s.called = true
	s.payload = payload
	return nil
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: fixedTime,
		Payload:    data,
	}
}

func TestRouterRejectsUnknownPayloadVersion(t *testing.T) {
	handler := &stubHandler{}
	router := newTestRouter(t, &fakeWriter{}, map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated: handler,
	})
	data, _ := json.Marshal(payloads.OrderCreatedEvent{OrderID: uuid.New()})
	err := router.Handle(context.Background(), types.Envelope{
		EventType: enums.EventOrderCreated,
		Version:   7,
		Payload:   data,
	})
	if err == nil {
		t.Fatal("expected error for unregistered version")
	}
	if handler.called {
		t.Fatal("handler should not run for unknown versions")
	}
}
