// Package notifications forwards customer and vendor notifications to the
// messaging subsystem. Delivery (push, SMS, email) happens downstream.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
)

// Notification kinds carried in the "kind" message attribute.
const (
	KindOrderUpdate = "order_update"
	KindPush        = "push"
)

// Notifier is the notification collaborator.
type Notifier interface {
	SendOrderUpdate(ctx context.Context, userID, orderID uuid.UUID, status enums.OrderStatus, message string) error
	SendPushNotification(ctx context.Context, userID uuid.UUID, typ, title, body string, data map[string]string) error
}

// Message is the JSON body published to the notification topic.
type Message struct {
	Kind    string            `json:"kind"`
	UserID  uuid.UUID         `json:"user_id"`
	OrderID *uuid.UUID        `json:"order_id,omitempty"`
	Status  string            `json:"status,omitempty"`
	Type    string            `json:"type,omitempty"`
	Title   string            `json:"title,omitempty"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	SentAt  time.Time         `json:"sent_at"`
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubNotifier publishes notifications to the notification topic.
type PubSubNotifier struct {
	publisher publisher
	now       func() time.Time
}

// NewPubSubNotifier publishes through the notification topic publisher.
func NewPubSubNotifier(p *pubsub.Publisher) (*PubSubNotifier, error) {
	if p == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	return newNotifier(gcpPublisher{p}), nil
}

func newNotifier(p publisher) *PubSubNotifier {
	return &PubSubNotifier{publisher: p, now: time.Now}
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

func (n *PubSubNotifier) SendOrderUpdate(ctx context.Context, userID, orderID uuid.UUID, status enums.OrderStatus, message string) error {
	return n.publish(ctx, Message{
		Kind:    KindOrderUpdate,
		UserID:  userID,
		OrderID: &orderID,
		Status:  status.String(),
		Body:    message,
	})
}

func (n *PubSubNotifier) SendPushNotification(ctx context.Context, userID uuid.UUID, typ, title, body string, data map[string]string) error {
	return n.publish(ctx, Message{
		Kind:   KindPush,
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		Data:   data,
	})
}

func (n *PubSubNotifier) publish(ctx context.Context, msg Message) error {
	if msg.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification user id required")
	}
	msg.SentAt = n.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification")
	}
	result := n.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":    msg.Kind,
			"user_id": msg.UserID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish notification")
	}
	return nil
}
