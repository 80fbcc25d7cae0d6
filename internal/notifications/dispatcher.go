package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forkfleet/forkfleet-backend/pkg/enums"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

// Dispatcher is the best-effort front for a Notifier: failures are logged and
// never returned, so they cannot roll back the state change being announced.
type Dispatcher struct {
	notifier Notifier
	logg     *logger.Logger
}

// NewDispatcher tolerates a nil notifier; every send is then a no-op.
func NewDispatcher(notifier Notifier, logg *logger.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logg: logg}
}

// OrderUpdate sends the order status to one user.
func (d *Dispatcher) OrderUpdate(ctx context.Context, userID, orderID uuid.UUID, status enums.OrderStatus, message string) {
	if d == nil || d.notifier == nil || userID == uuid.Nil {
		return
	}
	if err := d.notifier.SendOrderUpdate(ctx, userID, orderID, status, message); err != nil {
		d.warn(ctx, orderID, "order update", err)
	}
}

// Push sends a push notification to one user.
func (d *Dispatcher) Push(ctx context.Context, userID, orderID uuid.UUID, typ, title, body string) {
	if d == nil || d.notifier == nil || userID == uuid.Nil {
		return
	}
	data := map[string]string{"order_id": orderID.String()}
	if err := d.notifier.SendPushNotification(ctx, userID, typ, title, body, data); err != nil {
		d.warn(ctx, orderID, "push", err)
	}
}

func (d *Dispatcher) warn(ctx context.Context, orderID uuid.UUID, what string, err error) {
	if d.logg == nil {
		return
	}
	logCtx := d.logg.WithOrderID(ctx, orderID.String())
	logCtx = d.logg.WithField(logCtx, "error", err.Error())
	d.logg.Warn(logCtx, fmt.Sprintf("notification %s failed", what))
}
