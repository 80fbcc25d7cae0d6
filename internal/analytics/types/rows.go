package types

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventRow mirrors the order_events BigQuery schema. One row is written
// per lifecycle event; columns that do not apply to an event stay NULL.
type OrderEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	OrderID          *string            `bigquery:"order_id"`
	CustomerID       *string            `bigquery:"customer_id"`
	VendorID         *string            `bigquery:"vendor_id"`
	OrderType        *string            `bigquery:"order_type"`
	PaymentMethod    *string            `bigquery:"payment_method"`
	FromStatus       *string            `bigquery:"from_status"`
	ToStatus         *string            `bigquery:"to_status"`
	PaymentStatus    *string            `bigquery:"payment_status"`
	Actor            *string            `bigquery:"actor"`
	Provider         *string            `bigquery:"provider"`
	Currency         *string            `bigquery:"currency"`
	SubtotalCents    *int64             `bigquery:"subtotal_cents"`
	DeliveryFeeCents *int64             `bigquery:"delivery_fee_cents"`
	TotalCents       *int64             `bigquery:"total_cents"`
	VendorShareCents *int64             `bigquery:"vendor_share_cents"`
	RefundCents      *int64             `bigquery:"refund_cents"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}

// OrderEventSchema is the table layout OrderEventRow is written into.
var OrderEventSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "order_id", Type: cbigquery.StringFieldType},
	{Name: "customer_id", Type: cbigquery.StringFieldType},
	{Name: "vendor_id", Type: cbigquery.StringFieldType},
	{Name: "order_type", Type: cbigquery.StringFieldType},
	{Name: "payment_method", Type: cbigquery.StringFieldType},
	{Name: "from_status", Type: cbigquery.StringFieldType},
	{Name: "to_status", Type: cbigquery.StringFieldType},
	{Name: "payment_status", Type: cbigquery.StringFieldType},
	{Name: "actor", Type: cbigquery.StringFieldType},
	{Name: "provider", Type: cbigquery.StringFieldType},
	{Name: "currency", Type: cbigquery.StringFieldType},
	{Name: "subtotal_cents", Type: cbigquery.IntegerFieldType},
	{Name: "delivery_fee_cents", Type: cbigquery.IntegerFieldType},
	{Name: "total_cents", Type: cbigquery.IntegerFieldType},
	{Name: "vendor_share_cents", Type: cbigquery.IntegerFieldType},
	{Name: "refund_cents", Type: cbigquery.IntegerFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

// Saver keys the streaming insert on the event id so a retried batch does not
// double count.
func (r *OrderEventRow) Saver() cbigquery.ValueSaver {
	return &cbigquery.StructSaver{Schema: OrderEventSchema, InsertID: r.EventID, Struct: r}
}

// JSONColumn renders payload for a JSON column. nil and empty input give NULL.
func JSONColumn(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json column: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 || string(raw) == "null" {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
