package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONColumn(t *testing.T) {
	col, err := JSONColumn(map[string]any{"orderId": "o-1"})
	require.NoError(t, err)
	assert.True(t, col.Valid)
	assert.JSONEq(t, `{"orderId":"o-1"}`, col.JSONVal)

	col, err = JSONColumn(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, col.JSONVal)

	for _, empty := range []any{nil, json.RawMessage(nil), []byte{}, json.RawMessage(`null`)} {
		col, err = JSONColumn(empty)
		require.NoError(t, err)
		assert.False(t, col.Valid)
	}

	_, err = JSONColumn(make(chan int))
	assert.Error(t, err)
}

func TestSchemaCoversEveryColumn(t *testing.T) {
	names := map[string]bool{}
	for _, f := range OrderEventSchema {
		names[f.Name] = true
	}
	for _, col := range []string{"event_id", "event_type", "occurred_at", "order_id", "refund_cents", "payload"} {
		assert.True(t, names[col], col)
	}
	row := &OrderEventRow{EventID: "evt-9"}
	assert.NotNil(t, row.Saver())
}
