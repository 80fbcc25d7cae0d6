package orders

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

const orderNumberPrefix = "FF-"

var orderNumberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newOrderNumber returns a short human-facing id such as FF-7KQ2M4XA. The
// unique index on order_number catches the rare collision.
func newOrderNumber() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return orderNumberPrefix + orderNumberEncoding.EncodeToString(buf), nil
}
