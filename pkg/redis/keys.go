package redis

import "strings"

const namespace = "ff"

func key(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(namespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// IdempotencyKey namespaces a replay or dedupe marker.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key("rate_limit", scope)
}

// WebhookKey scopes one terminal payment callback.
func (c *Client) WebhookKey(provider, externalRef, status string) string {
	return c.IdempotencyKey("webhook", strings.Join([]string{provider, externalRef, status}, ":"))
}

func (c *Client) LockKey(name string) string {
	return key("lock", name)
}
