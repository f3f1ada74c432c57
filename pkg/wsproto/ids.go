package wsproto

import "github.com/lithammer/shortuuid/v4"

// newSessionID generates a short, URL-safe correlation ID for a single
// connection attempt, attached to every log line a Session emits so a
// reconnecting client's log lines can be grouped per attempt. Mirrors
// tzrikka-timpani's use of github.com/lithammer/shortuuid/v4 elsewhere
// in the module (internal/thrippy, pkg/http/webhooks) for link/webhook
// IDs, here generating rather than just validating one.
func newSessionID() string {
	return shortuuid.New()
}
