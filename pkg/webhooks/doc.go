// Package webhooks posts pipeline events to HTTP endpoints.
//
// A Notifier subscribes to an events.Manager and, for each event a webhook
// names (critical_conflicts and scan_failed by default), POSTs a JSON Event
// in the background. Requests carry the event type, event ID, delivery ID
// and attempt number in X-Conflictmap-* headers. When the webhook has a
// secret the body is signed:
//
//	X-Conflictmap-Signature: sha256=<hex HMAC-SHA256 of the body>
//
// Receivers check it with VerifySignature. Network errors, 5xx, 408 and
// 429 responses are retried with exponential backoff; other 4xx responses
// are not.
package webhooks
