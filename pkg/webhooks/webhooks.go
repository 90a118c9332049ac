package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/events"
	"github.com/platinummonkey/conflictmapper/pkg/observability"
)

// Request headers set on every delivery
const (
	HeaderEvent     = "X-Conflictmap-Event"
	HeaderEventID   = "X-Conflictmap-Event-ID"
	HeaderDelivery  = "X-Conflictmap-Delivery"
	HeaderAttempt   = "X-Conflictmap-Attempt"
	HeaderSignature = "X-Conflictmap-Signature"
)

// handlerName identifies the notifier in the event manager
const handlerName = "webhooks"

// DefaultEvents are delivered to a webhook that names none
var DefaultEvents = []string{
	events.EventCriticalConflicts,
	events.EventScanFailed,
}

// Event is the JSON body posted to a webhook
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Webhook is one configured notification endpoint
type Webhook struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Validate checks the URL and event names
func (w Webhook) Validate() error {
	if w.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL %q: %w", w.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid webhook URL %q: must be an absolute http or https URL", w.URL)
	}

	for _, event := range w.Events {
		if !knownEvent(event) {
			return fmt.Errorf("webhook %s: unknown event %q", w.label(), event)
		}
	}
	return nil
}

// Subscribed returns the events delivered to w
func (w Webhook) Subscribed() []string {
	if len(w.Events) == 0 {
		return DefaultEvents
	}
	return w.Events
}

func (w Webhook) wants(event string) bool {
	for _, e := range w.Subscribed() {
		if e == event {
			return true
		}
	}
	return false
}

func (w Webhook) label() string {
	if w.Name != "" {
		return w.Name
	}
	return w.URL
}

func knownEvent(name string) bool {
	for _, e := range events.AllEvents {
		if e == name {
			return true
		}
	}
	return false
}

// DeliveryStats summarizes the deliveries made to one webhook
type DeliveryStats struct {
	Webhook     string    `json:"webhook"`
	Delivered   int       `json:"delivered"`
	Failed      int       `json:"failed"`
	Attempts    int       `json:"attempts"`
	LastStatus  int       `json:"last_status,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
}

// Options configures a Notifier
type Options struct {
	Client *http.Client
	Retry  RetryConfig

	// Timeout bounds one delivery including its retries
	Timeout time.Duration

	Metrics *observability.Metrics
	Log     *logrus.Logger
}

// Notifier posts pipeline events to webhooks. Deliveries run in the
// background; Close waits for the ones in flight.
type Notifier struct {
	hooks   []Webhook
	client  *http.Client
	retry   *RetryPolicy
	timeout time.Duration
	metrics *observability.Metrics
	log     *logrus.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	stats  map[string]*DeliveryStats
}

// NewNotifier validates hooks and creates a notifier for them
func NewNotifier(hooks []Webhook, opts Options) (*Notifier, error) {
	for _, h := range hooks {
		if err := h.Validate(); err != nil {
			return nil, err
		}
	}

	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &Notifier{
		hooks:   append([]Webhook(nil), hooks...),
		client:  opts.Client,
		retry:   NewRetryPolicy(opts.Retry),
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		log:     opts.Log,
		stats:   make(map[string]*DeliveryStats),
	}, nil
}

// Events returns the sorted union of events any webhook subscribes to
func (n *Notifier) Events() []string {
	seen := make(map[string]bool)
	for _, h := range n.hooks {
		for _, e := range h.Subscribed() {
			seen[e] = true
		}
	}
	names := make([]string, 0, len(seen))
	for e := range seen {
		names = append(names, e)
	}
	sort.Strings(names)
	return names
}

// Subscribe registers the notifier with m for every subscribed event
func (n *Notifier) Subscribe(m *events.Manager) {
	for _, event := range n.Events() {
		m.On(event, handlerName, func(ctx context.Context, p events.Payload) error {
			n.Dispatch(ctx, p.Event, p.Data)
			return nil
		})
	}
}

// Dispatch queues event for every webhook subscribed to it and returns the
// event ID, or "" when nothing was queued. Deliveries outlive ctx's
// cancellation but keep its values.
func (n *Notifier) Dispatch(ctx context.Context, eventType string, data map[string]any) string {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.log.WithError(err).WithField("event", eventType).Error("Failed to encode webhook event")
		return ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ""
	}

	queued := 0
	for _, hook := range n.hooks {
		if !hook.wants(eventType) {
			continue
		}
		queued++
		n.wg.Add(1)
		go func(hook Webhook) {
			defer n.wg.Done()
			defer observability.RecoverPanic(n.log, "webhook delivery")

			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
			defer cancel()
			_ = n.Deliver(dctx, hook, event, payload)
		}(hook)
	}

	if queued == 0 {
		return ""
	}
	return event.ID
}

// Deliver posts payload to hook, retrying per the policy, and records the
// outcome.
func (n *Notifier) Deliver(ctx context.Context, hook Webhook, event *Event, payload []byte) error {
	deliveryID := uuid.New().String()
	logger := n.log.WithFields(logrus.Fields{
		"webhook":  hook.label(),
		"event":    event.Type,
		"event_id": event.ID,
		"delivery": deliveryID,
	})

	var (
		status int
		err    error
	)
	attempt := 0
	for {
		attempt++
		status, err = n.send(ctx, hook, event, payload, deliveryID, attempt)
		if !n.retry.ShouldRetry(attempt, err) {
			break
		}

		delay := n.retry.NextRetryDelay(attempt)
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   delay.String(),
		}).Warn("Webhook delivery failed, retrying")

		if werr := sleepContext(ctx, delay); werr != nil {
			err = fmt.Errorf("%w (gave up: %v)", err, werr)
			break
		}
	}

	n.record(hook, status, attempt, err)
	n.metrics.RecordWebhookDelivery(event.Type, err)

	if err != nil {
		logger.WithError(err).WithField("attempts", attempt).Error("Webhook delivery failed")
		return err
	}
	logger.WithField("attempts", attempt).Debug("Webhook delivered")
	return nil
}

// send makes one delivery attempt and returns the response status
func (n *Notifier) send(ctx context.Context, hook Webhook, event *Event, payload []byte, deliveryID string, attempt int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, &PermanentError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderAttempt, strconv.Itoa(attempt))
	if hook.Secret != "" {
		req.Header.Set(HeaderSignature, generateSignature(payload, hook.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resp.StatusCode, &PermanentError{Err: fmt.Errorf("webhook rejected delivery with status %d", resp.StatusCode)}
	default:
		return resp.StatusCode, fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
}

func (n *Notifier) record(hook Webhook, status, attempts int, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := hook.label()
	s, ok := n.stats[key]
	if !ok {
		s = &DeliveryStats{Webhook: key}
		n.stats[key] = s
	}
	s.Attempts += attempts
	s.LastStatus = status
	s.LastAttempt = time.Now().UTC()
	if err != nil {
		s.Failed++
		s.LastError = err.Error()
	} else {
		s.Delivered++
		s.LastError = ""
	}
}

// Stats returns per-webhook delivery counters sorted by webhook
func (n *Notifier) Stats() []DeliveryStats {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]DeliveryStats, 0, len(n.stats))
	for _, s := range n.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Webhook < out[j].Webhook })
	return out
}

// Wait blocks until every queued delivery has finished
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close stops accepting events and waits for deliveries in flight
func (n *Notifier) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

// VerifySignature verifies the webhook signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
