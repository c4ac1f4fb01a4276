package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/resilience"
)

// Doer sends a request with the caller's retry policy.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// WebhookNotifier forwards domain events to the invoice delivery service as
// signed JSON POSTs.
type WebhookNotifier struct {
	URL    string
	Secret string
	HTTP   Doer
	// Topics restricts forwarding. Empty forwards every topic.
	Topics []string
	Now    func() time.Time
}

type envelope struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Notify implements events.Notifier. A disabled notifier (no URL) is a no-op.
func (n *WebhookNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n == nil || n.URL == "" {
		return nil
	}
	if len(n.Topics) > 0 && !slices.Contains(n.Topics, ev.Topic) {
		return nil
	}
	if n.HTTP == nil {
		return errors.New("notify: http client not configured")
	}
	ctx, span := otel.Tracer("notify.WebhookNotifier").Start(ctx, "WebhookNotifier.Notify")
	defer span.End()
	span.SetAttributes(attribute.String("event.topic", ev.Topic), attribute.String("event.id", ev.ID.String()))

	status, err := n.deliver(ctx, ev)
	if err != nil {
		obs.CountDelivery("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	obs.CountDelivery("delivered")
	return nil
}

func (n *WebhookNotifier) deliver(ctx context.Context, ev events.Event) (int, error) {
	if err := ValidateURL(n.URL); err != nil {
		return 0, err
	}
	data := ev.Payload
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	body, err := json.Marshal(envelope{
		EventID:     ev.ID.String(),
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Data:        data,
		OccurredAt:  ev.OccurredAt,
	})
	if err != nil {
		return 0, fmt.Errorf("notify: encode event: %w", err)
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	ts := now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "detailing-invoice-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID.String())
	req.Header.Set("X-Event-Topic", ev.Topic)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", ev.ID.String())
	req.Header.Set("X-Signature", ComputeSignature(n.Secret, ts, ev.ID.String(), body))

	resp, err := n.HTTP.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("notify: deliver %s: %w", ev.Topic, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &resilience.StatusError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// ValidateURL accepts https URLs, and plain http only for loopback hosts.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return errors.New("http webhook only allowed for localhost")
	default:
		return errors.New("webhook url must be http or https")
	}
}

// ComputeSignature is the hex HMAC-SHA256 of "<ts>.<eventID>.<body>" keyed by secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
