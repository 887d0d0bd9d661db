package conflict

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tdsync/core/internal/store"
)

// Notifier fires an HMAC-signed webhook POST whenever a new conflict is
// recorded (SPEC_FULL.md §4's "needs attention" push), grounded on the
// teacher's internal/webhook/webhook.go Dispatch. Sent best-effort: a
// failed notification never fails the conflict recording it followed.
type Notifier struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
}

// NewNotifier builds a Notifier with a 10s timeout client, same as the
// teacher's webhook dispatcher.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{URL: url, Secret: secret, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

type notifyPayload struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
	DetectedAt string `json:"detected_at"`
}

// Notify POSTs a conflict-detected event to the configured URL. Errors are
// logged, not returned: a webhook outage must never block sync.
func (n *Notifier) Notify(c *store.Conflict) {
	if n == nil || n.URL == "" {
		return
	}
	body, err := json.Marshal(notifyPayload{
		EntityType: string(c.EntityType),
		EntityID:   c.EntityID,
		ReasonCode: c.ReasonCode,
		Message:    c.Message,
		DetectedAt: c.DetectedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("conflict notify: marshal payload", "conflict_id", c.ID, "err", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		slog.Warn("conflict notify: build request", "conflict_id", c.ID, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tdsync-conflict-webhook/1")

	if n.Secret != "" {
		unixTS := fmt.Sprintf("%d", time.Now().Unix())
		mac := hmac.New(sha256.New, []byte(n.Secret))
		mac.Write([]byte(unixTS))
		mac.Write([]byte("."))
		mac.Write(body)
		req.Header.Set("X-Tdsync-Timestamp", unixTS)
		req.Header.Set("X-Tdsync-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	client := n.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("conflict notify: post failed", "conflict_id", c.ID, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("conflict notify: non-2xx", "conflict_id", c.ID, "status", resp.StatusCode)
	}
}
