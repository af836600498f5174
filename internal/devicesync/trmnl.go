package devicesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNoTarget is returned when the owner has no usable sync target
// configured. Callers treat it as "nothing to sync", not a failure.
var ErrNoTarget = errors.New("devicesync: no sync target configured")

// Notifier pushes a generated image to the owner's downstream device.
type Notifier interface {
	Notify(ctx context.Context, imageURL, caption, ownerID string) error
}

// TargetResolver looks up the owner's device webhook URL. An empty URL
// with a nil error means the owner has no device paired.
type TargetResolver interface {
	Target(ctx context.Context, ownerID string) (string, error)
}

// TRMNLNotifier delivers images to TRMNL e-ink devices through their
// custom-plugin webhook. The device polls its plugin state on its own
// refresh cycle; rapid successive posts overwrite each other, which is
// why callers stagger deliveries.
type TRMNLNotifier struct {
	resolve TargetResolver
	client  *http.Client
}

// NewTRMNLNotifier creates a notifier that resolves per-owner webhooks.
func NewTRMNLNotifier(resolve TargetResolver, client *http.Client) *TRMNLNotifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TRMNLNotifier{resolve: resolve, client: client}
}

type trmnlPayload struct {
	MergeVariables struct {
		ImageURL string `json:"image_url"`
		Caption  string `json:"caption"`
	} `json:"merge_variables"`
}

// Notify posts the image URL and caption to the owner's device webhook.
func (n *TRMNLNotifier) Notify(ctx context.Context, imageURL, caption, ownerID string) error {
	target, err := n.resolve.Target(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("devicesync: resolve target: %w", err)
	}
	if strings.TrimSpace(target) == "" {
		return ErrNoTarget
	}
	if err := validateTarget(target); err != nil {
		return err
	}

	var payload trmnlPayload
	payload.MergeVariables.ImageURL = imageURL
	payload.MergeVariables.Caption = caption
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("devicesync: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return fmt.Errorf("devicesync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("devicesync: post webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("devicesync: webhook status %d", resp.StatusCode)
	}
	return nil
}

// validateTarget blocks non-HTTP schemes before a stored URL is dialed.
func validateTarget(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("devicesync: invalid target url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("devicesync: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return errors.New("devicesync: target url has no host")
	}
	return nil
}

const maxCaptionLen = 80

// Caption renders a device caption from the prompt: title-cased and
// truncated to what an e-ink header can display.
func Caption(prompt string) string {
	c := cases.Title(language.Und)
	caption := c.String(strings.TrimSpace(prompt))
	if len(caption) > maxCaptionLen {
		cut := strings.LastIndex(caption[:maxCaptionLen], " ")
		if cut <= 0 {
			// No word boundary; back up to a rune boundary so the
			// cut never splits a multi-byte character.
			cut = maxCaptionLen
			for cut > 0 && !utf8.RuneStart(caption[cut]) {
				cut--
			}
		}
		caption = caption[:cut] + "…"
	}
	return caption
}

var _ Notifier = (*TRMNLNotifier)(nil)
