// Package telegram pushes report digests and critical alerts to a Telegram
// chat.
//
// This package handles:
//   - Sending the insight digest, with the PNG summary attached, after a
//     refresh cycle whose insights changed
//   - Sending a critical alert when refreshes keep failing
//
// A nil *Client is valid and sends nothing, so callers need no
// configuration checks.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"cmonreports/internal/api"
	"cmonreports/internal/logging"
	"cmonreports/internal/refresh"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Telegram Bot API root.
const DefaultBaseURL = "https://api.telegram.org"

// maxCaptionLen is Telegram's limit for photo captions.
const maxCaptionLen = 1024

// Client represents a Telegram bot client.
//
// Fields:
//   - BotToken: Telegram bot API token
//   - ChatID: Target chat ID for notifications
//   - DebugMode: If true, log instead of calling the API
//   - BaseURL: API root, overridable for tests
type Client struct {
	BotToken  string
	ChatID    string
	DebugMode bool
	BaseURL   string

	http *http.Client
	log  zerolog.Logger

	mu         sync.Mutex
	lastDigest string // Insight text of the last digest sent
}

// Message represents a Telegram message for sending.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiResponse is the envelope of every Bot API response.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// NewClient creates a Telegram client.
//
// Returns:
//   - *Client: Configured client, or nil if token or chat ID is empty
func NewClient(botToken, chatID string, debugMode bool) *Client {
	log := logging.Component("telegram")

	if botToken == "" || chatID == "" {
		log.Info().Msg("⚠️  TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set. Telegram notifications disabled.")
		return nil
	}

	log.Info().Msg("✓ Telegram configured successfully")
	if debugMode {
		log.Info().Msg("🐛 DEBUG MODE ENABLED - API calls will be simulated")
	}

	return &Client{
		BotToken:  botToken,
		ChatID:    chatID,
		DebugMode: debugMode,
		BaseURL:   DefaultBaseURL,
		http:      api.GetHTTPClient(),
		log:       log,
	}
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.BaseURL, "/"), c.BotToken, method)
}

// doRequest sends a JSON payload to a Bot API method.
func (c *Client) doRequest(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.post(ctx, method, "application/json", bytes.NewReader(body))
}

// post sends a prepared body and checks the API envelope.
func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result apiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		return fmt.Errorf("Telegram API error (HTTP %d): %s", resp.StatusCode, result.Description)
	}
	return nil
}

// sendPhoto uploads a PNG with an HTML caption.
func (c *Client) sendPhoto(ctx context.Context, png []byte, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"chat_id":    c.ChatID,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("photo", "summary.png")
	if err != nil {
		return fmt.Errorf("failed to create photo part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	return c.post(ctx, "sendPhoto", mw.FormDataContentType(), &buf)
}

// SendDigest sends the snapshot's insights, with png attached when given.
//
// The digest is skipped when its text equals the last one sent, so a quiet
// service does not post the same digest every refresh interval.
//
// Returns:
//   - bool: Whether a digest was sent
//   - error: Send error
func (c *Client) SendDigest(ctx context.Context, snap refresh.Snapshot, png []byte) (bool, error) {
	if c == nil {
		return false, nil
	}

	text := FormatDigest(snap)

	c.mu.Lock()
	if text == c.lastDigest {
		c.mu.Unlock()
		c.log.Debug().Msg("Digest unchanged, skipping")
		return false, nil
	}
	c.mu.Unlock()

	if c.DebugMode {
		c.log.Info().Str("digest", text).Int("png_bytes", len(png)).Msg("🐛 DEBUG MODE: Skipping digest send")
	} else {
		c.log.Info().Msg("   📨 Sending digest to Telegram...")

		var err error
		if len(png) > 0 && len(text) <= maxCaptionLen {
			err = c.sendPhoto(ctx, png, text)
		} else {
			if len(png) > 0 {
				if err = c.sendPhoto(ctx, png, ""); err != nil {
					return false, fmt.Errorf("failed to send Telegram digest: %w", err)
				}
			}
			err = c.doRequest(ctx, "sendMessage", Message{
				ChatID: c.ChatID, Text: text, ParseMode: "HTML", DisableWebPagePreview: true,
			})
		}
		if err != nil {
			return false, fmt.Errorf("failed to send Telegram digest: %w", err)
		}
		c.log.Info().Msg("   ✓ Digest sent")
	}

	c.mu.Lock()
	c.lastDigest = text
	c.mu.Unlock()
	return true, nil
}

// FormatDigest renders the digest text for a snapshot.
//
// Message format:
//
//	📊 Complaint report (last 30 days)
//
//	• Completion rate is 40% in the last 30 days.
//	• Urgent complaints: 2 in the selected range.
//
//	Collected 120 of 500 complaints (page limit reached)
func FormatDigest(snap refresh.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Complaint report</b> (last %d days)\n\n", snap.Analytics.WindowDays)
	for _, insight := range snap.Analytics.Insights {
		fmt.Fprintf(&b, "• %s\n", html.EscapeString(insight))
	}
	if snap.Truncated {
		fmt.Fprintf(&b, "\n⚠️ Collected %d of %d complaints (page limit reached)",
			len(snap.Complaints), snap.Totals.TotalComplaints)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SendCriticalAlert sends a critical alert message.
//
// Message format:
//
//	🚨 CRITICAL ALERT - CMON REPORTS
//	Error Type: Refresh Failure
//	Error Message: transport error: fetch page 1: HTTP 502
//	Failed Cycles: 3
//	Timestamp: 2026-01-15 10:30:00
//	⚠️ Action Required: Please check the service immediately.
//
// Parameters:
//   - errorType: Type of error (e.g., "Refresh Failure")
//   - errorMsg: Detailed error message
//   - failures: Number of consecutive failures
func (c *Client) SendCriticalAlert(ctx context.Context, errorType, errorMsg string, failures int) error {
	if c == nil {
		return nil
	}

	message := fmt.Sprintf(
		"🚨 <b>CRITICAL ALERT - CMON REPORTS</b>\n\n"+
			"<b>Error Type:</b> %s\n"+
			"<b>Error Message:</b> %s\n"+
			"<b>Failed Cycles:</b> %d\n"+
			"<b>Timestamp:</b> %s\n\n"+
			"⚠️ <b>Action Required:</b> Please check the service immediately.",
		html.EscapeString(errorType),
		html.EscapeString(errorMsg),
		failures,
		time.Now().Format("2006-01-02 15:04:05"),
	)

	if c.DebugMode {
		c.log.Info().Str("alert", errorMsg).Msg("🐛 DEBUG MODE: Skipping critical alert")
		return nil
	}

	c.log.Warn().Msg("   🚨 Sending critical alert to Telegram...")
	err := c.doRequest(ctx, "sendMessage", Message{
		ChatID:                c.ChatID,
		Text:                  message,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send Telegram alert: %w", err)
	}

	c.log.Info().Msg("   ✓ Critical alert successfully sent to Telegram")
	return nil
}
