package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"blast/internal/domain"
)

// Result is the normalized outcome of one gateway call. Ordinary delivery
// failures (bad number, account rate-limited) come back as Delivered=false
// with the gateway's error string and a nil Go error; only transport faults
// (service unreachable, timeout) surface as errors.
type Result struct {
	Delivered bool
	MessageID string
	Err       string
}

var ErrNotConfigured = errors.New("gateway credentials not configured")

// Client talks to an instance-scoped messaging gateway. Calls are bounded by
// the HTTP client's timeout so a hung gateway cannot stall a stop request
// indefinitely.
type Client struct {
	InstanceID string
	Token      string
	BaseURL    string
	HTTP       *http.Client
}

func (c *Client) Ready() error {
	if c.InstanceID == "" || c.Token == "" {
		return ErrNotConfigured
	}
	return nil
}

type apiResponse struct {
	MessageID string `json:"messageId"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

func (c *Client) SendText(ctx context.Context, phone, message string) (Result, error) {
	return c.post(ctx, "send-text", map[string]any{
		"phone":   phone,
		"message": message,
	})
}

func (c *Client) SendImage(ctx context.Context, phone, imageURL, caption string) (Result, error) {
	return c.post(ctx, "send-image", map[string]any{
		"phone":   phone,
		"image":   imageURL,
		"caption": caption,
	})
}

func (c *Client) SendVideo(ctx context.Context, phone, videoURL, caption string) (Result, error) {
	return c.post(ctx, "send-video", map[string]any{
		"phone":   phone,
		"video":   videoURL,
		"caption": caption,
	})
}

// SendDocument carries no caption: follow-up text goes out as a separate
// message when needed.
func (c *Client) SendDocument(ctx context.Context, phone, documentURL string) (Result, error) {
	return c.post(ctx, "send-document", map[string]any{
		"phone":    phone,
		"document": documentURL,
	})
}

// SendActionButtons sends url/call buttons. These cannot carry inline media.
func (c *Client) SendActionButtons(ctx context.Context, phone, message string, buttons []domain.Button) (Result, error) {
	return c.post(ctx, "send-button-actions", map[string]any{
		"phone":         phone,
		"message":       message,
		"buttonActions": actionPayload(buttons),
	})
}

func (c *Client) SendReplyButtons(ctx context.Context, phone, message string, buttons []domain.Button) (Result, error) {
	return c.post(ctx, "send-button-list", map[string]any{
		"phone":      phone,
		"message":    message,
		"buttonList": replyPayload(buttons),
	})
}

func (c *Client) SendReplyButtonsImage(ctx context.Context, phone, message string, buttons []domain.Button, imageURL string) (Result, error) {
	return c.post(ctx, "send-button-list-image", map[string]any{
		"phone":      phone,
		"message":    message,
		"image":      imageURL,
		"buttonList": replyPayload(buttons),
	})
}

func (c *Client) SendReplyButtonsVideo(ctx context.Context, phone, message string, buttons []domain.Button, videoURL string) (Result, error) {
	return c.post(ctx, "send-button-list-video", map[string]any{
		"phone":      phone,
		"message":    message,
		"video":      videoURL,
		"buttonList": replyPayload(buttons),
	})
}

func actionPayload(buttons []domain.Button) []map[string]any {
	out := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		switch b.Kind {
		case domain.ButtonURL:
			out = append(out, map[string]any{"type": "URL", "label": b.Label, "url": b.Value})
		case domain.ButtonCall:
			out = append(out, map[string]any{"type": "CALL", "label": b.Label, "phone": b.Value})
		}
	}
	return out
}

func replyPayload(buttons []domain.Button) map[string]any {
	list := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		if b.Kind == domain.ButtonReply {
			list = append(list, map[string]any{"label": b.Label})
		}
	}
	return map[string]any{"buttons": list}
}

func (c *Client) post(ctx context.Context, op string, payload map[string]any) (Result, error) {
	if err := c.Ready(); err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	endpoint := baseURL + "/instances/" + c.InstanceID + "/token/" + c.Token + "/" + op
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out apiResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = "gateway returned status " + resp.Status
		}
		// delivery failure reported by the gateway, not a transport fault
		return Result{Delivered: false, Err: msg}, nil
	}
	if !out.Sent && out.Error != "" {
		return Result{Delivered: false, Err: out.Error}, nil
	}
	return Result{Delivered: true, MessageID: out.MessageID}, nil
}
