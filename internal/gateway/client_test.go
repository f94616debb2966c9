package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blast/internal/domain"
)

func testClient(baseURL string) *Client {
	return &Client{
		InstanceID: "inst1",
		Token:      "tok1",
		BaseURL:    baseURL,
		HTTP:       &http.Client{Timeout: 2 * time.Second},
	}
}

func TestSendTextSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"messageId": "m-123", "sent": true})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).SendText(context.Background(), "5511987654321", "oi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Delivered || res.MessageID != "m-123" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/instances/inst1/token/tok1/send-text" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["phone"] != "5511987654321" || gotBody["message"] != "oi" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestGatewayReportedFailureIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sent": false, "error": "invalid number"})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).SendText(context.Background(), "123", "oi")
	if err != nil {
		t.Fatalf("gateway rejection must not be a transport error, got %v", err)
	}
	if res.Delivered || res.Err != "invalid number" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestNon2xxStatusIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "account throttled"})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).SendText(context.Background(), "123", "oi")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if res.Delivered || res.Err != "account throttled" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTransportFaultIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	_, err := testClient(srv.URL).SendText(context.Background(), "123", "oi")
	if err == nil {
		t.Fatalf("expected transport error against a closed server")
	}
}

func TestReady(t *testing.T) {
	c := testClient("http://gw")
	if err := c.Ready(); err != nil {
		t.Fatalf("configured client not ready: %v", err)
	}
	c.Token = ""
	if err := c.Ready(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	// missing credentials fail the call before any request is made
	if _, err := c.SendText(context.Background(), "123", "oi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestActionButtonPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"sent": true})
	}))
	defer srv.Close()

	buttons := []domain.Button{
		{Kind: domain.ButtonURL, Label: "Open", Value: "https://example.com"},
		{Kind: domain.ButtonCall, Label: "Call us", Value: "5511999999999"},
	}
	if _, err := testClient(srv.URL).SendActionButtons(context.Background(), "123", "oi", buttons); err != nil {
		t.Fatalf("send: %v", err)
	}
	actions, ok := gotBody["buttonActions"].([]any)
	if !ok || len(actions) != 2 {
		t.Fatalf("unexpected buttonActions %v", gotBody["buttonActions"])
	}
	first := actions[0].(map[string]any)
	if first["type"] != "URL" || first["url"] != "https://example.com" {
		t.Fatalf("unexpected url button %v", first)
	}
	second := actions[1].(map[string]any)
	if second["type"] != "CALL" || second["phone"] != "5511999999999" {
		t.Fatalf("unexpected call button %v", second)
	}
}

func TestReplyButtonPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"sent": true})
	}))
	defer srv.Close()

	buttons := []domain.Button{
		{Kind: domain.ButtonReply, Label: "Yes"},
		{Kind: domain.ButtonReply, Label: "No"},
	}
	if _, err := testClient(srv.URL).SendReplyButtonsImage(context.Background(), "123", "oi", buttons, "https://cdn/x.png"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody["image"] != "https://cdn/x.png" {
		t.Fatalf("missing image url: %v", gotBody)
	}
	list, ok := gotBody["buttonList"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected buttonList %v", gotBody["buttonList"])
	}
	items := list["buttons"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["label"] != "Yes" {
		t.Fatalf("unexpected reply buttons %v", items)
	}
}
