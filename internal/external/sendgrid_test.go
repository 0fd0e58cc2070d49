package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linkdigest/internal/types"
)

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid",
		NoRetryPolicy(),
		"LinkDigest-Test/1.0",
		WithSleepFunc(func(time.Duration) {}),
	)

	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: serverURL,
	})
}

func digestSendInput() SendInput {
	return SendInput{
		To: []string{"reader@example.com"},
		From: SenderIdentity{
			Name:    "LinkDigest",
			Address: "digest@linkdigest.io",
		},
		Subject:     "Your digest: 3 links worth a look",
		BodyHTML:    "<html><body>digest</body></html>",
		BodyText:    "digest",
		ReferenceID: "dispatch_001",
	}
}

// ---------------------------------------------------------------------------
// Send Tests - Success Path
// ---------------------------------------------------------------------------

func TestSendGridSend_Success(t *testing.T) {
	var receivedPayload sendGridMailPayload
	var receivedAuth string
	var receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("expected path /v3/mail/send, got %s", r.URL.Path)
		}

		receivedAuth = r.Header.Get("Authorization")
		receivedContentType = r.Header.Get("Content-Type")

		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	msgID, err := client.Send(context.Background(), digestSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if msgID != "sg_msg_abc123" {
		t.Errorf("expected message ID sg_msg_abc123, got %s", msgID)
	}

	if receivedAuth != "Bearer SG.test_api_key" {
		t.Errorf("expected Bearer SG.test_api_key, got %s", receivedAuth)
	}
	if receivedContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", receivedContentType)
	}

	if len(receivedPayload.Personalizations) != 1 {
		t.Fatalf("expected 1 personalization, got %d", len(receivedPayload.Personalizations))
	}
	p := receivedPayload.Personalizations[0]
	if len(p.To) != 1 || p.To[0].Email != "reader@example.com" {
		t.Errorf("unexpected recipients: %+v", p.To)
	}

	if receivedPayload.From.Email != "digest@linkdigest.io" {
		t.Errorf("expected from email digest@linkdigest.io, got %s", receivedPayload.From.Email)
	}
	if receivedPayload.From.Name != "LinkDigest" {
		t.Errorf("expected from name LinkDigest, got %s", receivedPayload.From.Name)
	}
	if receivedPayload.Subject != "Your digest: 3 links worth a look" {
		t.Errorf("unexpected subject: %s", receivedPayload.Subject)
	}

	// SendGrid requires text/plain before text/html.
	if len(receivedPayload.Content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(receivedPayload.Content))
	}
	if receivedPayload.Content[0].Type != "text/plain" {
		t.Errorf("first content part must be text/plain, got %s", receivedPayload.Content[0].Type)
	}
	if receivedPayload.Content[1].Type != "text/html" {
		t.Errorf("second content part must be text/html, got %s", receivedPayload.Content[1].Type)
	}

	if receivedPayload.CustomArgs == nil {
		t.Fatal("expected custom_args to be set")
	}
	if refID := receivedPayload.CustomArgs["reference_id"]; refID != "dispatch_001" {
		t.Errorf("expected reference_id dispatch_001, got %v", refID)
	}
}

func TestSendGridSend_MultipleRecipients(t *testing.T) {
	var receivedPayload sendGridMailPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.Header().Set("X-Message-Id", "sg_msg_multi")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	input := digestSendInput()
	input.To = []string{"a@example.com", "b@example.com", "c@example.com"}

	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(receivedPayload.Personalizations) != 1 {
		t.Fatalf("expected 1 personalization, got %d", len(receivedPayload.Personalizations))
	}
	to := receivedPayload.Personalizations[0].To
	if len(to) != 3 {
		t.Fatalf("expected 3 recipients, got %d", len(to))
	}
	if to[0].Email != "a@example.com" || to[2].Email != "c@example.com" {
		t.Errorf("unexpected recipient order: %+v", to)
	}
}

func TestSendGridSend_NoReferenceID(t *testing.T) {
	var receivedPayload sendGridMailPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.Header().Set("X-Message-Id", "sg_msg_norefs")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	input := digestSendInput()
	input.ReferenceID = ""

	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// custom_args is omitted when ReferenceID is empty.
	if receivedPayload.CustomArgs != nil {
		t.Errorf("expected custom_args to be nil, got %v", receivedPayload.CustomArgs)
	}
}

func TestSendGridSend_HTMLOnlyBody(t *testing.T) {
	var receivedPayload sendGridMailPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedPayload)
		w.Header().Set("X-Message-Id", "sg_msg_htmlonly")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	input := digestSendInput()
	input.BodyText = ""

	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(receivedPayload.Content) != 1 {
		t.Fatalf("expected 1 content part, got %d", len(receivedPayload.Content))
	}
	if receivedPayload.Content[0].Type != "text/html" {
		t.Errorf("expected text/html, got %s", receivedPayload.Content[0].Type)
	}
}

// ---------------------------------------------------------------------------
// Send Tests - Error Paths
// ---------------------------------------------------------------------------

func TestSendGridSend_ForbiddenMapsToEmailBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{
				{
					"message": "The from address does not match a verified Sender Identity.",
					"field":   "from",
				},
			},
		})
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), digestSendInput())
	if err == nil {
		t.Fatal("expected error for 403, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected error code %s, got %s", types.ErrCodeEmailBlocked, appErr.Code)
	}
}

func TestSendGridSend_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), digestSendInput())
	if err == nil {
		t.Fatal("expected error for 429, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	// BaseClient maps 429 to ErrCodeUpstreamRateLimited once the single
	// attempt is spent.
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}

func TestSendGridSend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), digestSendInput())
	if err == nil {
		t.Fatal("expected error for 500, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

func TestSendGridSend_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{
				{"message": "The subject is required.", "field": "subject"},
			},
		})
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), digestSendInput())
	if err == nil {
		t.Fatal("expected error for 400, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
}

func TestSendGridSend_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Bad Request - not JSON")
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), digestSendInput())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
}
