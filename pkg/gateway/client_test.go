package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torquehub/torquehub-backend/pkg/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.GatewayConfig{
		BaseURL:       baseURL,
		KeyID:         "key_test_abc",
		KeySecret:     "secret_abc",
		WebhookSecret: "whsec_abc",
		Currency:      "INR",
		HTTPTimeout:   2 * time.Second,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.GatewayConfig{}, nil)
	assert.ErrorIs(t, err, errKeyIDRequired)

	_, err = NewClient(context.Background(), config.GatewayConfig{KeyID: "k"}, nil)
	assert.ErrorIs(t, err, errKeySecretRequired)

	_, err = NewClient(context.Background(), config.GatewayConfig{KeyID: "k", KeySecret: "s"}, nil)
	assert.ErrorIs(t, err, errWebhookSecretRequired)
}

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key_test_abc", user)
		require.Equal(t, "secret_abc", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 149950, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		json.NewEncoder(w).Encode(Intent{
			ID:          "order_x1",
			AmountMinor: 149950,
			Currency:    "INR",
			Status:      IntentCreated,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	intent, err := client.CreateIntent(context.Background(), CreateIntentParams{
		AmountMinor: 149950,
		Receipt:     "job-42",
		Notes:       map[string]string{"purpose": "bill_payment"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_x1", intent.ID)
	assert.Equal(t, IntentCreated, intent.Status)
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	client := newTestClient(t, "http://unused")
	_, err := client.CreateIntent(context.Background(), CreateIntentParams{AmountMinor: 0})
	assert.Error(t, err)
}

func TestFetchPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments/pay_9", r.URL.Path)
		json.NewEncoder(w).Encode(Payment{
			ID:          "pay_9",
			IntentID:    "order_x1",
			AmountMinor: 149950,
			Currency:    "INR",
			Status:      PaymentCaptured,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	payment, err := client.FetchPayment(context.Background(), "pay_9")
	require.NoError(t, err)
	assert.True(t, payment.Captured())
	assert.Equal(t, "order_x1", payment.IntentID)
}

func TestFetchPaymentSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiErrorEnvelope{Error: apiError{
			Description: "payment not found",
			Code:        "BAD_REQUEST_ERROR",
		}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.FetchPayment(context.Background(), "pay_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment not found")
}

func TestVerifySignature(t *testing.T) {
	client := newTestClient(t, "http://unused")

	mac := hmac.New(sha256.New, []byte("secret_abc"))
	mac.Write([]byte("order_x1|pay_9"))
	good := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, client.VerifySignature("order_x1", "pay_9", good))
	assert.False(t, client.VerifySignature("order_x1", "pay_9", "deadbeef"))
	assert.False(t, client.VerifySignature("order_x1", "pay_other", good))
	assert.False(t, client.VerifySignature("", "pay_9", good))
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := newTestClient(t, "http://unused")
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"id":"pay_9"}}}`)

	mac := hmac.New(sha256.New, []byte("whsec_abc"))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, client.VerifyWebhookSignature(body, good))
	assert.False(t, client.VerifyWebhookSignature(body, "bad"))
	assert.False(t, client.VerifyWebhookSignature(append(body, ' '), good))
	assert.False(t, client.VerifyWebhookSignature(nil, good))
}
