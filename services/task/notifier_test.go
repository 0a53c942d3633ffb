package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketing-commerce/pkg/config"
	pkgtask "ticketing-commerce/pkg/task"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func newNotifierConfig(url string) *config.Config {
	cfg := &config.Config{}
	cfg.Notification.WebhookURL = url
	return cfg
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var got map[string]json.RawMessage
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewNotifier(newNotifierConfig(srv.URL))
	err := n.OrderCompleted(context.Background(), pkgtask.OrderNotifyPayload{OrderID: "o-1", TicketCodes: []string{"ORG-AAAAAAAA"}})
	require.NoError(t, err)
	require.Equal(t, "order-completed:o-1", key)
	require.JSONEq(t, `"order.completed"`, string(got["type"]))
}

func TestWebhookNotifierClientErrorSkipsRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(newNotifierConfig(srv.URL))
	err := n.OrderCompleted(context.Background(), pkgtask.OrderNotifyPayload{OrderID: "o-1"})
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestWebhookNotifierUnconfigured(t *testing.T) {
	n := NewNotifier(newNotifierConfig(""))
	require.NoError(t, n.OrderCompleted(context.Background(), pkgtask.OrderNotifyPayload{OrderID: "o-1"}))
}
