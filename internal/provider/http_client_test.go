package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+34600123456", req.To)
		assert.Equal(t, "hola", req.Body)

		json.NewEncoder(w).Encode(sendResponse{
			ID:          "prov-1",
			SubmittedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", time.Second)
	result, err := client.Send(context.Background(), "+34600123456", "hola", "EX1234567")
	require.NoError(t, err)
	assert.Equal(t, "prov-1", result.ProviderID)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), result.SubmittedAt)
}

func TestClientSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient balance"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	result, err := client.Send(context.Background(), "+34600123456", "hola", "")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inbox", r.URL.Path)
		assert.Equal(t, "MT", r.URL.Query().Get("direction"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("pageSize"))

		json.NewEncoder(w).Encode(InboxPage{
			Items: []InboxItem{{ID: "a", From: "+34600123456", To: "EX1234567", Body: "hola"}},
			Total: 1,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	page, err := client.Fetch(context.Background(), "MT", 1, 50, "")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)
}

func TestClientFetchTransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "key", 100*time.Millisecond)
	_, err := client.Fetch(context.Background(), "MT", 1, 50, "")
	assert.Error(t, err)
}
