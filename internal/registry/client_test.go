package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientRetriesUnreachableOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(catalogBody()))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		RetryMax:  3,
		RetryBase: time.Millisecond,
	})
	catalog, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Len(t, catalog.Plugins, 2)
}

func TestClientDoesNotRetryMalformed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"plugins": "nope"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		RetryMax:  5,
		RetryBase: time.Millisecond,
	})
	_, err := client.FetchCatalog(context.Background())
	require.ErrorIs(t, err, ErrMalformed)
	require.Equal(t, int32(1), calls.Load())
}

func TestClientRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		RetryMax:  2,
		RetryBase: time.Millisecond,
	})
	_, err := client.FetchCatalog(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
	require.Equal(t, int32(3), calls.Load())
}

func TestClientStateForUnknownPluginDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"plugins": [{"id": "` + blogID + `", "name": "Blog", "version": "1.0.0"}],
			"states": [
				{"id": "` + blogID + `", "status": "enabled"},
				{"id": "` + ghostID + `", "status": "enabled"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})
	catalog, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.States[0], 1)
	require.Contains(t, catalog.States[0], blogID)
}

func TestClientUnknownStatusFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"plugins": [{"id": "` + blogID + `", "name": "Blog", "version": "1.0.0"}],
			"states": [{"id": "` + blogID + `", "status": "paused"}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})
	catalog, err := client.FetchCatalog(context.Background())
	require.NoError(t, err)
	require.False(t, catalog.States[0][blogID].Enabled())
}
