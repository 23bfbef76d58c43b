package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastsync/forecastsync/internal/provider/resilience"
)

// statusSequence serves the given statuses in order, repeating the last one.
func statusSequence(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
		if statuses[n] == http.StatusOK {
			_, _ = w.Write([]byte(`{"cod":"200","list":[]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newGet(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return req
}

func TestClient_DoWithoutRetries(t *testing.T) {
	server, calls := statusSequence(t, http.StatusBadGateway, http.StatusOK)
	client := resilience.NewClient(resilience.DefaultClientConfig("openweathermap"))

	resp, err := client.Do(newGet(t, server.URL))
	require.NoError(t, err)
	resp.Body.Close()

	// 5xx is handed back as a response; the default config never retries.
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesWhenConfigured(t *testing.T) {
	server, calls := statusSequence(t,
		http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)

	cb := resilience.DefaultCircuitBreakerConfig("checkwx")
	cb.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "checkwx",
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		CircuitBreaker:  &cb,
	})

	resp, err := client.Do(newGet(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	server, calls := statusSequence(t, http.StatusNotFound)

	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "openweathermap",
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	})

	resp, err := client.Do(newGet(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint32(0), client.CircuitBreakerCounts().TotalFailures)
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	server, calls := statusSequence(t, http.StatusInternalServerError)

	var transitions []string
	cb := resilience.DefaultCircuitBreakerConfig("openweathermap")
	cb.OnStateChange = func(_ string, from, to gobreaker.State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	client := resilience.NewClient(resilience.ClientConfig{Name: "openweathermap", CircuitBreaker: &cb})

	for range 3 {
		_, err := client.Fetch(context.Background(), server.URL, nil)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())
	assert.Equal(t, []string{"closed->open"}, transitions)

	_, err := client.Fetch(context.Background(), server.URL, nil)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load(), "open circuit must not reach the provider")
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{Name: "checkwx", Timeout: 20 * time.Millisecond})

	_, err := client.Fetch(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Equal(t, uint32(1), client.CircuitBreakerCounts().TotalFailures)
}

func TestClient_CancellationDoesNotCountAgainstProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("openweathermap"))

	for range 5 {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err := client.Fetch(ctx, server.URL, nil)
		require.ErrorIs(t, err, context.Canceled)
		cancel()
	}

	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
	assert.Equal(t, uint32(0), client.CircuitBreakerCounts().TotalFailures)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("openweathermap")

	assert.Equal(t, "openweathermap", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.ReadyToTrip)
	assert.NotNil(t, cfg.IsSuccessful)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		counts gobreaker.Counts
		want   bool
	}{
		{gobreaker.Counts{Requests: 2, TotalFailures: 2, ConsecutiveFailures: 2}, false},
		{gobreaker.Counts{Requests: 3, TotalFailures: 3, ConsecutiveFailures: 3}, true},
		{gobreaker.Counts{Requests: 4, TotalFailures: 2, ConsecutiveFailures: 1}, false},
		{gobreaker.Counts{Requests: 5, TotalFailures: 2, ConsecutiveFailures: 1}, false},
		{gobreaker.Counts{Requests: 6, TotalFailures: 3, ConsecutiveFailures: 1}, true},
		{gobreaker.Counts{Requests: 10, TotalFailures: 8, ConsecutiveFailures: 2}, true},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%d of %d, %d in a row", tt.counts.TotalFailures, tt.counts.Requests, tt.counts.ConsecutiveFailures)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestIgnoreCancellation(t *testing.T) {
	assert.True(t, resilience.IgnoreCancellation(nil))
	assert.True(t, resilience.IgnoreCancellation(fmt.Errorf("fetch: %w", context.Canceled)))
	assert.False(t, resilience.IgnoreCancellation(context.DeadlineExceeded))
	assert.False(t, resilience.IgnoreCancellation(errors.New("connection reset")))
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("checkwx")

	assert.Equal(t, "checkwx", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(0), cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxInterval)
	require.NotNil(t, cfg.CircuitBreaker)
	assert.Nil(t, cfg.Registry)
}

func TestServerError(t *testing.T) {
	err := &resilience.ServerError{StatusCode: http.StatusServiceUnavailable}
	assert.Equal(t, "server error: Service Unavailable", err.Error())
}
