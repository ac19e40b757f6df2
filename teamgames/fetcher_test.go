package teamgames

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method  string
	headers http.Header
	body    map[string]string
}

func newStoreServer(t *testing.T, status int, response string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	requests := make([]capturedRequest, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		_ = json.Unmarshal(data, &body)
		mu.Lock()
		requests = append(requests, capturedRequest{method: r.Method, headers: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

type completionRecorder struct {
	sync.Mutex
	results []FetchResult
	players []Player
}

func (c *completionRecorder) done(ctx context.Context, logger runtime.Logger, player Player, result FetchResult) {
	c.Lock()
	defer c.Unlock()
	c.results = append(c.results, result)
	c.players = append(c.players, player)
}

func TestTransactionFetcher_PostsWithHeaders(t *testing.T) {
	server, requests := newStoreServer(t, http.StatusOK, `[{"message":"hi"}]`)
	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")

	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "key-1"})
	defer fetcher.Close()
	recorder := &completionRecorder{}

	requestID, err := fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)
	fetcher.Wait()

	require.Len(t, requests(), 1)
	req := requests()[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "key-1", req.headers.Get(HeaderAPIKey))
	assert.Equal(t, "application/json", req.headers.Get(HeaderContentType))
	assert.Equal(t, map[string]string{"playerName": "p1"}, req.body)

	require.Len(t, recorder.results, 1)
	assert.Equal(t, http.StatusOK, recorder.results[0].StatusCode)
	assert.Equal(t, `[{"message":"hi"}]`, recorder.results[0].Body)
	assert.NoError(t, recorder.results[0].Err)
	assert.Equal(t, "p1", recorder.players[0].UserID())
	assert.Zero(t, fetcher.Pending())
}

func TestTransactionFetcher_SetAPIKeyAppliesToNextRequest(t *testing.T) {
	server, requests := newStoreServer(t, http.StatusOK, `[]`)
	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")

	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "old"})
	defer fetcher.Close()
	recorder := &completionRecorder{}

	fetcher.SetAPIKey("new")
	_, err := fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	require.NoError(t, err)
	fetcher.Wait()

	require.Len(t, requests(), 1)
	assert.Equal(t, "new", requests()[0].headers.Get(HeaderAPIKey))
	assert.Equal(t, "new", fetcher.Headers()[HeaderAPIKey])
}

func TestTransactionFetcher_NonOKStatusIsReported(t *testing.T) {
	server, _ := newStoreServer(t, http.StatusInternalServerError, "")
	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")

	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "k"})
	defer fetcher.Close()
	recorder := &completionRecorder{}

	_, err := fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	require.NoError(t, err)
	fetcher.Wait()

	require.Len(t, recorder.results, 1)
	assert.Equal(t, http.StatusInternalServerError, recorder.results[0].StatusCode)
	assert.Empty(t, recorder.results[0].Body)
}

func TestTransactionFetcher_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")
	fetcher := NewTransactionFetcher(&FetcherConfig{URL: url, APIKey: "k", Timeout: time.Second})
	defer fetcher.Close()
	recorder := &completionRecorder{}

	_, err := fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	require.NoError(t, err)
	fetcher.Wait()

	require.Len(t, recorder.results, 1)
	assert.Error(t, recorder.results[0].Err)
	assert.Zero(t, recorder.results[0].StatusCode)
	assert.Empty(t, recorder.results[0].Body)
}

func TestTransactionFetcher_DisconnectedPlayerIsDropped(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `[]`)
	}))
	defer server.Close()

	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")
	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "k"})
	defer fetcher.Close()
	recorder := &completionRecorder{}

	_, err := fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	require.NoError(t, err)

	host.Lock()
	host.disconnected["p1"] = true
	host.Unlock()
	close(release)
	fetcher.Wait()

	assert.Empty(t, recorder.results)
	assert.Zero(t, fetcher.Pending())
}

func TestTransactionFetcher_ExpiredResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `[]`)
	}))
	defer server.Close()

	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")
	clock := newFakeClock()
	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "k", Expiry: time.Minute})
	fetcher.now = clock.Now
	defer fetcher.Close()
	recorder := &completionRecorder{}
	logger := newTestLogger(t)

	_, err := fetcher.Fetch(logger, player, host, recorder.done)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.Pending())

	clock.Advance(2 * time.Minute)
	close(release)
	fetcher.Wait()

	assert.Empty(t, recorder.results)
	assert.True(t, logger.Contains("warn", "request expired"))
}

func TestTransactionFetcher_SweptRequestIsDropped(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `[]`)
	}))
	defer server.Close()

	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")
	clock := newFakeClock()
	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "k", Expiry: time.Minute})
	fetcher.now = clock.Now
	defer fetcher.Close()
	recorder := &completionRecorder{}
	logger := newTestLogger(t)

	_, err := fetcher.Fetch(logger, player, host, recorder.done)
	require.NoError(t, err)

	assert.Zero(t, fetcher.SweepExpired(clock.Now().Add(30*time.Second)))
	assert.Equal(t, 1, fetcher.SweepExpired(clock.Now().Add(61*time.Second)))
	close(release)
	fetcher.Wait()

	assert.Empty(t, recorder.results)
	assert.True(t, logger.Contains("warn", "unknown or expired request"))
}

func TestTransactionFetcher_Close(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	host := newFakeHost()
	player := host.addPlayer("p1", "Alice")
	fetcher := NewTransactionFetcher(&FetcherConfig{URL: server.URL, APIKey: "k"})
	recorder := &completionRecorder{}

	_, err := fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	require.NoError(t, err)

	fetcher.Close()
	assert.Empty(t, recorder.results)

	_, err = fetcher.Fetch(newTestLogger(t), player, host, recorder.done)
	assert.ErrorIs(t, err, ErrFetcherClosed)
}
