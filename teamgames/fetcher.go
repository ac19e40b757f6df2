package teamgames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	HeaderAPIKey      = "X-API-Key"
	HeaderContentType = "Content-Type"
)

// ErrFetcherClosed is returned by Fetch after Close.
var ErrFetcherClosed = errors.New("transaction fetcher is closed")

// FetchResult is the raw outcome of a transaction request. Transport failures carry Err with a
// zero StatusCode and an empty Body.
type FetchResult struct {
	StatusCode int
	Body       string
	Err        error
}

// FetchCompletion receives a fetch result for a player that is still connected.
type FetchCompletion func(ctx context.Context, logger runtime.Logger, player Player, result FetchResult)

// FetcherConfig configures the TransactionFetcher.
type FetcherConfig struct {
	URL    string
	APIKey string
	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration
	// Expiry is how long a response is still accepted after the request (optional, defaults to 60s)
	Expiry time.Duration
	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client
}

type pendingFetch struct {
	playerID  string
	issuedAt  time.Time
	expiresAt time.Time
}

type transactionRequest struct {
	PlayerName string `json:"playerName"`
}

// TransactionFetcher posts claim requests to the store API off the calling goroutine and hands
// the response back for the player who asked, if they are still around.
type TransactionFetcher struct {
	url        string
	httpClient *http.Client
	expiry     time.Duration
	now        func() time.Time

	headersMu sync.RWMutex
	headers   map[string]string

	mu      sync.Mutex
	pending map[string]*pendingFetch
	closed  bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewTransactionFetcher(config *FetcherConfig) *TransactionFetcher {
	if config == nil {
		config = &FetcherConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultAPIURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	expiry := config.Expiry
	if expiry == 0 {
		expiry = 60 * time.Second
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &TransactionFetcher{
		url:        url,
		httpClient: httpClient,
		expiry:     expiry,
		now:        time.Now,
		headers: map[string]string{
			HeaderAPIKey:      config.APIKey,
			HeaderContentType: "application/json",
		},
		pending: make(map[string]*pendingFetch),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// SetAPIKey replaces the key sent with every following request.
func (f *TransactionFetcher) SetAPIKey(key string) {
	f.headersMu.Lock()
	f.headers[HeaderAPIKey] = key
	f.headersMu.Unlock()
}

// Headers returns a copy of the live request headers.
func (f *TransactionFetcher) Headers() map[string]string {
	f.headersMu.RLock()
	defer f.headersMu.RUnlock()
	headers := make(map[string]string, len(f.headers))
	for k, v := range f.headers {
		headers[k] = v
	}
	return headers
}

// Fetch starts a request for player and returns its request ID without waiting for the
// response. done runs on the request goroutine once the response arrives, unless the request
// expired, the fetcher was closed, or the player is no longer connected.
func (f *TransactionFetcher) Fetch(logger runtime.Logger, player Player, players PlayerDirectory, done FetchCompletion) (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", ErrFetcherClosed
	}
	requestID := uuid.NewString()
	issuedAt := f.now()
	f.pending[requestID] = &pendingFetch{
		playerID:  player.UserID(),
		issuedAt:  issuedAt,
		expiresAt: issuedAt.Add(f.expiry),
	}
	f.wg.Add(1)
	f.mu.Unlock()

	headers := f.Headers()
	logger = logger.WithField("request_id", requestID)

	go func() {
		defer f.wg.Done()

		result := f.post(f.baseCtx, player.UserID(), headers)
		f.complete(logger, requestID, players, result, done)
	}()

	return requestID, nil
}

func (f *TransactionFetcher) post(ctx context.Context, playerID string, headers map[string]string) FetchResult {
	body, err := json.Marshal(&transactionRequest{PlayerName: playerID})
	if err != nil {
		return FetchResult{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return FetchResult{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return FetchResult{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return FetchResult{StatusCode: resp.StatusCode, Body: string(responseBody)}
}

func (f *TransactionFetcher) complete(logger runtime.Logger, requestID string, players PlayerDirectory, result FetchResult, done FetchCompletion) {
	f.mu.Lock()
	entry, found := f.pending[requestID]
	delete(f.pending, requestID)
	closed := f.closed
	f.mu.Unlock()

	if closed {
		logger.Debug("Dropping transaction response after shutdown")
		return
	}
	if !found {
		logger.Warn("Dropping transaction response for an unknown or expired request")
		return
	}
	if f.now().After(entry.expiresAt) {
		logger.Warn("Dropping transaction response for %s, request expired after %v", entry.playerID, f.expiry)
		return
	}

	ctx := f.baseCtx
	if !players.IsConnected(ctx, entry.playerID) {
		return
	}
	player, found := players.ResolvePlayer(ctx, entry.playerID)
	if !found {
		return
	}
	done(ctx, logger, player, result)
}

// SweepExpired forgets requests whose responses would no longer be accepted.
func (f *TransactionFetcher) SweepExpired(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for requestID, entry := range f.pending {
		if now.After(entry.expiresAt) {
			delete(f.pending, requestID)
			removed++
		}
	}
	return removed
}

// Pending returns the number of outstanding requests.
func (f *TransactionFetcher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Wait blocks until every started request has completed.
func (f *TransactionFetcher) Wait() {
	f.wg.Wait()
}

// Close cancels in-flight requests and waits for their goroutines to finish. Responses that
// arrive afterwards are discarded.
func (f *TransactionFetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()
}
