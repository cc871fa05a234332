package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// maxBookFetchers bounds the number of in-flight /book requests.
const maxBookFetchers = 16

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. Market listing and book queries are public; order
// placement needs a signer and L2 credentials.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	signer *crypto.Signer

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer may be nil for a read-only client. hmac may be nil until
// DeriveAPIKey is called. rps throttles outgoing requests; zero disables it.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth, rps float64, logger *slog.Logger) *ClobClient {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With(slog.String("component", "clob")),
		signer:   signer,
		hmacAuth: hmac,
	}
}

// HasCredentials reports whether L2 credentials are available.
func (c *ClobClient) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hmacAuth != nil
}

// ListMarkets pages through /sampling-markets and returns the markets that
// are active, open and accepting orders. At most maxPages pages are read.
func (c *ClobClient) ListMarkets(ctx context.Context, maxPages int) ([]domain.Market, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	var (
		markets []domain.Market
		cursor  string
		total   int
	)
	for page := 0; page < maxPages; page++ {
		path := "/sampling-markets"
		if cursor != "" {
			path += "?next_cursor=" + url.QueryEscape(cursor)
		}

		body, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
		if err != nil {
			return nil, fmt.Errorf("polymarket/clob: list markets: %w", err)
		}

		var resp MarketsPage
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("polymarket/clob: decode markets page: %w", err)
		}

		total += len(resp.Data)
		for i := range resp.Data {
			m := resp.Data[i].ToDomainMarket()
			if m.Tradable() {
				markets = append(markets, m)
			}
		}

		cursor = resp.NextCursor
		if cursor == "" || cursor == endCursor {
			break
		}
	}

	c.logger.Debug("markets listed",
		slog.Int("received", total),
		slog.Int("tradable", len(markets)),
	)
	return markets, nil
}

// GetOrderBook fetches the current book for one token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBookSnapshot, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/book?token_id="+url.QueryEscape(tokenID), nil, false)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("polymarket/clob: decode book %s: %w", tokenID, err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book.ToDomainSnapshot(), nil
}

// GetOrderBooks fetches books for every token in parallel. Individual
// failures are counted, logged and skipped; only context cancellation is
// returned as an error.
func (c *ClobClient) GetOrderBooks(ctx context.Context, tokenIDs []string) ([]domain.OrderBookSnapshot, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	results := make([]*domain.OrderBookSnapshot, len(tokenIDs))
	var (
		failMu   sync.Mutex
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBookFetchers)
	for i, id := range tokenIDs {
		g.Go(func() error {
			snap, err := c.GetOrderBook(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failMu.Lock()
				failures++
				n := failures
				failMu.Unlock()
				if n <= 3 {
					c.logger.Info("order book fetch failed",
						slog.String("token_id", id),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			results[i] = &snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("polymarket/clob: get books: %w", err)
	}

	books := make([]domain.OrderBookSnapshot, 0, len(tokenIDs))
	for _, r := range results {
		if r != nil {
			books = append(books, *r)
		}
	}
	if failures > 0 {
		c.logger.Debug("order book fetches failed",
			slog.Int("failed", failures),
			slog.Int("requested", len(tokenIDs)),
		)
	}
	return books, nil
}

// PostOrder submits a signed order. A venue rejection returns the decoded
// result together with an error wrapping domain.ErrOrderRejected.
func (c *ClobClient) PostOrder(ctx context.Context, order crypto.SignedOrder, orderType domain.OrderType) (domain.ExecutionResult, error) {
	c.mu.RLock()
	auth := c.hmacAuth
	c.mu.RUnlock()
	if auth == nil {
		return domain.ExecutionResult{}, fmt.Errorf("polymarket/clob: post order: %w: no API credentials", domain.ErrUnauthorized)
	}

	req := newPostOrderRequest(order, auth.Key, orderType)
	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", req, true)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		res := domain.ExecutionResult{ErrorMessage: "Empty response from server"}
		return res, fmt.Errorf("polymarket/clob: post order: %w: empty response", domain.ErrOrderRejected)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.ToExecutionResult()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, result.ErrorMessage)
	}
	return result, nil
}

// DeriveAPIKey performs the CLOB L1 auth flow: it signs a ClobAuth EIP-712
// message and sends it with the POLY_ADDRESS, POLY_SIGNATURE,
// POLY_TIMESTAMP and POLY_NONCE headers. On success the returned
// credentials are also installed on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w: no signer", domain.ErrUnauthorized)
	}

	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var creds apiCredentials
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w: incomplete credentials", domain.ErrUnauthorized)
	}

	auth := &crypto.HMACAuth{
		Key:        creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}
	c.mu.Lock()
	c.hmacAuth = auth
	c.mu.Unlock()
	return auth, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest throttles, builds, optionally signs (HMAC), sends and reads an
// HTTP request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any, authenticated bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticated {
		c.mu.RLock()
		auth := c.hmacAuth
		c.mu.RUnlock()
		if auth == nil || c.signer == nil {
			return nil, domain.ErrUnauthorized
		}
		for k, v := range auth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
