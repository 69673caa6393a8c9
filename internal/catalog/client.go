package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storefront/order-service/internal/config"
)

var (
	ErrProductNotFound = errors.New("product not found")

	// ErrStockRejected is a definitive business rejection (insufficient
	// stock); retrying the same call will not help.
	ErrStockRejected = errors.New("stock adjustment rejected")

	// ErrStockTransient covers network failures and 5xx responses; the
	// same call may be retried with the same idempotency key.
	ErrStockTransient = errors.New("stock adjustment temporarily failed")
)

type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type adjustStockRequest struct {
	Delta  int32  `json:"delta"`
	Reason string `json:"reason"`
}

// Client talks to the catalog/inventory service. Stock adjustments carry
// an Idempotency-Key header so the inventory side can deduplicate retries.
type Client struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
}

func NewClient(logger *slog.Logger, cfg config.Catalog) *Client {
	return &Client{
		logger:  logger.With(slog.String("client", "catalog")),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		baseURL: cfg.BaseURL,
	}
}

func (c *Client) GetProduct(ctx context.Context, productID int64) (Product, error) {
	url := fmt.Sprintf("%s/products/%d", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Product{}, fmt.Errorf("failed to build request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("failed to get product %d: %w", productID, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return Product{}, ErrProductNotFound
	case res.StatusCode != http.StatusOK:
		return Product{}, fmt.Errorf("catalog returned status %d for product %d", res.StatusCode, productID)
	}

	var product Product
	if err := json.NewDecoder(res.Body).Decode(&product); err != nil {
		return Product{}, fmt.Errorf("failed to decode product %d: %w", productID, err)
	}
	return product, nil
}

// AdjustStock changes the stock level of a single product by delta
// (negative reserves, positive releases). The response is classified into
// success, terminal rejection or transient failure so callers never have
// to inspect transport details.
func (c *Client) AdjustStock(ctx context.Context, productID int64, delta int32, idempotencyKey, reason string) error {
	body, err := json.Marshal(adjustStockRequest{Delta: delta, Reason: reason})
	if err != nil {
		return fmt.Errorf("failed to marshal stock adjustment: %w", err)
	}

	url := fmt.Sprintf("%s/products/%d/stock", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		// timeouts and connection errors are retryable with the same key
		return fmt.Errorf("%w: %v", ErrStockTransient, err)
	}
	defer res.Body.Close()

	c.logger.DebugContext(ctx, "stock adjusted",
		slog.Int64("product_id", productID),
		slog.Int("delta", int(delta)),
		slog.Int("status", res.StatusCode),
		slog.String("duration", time.Since(start).String()),
	)

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusConflict || res.StatusCode == http.StatusUnprocessableEntity:
		return ErrStockRejected
	case res.StatusCode == http.StatusNotFound:
		return ErrStockRejected
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrStockTransient, res.StatusCode)
	default:
		return fmt.Errorf("unexpected catalog status %d", res.StatusCode)
	}
}
