package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/services"
)

const (
	syncPath = "/api/v1/subsite/orders/sync"
	testPath = "/api/v1/subsite/test"

	secretHeader   = "X-Api-Secret"
	defaultTimeout = 30 * time.Second

	// maxErrorBodyBytes caps how much of a failure response gets read for
	// the error message.
	maxErrorBodyBytes = 2048
)

// ErrMissingEndpoint indicates the subsite has no API URL configured.
var ErrMissingEndpoint = errors.New("syncclient: subsite has no api url")

// syncRequest is the JSON body of an outbound order delivery.
type syncRequest struct {
	OrderSN       string         `json:"order_sn"`
	GoodsName     string         `json:"goods_name"`
	GoodsPrice    float64        `json:"goods_price"`
	Quantity      int            `json:"quantity"`
	TotalPrice    float64        `json:"total_price"`
	Email         string         `json:"email,omitempty"`
	Contact       string         `json:"contact,omitempty"`
	Status        string         `json:"status"`
	CreatedAt     string         `json:"created_at"`
	SKUCode       string         `json:"sku_code,omitempty"`
	SKUName       string         `json:"sku_name,omitempty"`
	SKUAttributes map[string]any `json:"sku_attributes,omitempty"`
}

// syncResponse is the acknowledged shape; order_sn is the remote reference.
type syncResponse struct {
	OrderSN string `json:"order_sn"`
}

// Option mutates the client during construction.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger installs a structured event logger.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client delivers fan-out rows to third-party subsites over HTTP. It
// implements services.SyncDeliverer.
type Client struct {
	httpClient *http.Client
	logger     func(ctx context.Context, event string, fields map[string]any)
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver posts one fan-out row to the subsite and returns the remote order
// serial. A duplicate response means the remote already holds the order; the
// caller treats that as delivered.
func (c *Client) Deliver(ctx context.Context, subsite domain.Subsite, row domain.SubsiteOrder) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", errors.New("syncclient: not initialised")
	}
	endpoint, err := subsiteEndpoint(subsite, syncPath)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(buildSyncRequest(row))
	if err != nil {
		return "", fmt.Errorf("syncclient: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, subsiteTimeout(subsite))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("syncclient: build request: %w", err)
	}
	applyCredentials(req, subsite)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("syncclient: deliver %s: %w", row.OrderSerial, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ack syncResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			// An acknowledged delivery without a parseable body still counts.
			c.logger(ctx, "syncclient.ack_decode_failed", map[string]any{
				"subsiteId":   subsite.ID,
				"orderSerial": row.OrderSerial,
				"error":       err.Error(),
			})
			return "", nil
		}
		return strings.TrimSpace(ack.OrderSN), nil
	case resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("%w: %s", services.ErrDuplicateRemoteOrder, row.OrderSerial)
	default:
		return "", fmt.Errorf("syncclient: deliver %s: %s: %s", row.OrderSerial, resp.Status, readErrorBody(resp.Body))
	}
}

// Ping probes the subsite's test endpoint with its stored credentials.
func (c *Client) Ping(ctx context.Context, subsite domain.Subsite) error {
	if c == nil || c.httpClient == nil {
		return errors.New("syncclient: not initialised")
	}
	endpoint, err := subsiteEndpoint(subsite, testPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, subsiteTimeout(subsite))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("syncclient: build request: %w", err)
	}
	applyCredentials(req, subsite)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("syncclient: ping %s: %w", subsite.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("syncclient: ping %s: %s: %s", subsite.ID, resp.Status, readErrorBody(resp.Body))
	}
	return nil
}

// buildSyncRequest maps the frozen payload onto the wire contract. Missing
// payload fields fall back to zero values rather than failing the delivery.
func buildSyncRequest(row domain.SubsiteOrder) syncRequest {
	req := syncRequest{
		OrderSN:    row.OrderSerial,
		GoodsName:  payloadString(row.Payload, "goodsName"),
		GoodsPrice: domain.CentsToFloat(payloadInt64(row.Payload, "goodsPriceCents")),
		Quantity:   int(payloadInt64(row.Payload, "quantity")),
		TotalPrice: domain.CentsToFloat(payloadInt64(row.Payload, "totalCents")),
		Email:      payloadString(row.Payload, "email"),
		Contact:    payloadString(row.Payload, "contact"),
		Status:     payloadString(row.Payload, "status"),
		CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
		SKUCode:    payloadString(row.Payload, "skuCode"),
		SKUName:    payloadString(row.Payload, "skuName"),
	}
	if attrs, ok := row.Payload["skuAttributes"].(map[string]any); ok && len(attrs) > 0 {
		req.SKUAttributes = attrs
	}
	return req
}

func subsiteEndpoint(subsite domain.Subsite, path string) (string, error) {
	base := strings.TrimSpace(subsite.APIURL)
	if base == "" {
		return "", ErrMissingEndpoint
	}
	return strings.TrimRight(base, "/") + path, nil
}

func subsiteTimeout(subsite domain.Subsite) time.Duration {
	if subsite.Settings.Timeout > 0 {
		return subsite.Settings.Timeout
	}
	return defaultTimeout
}

func applyCredentials(req *http.Request, subsite domain.Subsite) {
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(subsite.APIKey))
	req.Header.Set(secretHeader, strings.TrimSpace(subsite.APISecret))
}

func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}
	return strings.TrimSpace(string(raw))
}

// payloadString reads a string field from an opaque payload map.
func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// payloadInt64 reads a numeric field, tolerating the float64 shape Firestore
// and JSON decoding produce for numbers.
func payloadInt64(payload map[string]any, key string) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
