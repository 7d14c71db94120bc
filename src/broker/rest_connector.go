// REST reference implementation of the broker adapter.
// RESTY ONLY + INTERNAL RETRY FOR READS
package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradeengine/src/model"
)

const (
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
	defaultRequestTimeout  = 15 * time.Second
)

// apiResponse is the broker's envelope: code 0 means accepted, any other
// code is an explicit rejection with msg for the operator log.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type orderPayload struct {
	OrderID        string  `json:"orderId"`
	Status         string  `json:"status"`
	FilledPrice    float64 `json:"filledPrice"`
	FilledQuantity int64   `json:"filledQty"`
	FilledAt       *int64  `json:"filledAtMs,omitempty"`
}

type fundsPayload struct {
	AvailableCash float64 `json:"availableCash"`
}

// RESTConnector talks to a broker gateway over signed HTTP calls. Only
// idempotent reads are retried by the underlying client; writes go out
// exactly once and rely on the client order id for manual reconciliation.
type RESTConnector struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
}

func isRetryableRead(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	return (code >= 500 && code <= 599) || code == 429 || code == 408
}

func NewRESTConnector(apiKey, apiSecret, baseURL string, timeout time.Duration) *RESTConnector {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableRead)

	return &RESTConnector{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
	}
}

func (c *RESTConnector) sign(path, body string, expiry int64) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(path + strconv.FormatInt(expiry, 10) + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTConnector) request(ctx context.Context, path, body string) *resty.Request {
	expiry := time.Now().Add(time.Minute).Unix()
	return c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("x-api-expiry", strconv.FormatInt(expiry, 10)).
		SetHeader("x-api-signature", c.sign(path, body, expiry)).
		SetHeader("Content-Type", "application/json")
}

func decodeEnvelope(resp *resty.Response, out interface{}) error {
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("broker http %d: %s", resp.StatusCode(), resp.String())
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("failed to decode broker response: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("%w: code %d: %s", ErrOrderRejected, envelope.Code, envelope.Msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode broker payload: %w", err)
		}
	}
	return nil
}

func (c *RESTConnector) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode order request: %w", err)
	}

	path := "/v1/orders"
	resp, err := c.request(ctx, path, string(body)).
		SetBody(body).
		Post(path)
	if err != nil {
		return "", fmt.Errorf("place order call failed: %w", err)
	}

	var payload orderPayload
	if err := decodeEnvelope(resp, &payload); err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"symbol":          req.Symbol,
			"side":            req.Side,
			"client_order_id": req.ClientOrderID,
		}).Error("broker rejected order placement")
		return "", err
	}

	logger.WithFields(map[string]interface{}{
		"order_id": payload.OrderID,
		"symbol":   req.Symbol,
		"side":     req.Side,
		"qty":      req.Quantity,
	}).Info("order placed")

	return payload.OrderID, nil
}

func (c *RESTConnector) CancelOrder(ctx context.Context, orderID string) error {
	path := "/v1/orders/" + orderID
	resp, err := c.request(ctx, path, "").Delete(path)
	if err != nil {
		return fmt.Errorf("cancel order call failed: %w", err)
	}
	return decodeEnvelope(resp, nil)
}

func (c *RESTConnector) GetOrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	path := "/v1/orders/" + orderID
	resp, err := c.request(ctx, path, "").Get(path)
	if err != nil {
		return OrderState{}, fmt.Errorf("order status call failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return OrderState{}, ErrOrderNotFound
	}

	var payload orderPayload
	if err := decodeEnvelope(resp, &payload); err != nil {
		return OrderState{}, err
	}

	state := OrderState{
		OrderID:        payload.OrderID,
		Status:         model.OrderStatus(payload.Status),
		FilledPrice:    payload.FilledPrice,
		FilledQuantity: payload.FilledQuantity,
	}
	if payload.FilledAt != nil {
		at := time.UnixMilli(*payload.FilledAt).UTC()
		state.FilledAt = &at
	}
	return state, nil
}

func (c *RESTConnector) GetAvailableFunds(ctx context.Context) (float64, error) {
	path := "/v1/account/funds"
	resp, err := c.request(ctx, path, "").Get(path)
	if err != nil {
		return 0, fmt.Errorf("funds call failed: %w", err)
	}

	var payload fundsPayload
	if err := decodeEnvelope(resp, &payload); err != nil {
		return 0, err
	}
	return payload.AvailableCash, nil
}
