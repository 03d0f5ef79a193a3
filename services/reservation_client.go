package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Identity headers the stock surface authenticates on. These mirror the
// gateway headers the middleware trusts.
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

// ReservationClient implements ReservationEngine against a remote reservation
// service over its HTTP surface. Every call carries the configured service
// principal, since the stock endpoints sit behind the same role checks as any
// other caller. Calls are synchronous and blocking; any transport failure is
// a hard abort surfaced as ErrDownstreamUnavailable, never retried here.
type ReservationClient struct {
	baseURL string
	service Principal
	client  *http.Client
}

// NewReservationClient creates a client for the engine at baseURL, acting as
// the given service principal.
func NewReservationClient(baseURL string, service Principal) *ReservationClient {
	return &ReservationClient{
		baseURL: baseURL,
		service: service,
		client:  &http.Client{},
	}
}

// Reserve calls the remote reserve operation.
func (c *ReservationClient) Reserve(ctx context.Context, items []StockItem) error {
	return c.post(ctx, "reserve", items)
}

// Release calls the remote release operation.
func (c *ReservationClient) Release(ctx context.Context, items []StockItem) error {
	return c.post(ctx, "release", items)
}

// Ship calls the remote ship operation.
func (c *ReservationClient) Ship(ctx context.Context, items []StockItem) error {
	return c.post(ctx, "ship", items)
}

// Restock calls the remote restock operation.
func (c *ReservationClient) Restock(ctx context.Context, items []StockItem) error {
	return c.post(ctx, "restock", items)
}

// ReturnStock calls the remote return operation.
func (c *ReservationClient) ReturnStock(ctx context.Context, items []StockItem) error {
	return c.post(ctx, "return", items)
}

type stockRequest struct {
	Items []StockItem `json:"items"`
}

type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post performs one engine call and maps the response envelope back to the
// typed failure kinds.
func (c *ReservationClient) post(ctx context.Context, op string, items []StockItem) error {
	body, err := json.Marshal(stockRequest{Items: items})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/stock/%s", c.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, strconv.FormatUint(uint64(c.service.UserID), 10))
	req.Header.Set(headerRole, c.service.Role)

	resp, err := c.client.Do(req)
	if err != nil {
		return failf(ErrDownstreamUnavailable, "reservation engine %s: %v", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return failf(ErrDownstreamUnavailable, "reservation engine %s: unexpected status %d", op, resp.StatusCode)
	}

	kind := kindForCode(envelope.Error.Code)
	return failf(kind, "reservation engine %s: %s", op, envelope.Error.Message)
}

// kindForCode maps a remote error code back onto the local failure kinds.
func kindForCode(code string) error {
	switch code {
	case ErrInsufficientStock.Error():
		return ErrInsufficientStock
	case ErrInsufficientWarehouseStock.Error():
		return ErrInsufficientWarehouseStock
	case ErrNotFound.Error():
		return ErrNotFound
	case ErrValidation.Error():
		return ErrValidation
	case ErrUnauthorized.Error():
		return ErrUnauthorized
	case ErrForbidden.Error():
		return ErrForbidden
	default:
		return ErrDownstreamUnavailable
	}
}
