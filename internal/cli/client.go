package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/olyamironova/swap-router/internal/api/dto"
)

// apiClient talks to the router's REST surface.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("router returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Body.Error, e.Body.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *apiClient) Market(ctx context.Context, address string) (dto.MarketSummary, error) {
	var m dto.MarketSummary
	err := c.do(ctx, http.MethodGet, "/v1/markets/"+address, nil, &m)
	return m, err
}

func (c *apiClient) Markets(ctx context.Context) ([]dto.MarketSummary, error) {
	var ms []dto.MarketSummary
	err := c.do(ctx, http.MethodGet, "/v1/markets", nil, &ms)
	return ms, err
}

func (c *apiClient) Slot(ctx context.Context) (uint64, error) {
	var s dto.SlotResponse
	if err := c.do(ctx, http.MethodGet, "/v1/slot", nil, &s); err != nil {
		return 0, err
	}
	return strconv.ParseUint(s.Slot, 10, 64)
}

func (c *apiClient) Swap(ctx context.Context, req dto.SwapRequest, dryRun bool) (dto.SwapResponse, error) {
	path := "/v1/swaps"
	if dryRun {
		path += "/quote"
	}
	var res dto.SwapResponse
	err := c.do(ctx, http.MethodPost, path, req, &res)
	return res, err
}
