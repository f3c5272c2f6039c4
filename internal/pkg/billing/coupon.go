package billing

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
)

// CouponRedeemer confirms a coupon with the external coupon service.
// Claim bookkeeping is the caller's job.
type CouponRedeemer interface {
	Redeem(ctx context.Context, code string) (bool, error)
}

type HTTPCouponClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPCouponClient(baseURL, apiKey string) *HTTPCouponClient {
	return &HTTPCouponClient{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Redeem posts {"code": code} and returns the service's success flag.
func (c *HTTPCouponClient) Redeem(ctx context.Context, code string) (bool, error) {
	if c.BaseURL == "" {
		return false, errors.New("coupon service url is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false, errors.New("coupon code is required")
	}

	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/redeem", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("coupon redemption failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return false, fmt.Errorf("invalid coupon response: %w", err)
	}
	return out.Success, nil
}
