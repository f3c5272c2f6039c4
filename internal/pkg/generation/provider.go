package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ProviderRequest is one artwork generation call.
type ProviderRequest struct {
	UserID    string
	ProjectID string
	Style     string
	Image     *PreparedImage
}

// ProviderResult is what the provider returned.
type ProviderResult struct {
	ImageURL string `json:"imageUrl"`
	Preview  string `json:"previewUrl,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Provider generates artwork from a prepared source image.
type Provider interface {
	Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
}

// HTTPProvider posts the image as multipart form data to the generation API.
type HTTPProvider struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPProvider(url, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		URL:    strings.TrimSpace(url),
		APIKey: strings.TrimSpace(apiKey),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (p *HTTPProvider) Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	if p.URL == "" {
		return nil, errors.New("generation api url is not configured")
	}
	if req.Image == nil {
		return nil, errors.New("image is required")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, value := range map[string]string{"projectId": req.ProjectID, "style": req.Style} {
		if value == "" {
			continue
		}
		if err := w.WriteField(field, value); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile("image", req.ProjectID+".jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generation request failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out ProviderResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("invalid generation response: %w", err)
	}
	if strings.TrimSpace(out.ImageURL) == "" {
		return nil, errors.New("generation response missing image url")
	}
	return &out, nil
}
