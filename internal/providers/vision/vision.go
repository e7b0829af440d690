// Package vision is the HTTP client for the external computer-vision service.
// It implements the narrow provider contracts the extraction strategies and
// the verification manager consume: PDF417 decoding, OCR, face comparison,
// and liveness analysis. The vision internals stay on the other side of the
// wire.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client calls the vision service. A nil Client is a valid "not configured"
// provider; strategies consuming it report unavailable.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func New(client *http.Client, baseURL, apiKey string) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{client: client, baseURL: baseURL, apiKey: apiKey}
}

// DecodePDF417 returns the raw machine-readable payload from a barcode image.
func (c *Client) DecodePDF417(ctx context.Context, image []byte) (string, error) {
	var resp struct {
		Payload string `json:"payload"`
	}
	if err := c.post(ctx, "/v1/pdf417/decode", image, nil, &resp); err != nil {
		return "", err
	}
	return resp.Payload, nil
}

// Recognize runs OCR over the image and returns the recognized text with the
// service's page-level confidence.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	var resp struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.post(ctx, "/v1/ocr/recognize", image, nil, &resp); err != nil {
		return "", 0, err
	}
	return resp.Text, resp.Confidence, nil
}

// Compare returns the similarity score between the faces in two images.
func (c *Client) Compare(ctx context.Context, a, b []byte) (float64, error) {
	var resp struct {
		Score float64 `json:"score"`
	}
	if err := c.post(ctx, "/v1/faces/compare", a, b, &resp); err != nil {
		return 0, err
	}
	return resp.Score, nil
}

// Liveness scores how likely the capture shows a live subject performing the
// challenge.
func (c *Client) Liveness(ctx context.Context, image []byte, challenge string) (float64, error) {
	body, err := json.Marshal(map[string]string{
		"image":     base64.StdEncoding.EncodeToString(image),
		"challenge": challenge,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal liveness request: %w", err)
	}
	var resp struct {
		Score float64 `json:"score"`
	}
	if err := c.do(ctx, "/v1/faces/liveness", body, &resp); err != nil {
		return 0, err
	}
	return resp.Score, nil
}

func (c *Client) post(ctx context.Context, path string, image, secondImage []byte, out any) error {
	payload := map[string]string{
		"image": base64.StdEncoding.EncodeToString(image),
	}
	if secondImage != nil {
		payload["second_image"] = base64.StdEncoding.EncodeToString(secondImage)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal vision request: %w", err)
	}
	return c.do(ctx, path, body, out)
}

func (c *Client) do(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call vision service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("vision service %s returned %d: %s", path, resp.StatusCode, detail)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode vision response: %w", err)
	}
	return nil
}
