// Package client talks to the low-poly HTTP service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Endpoint is the path of the rendering endpoint.
const Endpoint = "/low_poly_image/"

// maxErrorBody bounds how much of an error response is read for a detail.
const maxErrorBody = 64 << 10

// Upload is the image sent to the service.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Params are the two tunable rendering parameters.
type Params struct {
	NumPoints   int
	DetailLevel int
}

// Image is a successful response body.
type Image struct {
	ContentType string
	Data        []byte
}

// Client issues rendering requests against one server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("lowpoly_client")
		}
	}
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LowPolyImage posts upload with params and returns the rendered image. Every
// failure is a *TransportError. Exactly one request is made; there is no retry.
func (c *Client) LowPolyImage(ctx context.Context, upload Upload, params Params) (*Image, error) {
	body, contentType, err := encodeForm(upload, params)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Endpoint, body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.Error(err))
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("response received",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(raw),
			Err:        fmt.Errorf("request failed with status code %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return &Image{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

func encodeForm(upload Upload, params Params) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, upload.Filename))
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("num_points", strconv.Itoa(params.NumPoints)); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("detail_level", strconv.Itoa(params.DetailLevel)); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// parseDetail extracts a string "detail" field from a JSON error body.
func parseDetail(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		return detail
	}
	// Validation errors carry structured details; keep them readable.
	return string(payload.Detail)
}
