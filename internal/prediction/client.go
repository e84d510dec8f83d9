package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/tidwall/gjson"

	"github.com/candlelens/candlelens/internal/failure"
)

const defaultBaseURL = "https://api.replicate.com"

// SubmitRequest describes a prediction to create.
type SubmitRequest struct {
	Version string
	Input   any
	// Wait asks the server to hold the response until the prediction
	// finishes or its own wait window elapses.
	Wait bool
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client is an authenticated predictions API client.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a predictions client using a bearer token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type submitBody struct {
	Version string `json:"version"`
	Input   any    `json:"input"`
}

// Submit creates a prediction.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Handle, error) {
	body, err := json.Marshal(submitBody{Version: req.Version, Input: req.Input})
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Wait {
		httpReq.Header.Set("Prefer", "wait")
	}

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	return decodeHandle(respBody)
}

// Get fetches the current state of a prediction.
func (c *Client) Get(ctx context.Context, id string) (*Handle, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	return decodeHandle(respBody)
}

// UploadFile stages data in the provider's file storage and returns a URL
// that predictions can reference.
func (c *Client) UploadFile(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="content"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", &buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	respBody, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	url := gjson.GetBytes(respBody, "urls.get")
	if url.Type != gjson.String || url.Str == "" {
		return "", failure.New(failure.Parse, "upload response missing urls.get").WithRaw(string(respBody))
	}
	return url.Str, nil
}

// do sends an authenticated request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.Transport, err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Wrap(failure.Transport, err, "read %s response", req.URL.Path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(body)
		if d := gjson.GetBytes(body, "detail"); d.Type == gjson.String {
			detail = d.Str
		}
		return nil, failure.New(failure.Upstream, "replicate API error (%d): %s", resp.StatusCode, detail)
	}
	return body, nil
}
