// Package client is a Go client for the botkit HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/botkit/internal/api"
	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/render"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("botkit: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the botkit API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends body as JSON and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, method, path, "", body, out)
}

// send is do with a model password carried in api.PasswordHeader, for requests without a body.
func (c *Client) send(ctx context.Context, method, path, password string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if password != "" {
		req.Header.Set(api.PasswordHeader, password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == "" {
			env.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

type passwordRequest struct {
	Password string `json:"password,omitempty"`
}

// Info returns the server version, engine specs and languages.
func (c *Client) Info(ctx context.Context) (*api.Info, error) {
	var resp struct {
		Info api.Info `json:"info"`
	}
	if err := c.do(ctx, http.MethodGet, "/info", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Info, nil
}

// Train starts training input and returns the model id.
func (c *Client) Train(ctx context.Context, input *domain.TrainInput) (string, error) {
	var resp struct {
		ModelID string `json:"modelId"`
	}
	if err := c.do(ctx, http.MethodPost, "/train", input, &resp); err != nil {
		return "", err
	}
	return resp.ModelID, nil
}

// TrainingSession returns the training status of modelID.
func (c *Client) TrainingSession(ctx context.Context, modelID, password string) (*domain.TrainSession, error) {
	var resp struct {
		Session domain.TrainSession `json:"session"`
	}
	if err := c.send(ctx, http.MethodGet, "/train/"+url.PathEscape(modelID), password, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// CancelTraining requests cancellation of a running training.
func (c *Client) CancelTraining(ctx context.Context, modelID, password string) error {
	return c.do(ctx, http.MethodPost, "/train/"+url.PathEscape(modelID)+"/cancel", passwordRequest{Password: password}, nil)
}

// Predict runs sentence through modelID.
func (c *Client) Predict(ctx context.Context, modelID, password, sentence string) (*domain.Prediction, error) {
	body := struct {
		Sentence string `json:"sentence"`
		Password string `json:"password,omitempty"`
	}{Sentence: sentence, Password: password}

	var resp struct {
		Prediction domain.Prediction `json:"prediction"`
	}
	if err := c.do(ctx, http.MethodPost, "/predict/"+url.PathEscape(modelID), body, &resp); err != nil {
		return nil, err
	}
	return &resp.Prediction, nil
}

// ListModels returns the models reachable with password.
func (c *Client) ListModels(ctx context.Context, password string) ([]domain.Model, error) {
	var resp struct {
		Models []domain.Model `json:"models"`
	}
	if err := c.send(ctx, http.MethodGet, "/models", password, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// DeleteModel removes a persisted model.
func (c *Client) DeleteModel(ctx context.Context, modelID, password string) error {
	return c.do(ctx, http.MethodDelete, "/models/"+url.PathEscape(modelID), passwordRequest{Password: password}, nil)
}

// Render asks the server to render carousel for channel.
func (c *Client) Render(ctx context.Context, channel string, carousel render.Carousel) (json.RawMessage, error) {
	body := struct {
		Channel  string          `json:"channel"`
		Carousel render.Carousel `json:"carousel"`
	}{Channel: channel, Carousel: carousel}

	var resp struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, "/content/render", body, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}
