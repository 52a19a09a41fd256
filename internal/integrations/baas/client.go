// Package baas implements entity.Client against a hosted backend-as-a-service
// that exposes entity collections over REST.
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"crm-api/internal/domain"
	"crm-api/internal/entity"
	"crm-api/internal/http/client"
	"crm-api/internal/observability/logger"

	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("baas: status %d: %s", e.Status, e.Body)
}

// Client talks to {baseURL}/entities/{type}[/{id}].
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

var _ entity.Client = (*Client)(nil)

// NewClient creates a client authenticating with apiKey as a bearer token.
func NewClient(baseURL, apiKey string, log *logger.Logger) *Client {
	return NewClientWithHTTP(baseURL, client.NewExternalHTTPClient(client.WithBearer(apiKey)), log)
}

// NewClientWithHTTP uses a caller-provided http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
	}
}

type createBody struct {
	Data      map[string]any `json:"data"`
	CreatedBy string         `json:"created_by,omitempty"`
}

func (c *Client) List(ctx context.Context, t domain.EntityType, opts domain.ListOptions) ([]domain.Record, error) {
	return c.Filter(ctx, t, nil, opts)
}

func (c *Client) Filter(ctx context.Context, t domain.EntityType, predicate map[string]any, opts domain.ListOptions) ([]domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	if err := entity.CheckPredicate(predicate); err != nil {
		return nil, err
	}
	opts.Normalize()
	if err := entity.CheckSort(opts); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sort", opts.Sort)
	q.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.CreatedBy != nil {
		q.Set("created_by", *opts.CreatedBy)
	}
	if len(predicate) > 0 {
		raw, err := json.Marshal(predicate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrInvalidPredicate, err)
		}
		q.Set("q", string(raw))
	}

	var out []domain.Record
	if err := c.do(ctx, "filter", http.MethodGet, c.collection(t)+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, t domain.EntityType, id string) (*domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := c.do(ctx, "get", http.MethodGet, c.item(t, id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Create(ctx context.Context, t domain.EntityType, data map[string]any, actorID string) (*domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := c.do(ctx, "create", http.MethodPost, c.collection(t), createBody{Data: data, CreatedBy: actorID}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Update(ctx context.Context, t domain.EntityType, id string, patch map[string]any) (*domain.Record, error) {
	if err := entity.CheckType(t); err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := c.do(ctx, "update", http.MethodPatch, c.item(t, id), patch, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Delete(ctx context.Context, t domain.EntityType, id string) error {
	if err := entity.CheckType(t); err != nil {
		return err
	}
	return c.do(ctx, "delete", http.MethodDelete, c.item(t, id), nil, nil)
}

func (c *Client) collection(t domain.EntityType) string {
	return c.baseURL + "/entities/" + url.PathEscape(string(t))
}

func (c *Client) item(t domain.EntityType, id string) string {
	return c.collection(t) + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, action, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error(ctx, "baas request failed",
			logger.Module("baas"),
			logger.Action(action),
			zap.String("method", method),
			zap.Error(err),
		)
		return fmt.Errorf("baas request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return entity.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Warn(ctx, "baas returned non-2xx status",
			logger.Module("baas"),
			logger.Action(action),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
