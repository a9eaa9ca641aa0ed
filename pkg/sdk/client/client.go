// Package client is the Go SDK for the swarmorch control-plane REST API.
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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swarmorch/internal/catalog"
	"swarmorch/internal/cluster"
	"swarmorch/internal/errdefs"
	"swarmorch/internal/health"
	"swarmorch/internal/nodes"
	"swarmorch/internal/reconcile"
	"swarmorch/internal/registry"
	"swarmorch/pkg/sdk/types"
)

const (
	envEndpoint     = "SWARMORCH_ENDPOINT"
	defaultEndpoint = "http://localhost:8080"
	defaultTimeout  = 60 * time.Second
)

// DefaultEndpoint returns SWARMORCH_ENDPOINT or the local default.
func DefaultEndpoint() string {
	if fromEnv := strings.TrimSpace(os.Getenv(envEndpoint)); fromEnv != "" {
		return fromEnv
	}
	return defaultEndpoint
}

// API is the control-plane surface. The daemon's manager implements it
// in-process; Client implements it over HTTP.
type API interface {
	Info(ctx context.Context) (types.ServerInfo, error)
	ClusterHealth(ctx context.Context) (health.ClusterHealth, error)

	ListNodes(ctx context.Context) ([]cluster.Node, error)
	GetNode(ctx context.Context, ref string) (cluster.Node, error)
	DrainNode(ctx context.Context, ref string) (nodes.Result, error)
	ActivateNode(ctx context.Context, ref string) (nodes.Result, error)

	ListServices(ctx context.Context) ([]reconcile.ResolvedService, error)
	ListLiveServices(ctx context.Context) ([]cluster.LiveService, error)
	GetService(ctx context.Context, name string) (reconcile.ResolvedService, error)
	RegisterService(ctx context.Context, req types.ServiceRequest) (catalog.Entry, error)
	UpdateService(ctx context.Context, name string, patch types.ServicePatch) (catalog.Entry, error)
	DeleteService(ctx context.Context, name string) error
	PurgeService(ctx context.Context, name string) (reconcile.PurgeResult, error)
	ImportCompose(ctx context.Context, compose []byte, project string) ([]reconcile.ImportResult, error)
	TriggerReconcile(ctx context.Context) (reconcile.CycleResult, error)
	DeployService(ctx context.Context, name string) (reconcile.DeployResult, error)
	StopService(ctx context.Context, name string) (reconcile.StopResult, error)
	ScaleService(ctx context.Context, name string, replicas int) (reconcile.ScaleResult, error)
	ServiceLogs(ctx context.Context, name string, tail int) (types.Logs, error)

	ListRepositories(ctx context.Context) ([]registry.Repository, error)
	GetRepository(ctx context.Context, name string) (registry.RepositoryDetail, error)
	ListTags(ctx context.Context, name string) ([]string, error)
	DeleteTag(ctx context.Context, name, tag string) (registry.DeleteResult, error)
}

var _ API = (*Client)(nil)

// Client talks to a control-plane server. GETs are retried on transport
// failures and 5xx answers; commands are sent once.
type Client struct {
	base   *url.URL
	reads  *retryablehttp.Client
	writes *http.Client
}

func New(endpoint string) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint()
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", endpoint)
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)
	reads := retryablehttp.NewClient()
	reads.RetryMax = 2
	reads.Logger = nil
	reads.HTTPClient = &http.Client{Transport: transport, Timeout: defaultTimeout}
	// Hand non-2xx answers back to decodeError instead of a generic
	// "giving up" error.
	reads.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		base:   base,
		reads:  reads,
		writes: &http.Client{Transport: transport, Timeout: defaultTimeout},
	}, nil
}

func (c *Client) Endpoint() string { return c.base.String() }

func (c *Client) url(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url(path, query), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.reads.Do(req)
	if err != nil {
		return transportErr(err)
	}
	return decodeResponse(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	switch v := in.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(v)
		contentType = "application/yaml"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, c.url(path, nil), body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.writes.Do(req)
	if err != nil {
		return transportErr(err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds the server's error kind so callers can use the
// errdefs predicates on SDK errors.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body types.ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	if sentinel := errdefs.ParseKind(body.Kind).Sentinel(); sentinel != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error, kind: sentinel}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}

func transportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, errdefs.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%v: %w", err, errdefs.ErrUpstreamUnavailable)
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.kind }

func (c *Client) Info(ctx context.Context) (types.ServerInfo, error) {
	var out types.ServerInfo
	err := c.get(ctx, "/health", nil, &out)
	return out, err
}

func (c *Client) ClusterHealth(ctx context.Context) (health.ClusterHealth, error) {
	var out health.ClusterHealth
	err := c.get(ctx, "/health/detailed", nil, &out)
	return out, err
}

func (c *Client) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	var out []cluster.Node
	err := c.get(ctx, "/nodes", nil, &out)
	return out, err
}

func (c *Client) GetNode(ctx context.Context, ref string) (cluster.Node, error) {
	var out cluster.Node
	err := c.get(ctx, "/nodes/"+url.PathEscape(ref), nil, &out)
	return out, err
}

func (c *Client) DrainNode(ctx context.Context, ref string) (nodes.Result, error) {
	var out nodes.Result
	err := c.send(ctx, http.MethodPost, "/nodes/"+url.PathEscape(ref)+"/drain", nil, &out)
	return out, err
}

func (c *Client) ActivateNode(ctx context.Context, ref string) (nodes.Result, error) {
	var out nodes.Result
	err := c.send(ctx, http.MethodPost, "/nodes/"+url.PathEscape(ref)+"/activate", nil, &out)
	return out, err
}

func (c *Client) ListServices(ctx context.Context) ([]reconcile.ResolvedService, error) {
	var out []reconcile.ResolvedService
	err := c.get(ctx, "/services", nil, &out)
	return out, err
}

func (c *Client) ListLiveServices(ctx context.Context) ([]cluster.LiveService, error) {
	var out []cluster.LiveService
	err := c.get(ctx, "/services/live", nil, &out)
	return out, err
}

func (c *Client) GetService(ctx context.Context, name string) (reconcile.ResolvedService, error) {
	var out reconcile.ResolvedService
	err := c.get(ctx, "/services/"+url.PathEscape(name), nil, &out)
	return out, err
}

func (c *Client) RegisterService(ctx context.Context, req types.ServiceRequest) (catalog.Entry, error) {
	var out catalog.Entry
	err := c.send(ctx, http.MethodPost, "/services", req, &out)
	return out, err
}

func (c *Client) UpdateService(ctx context.Context, name string, patch types.ServicePatch) (catalog.Entry, error) {
	var out catalog.Entry
	err := c.send(ctx, http.MethodPut, "/services/"+url.PathEscape(name), patch, &out)
	return out, err
}

func (c *Client) DeleteService(ctx context.Context, name string) error {
	return c.send(ctx, http.MethodDelete, "/services/"+url.PathEscape(name), nil, nil)
}

// PurgeService removes the live service as well as the catalog entry.
func (c *Client) PurgeService(ctx context.Context, name string) (reconcile.PurgeResult, error) {
	var out reconcile.PurgeResult
	err := c.do(ctx, http.MethodDelete, c.url("/services/"+url.PathEscape(name), url.Values{"purge": {"true"}}), nil, "", &out)
	return out, err
}

func (c *Client) ImportCompose(ctx context.Context, compose []byte, project string) ([]reconcile.ImportResult, error) {
	var query url.Values
	if project != "" {
		query = url.Values{"project": {project}}
	}
	var out []reconcile.ImportResult
	err := c.do(ctx, http.MethodPost, c.url("/services/import", query), bytes.NewReader(compose), "application/yaml", &out)
	return out, err
}

func (c *Client) TriggerReconcile(ctx context.Context) (reconcile.CycleResult, error) {
	var out reconcile.CycleResult
	err := c.send(ctx, http.MethodPost, "/services/reconcile", nil, &out)
	return out, err
}

func (c *Client) DeployService(ctx context.Context, name string) (reconcile.DeployResult, error) {
	var out reconcile.DeployResult
	err := c.send(ctx, http.MethodPost, "/services/"+url.PathEscape(name)+"/deploy", nil, &out)
	return out, err
}

func (c *Client) StopService(ctx context.Context, name string) (reconcile.StopResult, error) {
	var out reconcile.StopResult
	err := c.send(ctx, http.MethodPost, "/services/"+url.PathEscape(name)+"/stop", nil, &out)
	return out, err
}

func (c *Client) ScaleService(ctx context.Context, name string, replicas int) (reconcile.ScaleResult, error) {
	var out reconcile.ScaleResult
	err := c.send(ctx, http.MethodPost, "/services/"+url.PathEscape(name)+"/scale", types.ScaleRequest{Replicas: replicas}, &out)
	return out, err
}

func (c *Client) ServiceLogs(ctx context.Context, name string, tail int) (types.Logs, error) {
	var query url.Values
	if tail > 0 {
		query = url.Values{"tail": {strconv.Itoa(tail)}}
	}
	var out types.Logs
	err := c.get(ctx, "/services/"+url.PathEscape(name)+"/logs", query, &out)
	return out, err
}

func (c *Client) ListRepositories(ctx context.Context) ([]registry.Repository, error) {
	var out []registry.Repository
	err := c.get(ctx, "/registry/repositories", nil, &out)
	return out, err
}

// Repository names may contain slashes; they are sent unescaped.
func (c *Client) GetRepository(ctx context.Context, name string) (registry.RepositoryDetail, error) {
	var out registry.RepositoryDetail
	err := c.get(ctx, "/registry/repositories/"+name+"/details", nil, &out)
	return out, err
}

func (c *Client) ListTags(ctx context.Context, name string) ([]string, error) {
	var out types.Tags
	err := c.get(ctx, "/registry/repositories/"+name+"/tags", nil, &out)
	return out.Tags, err
}

func (c *Client) DeleteTag(ctx context.Context, name, tag string) (registry.DeleteResult, error) {
	var out registry.DeleteResult
	err := c.send(ctx, http.MethodDelete, "/registry/repositories/"+name+"/tags/"+url.PathEscape(tag), nil, &out)
	return out, err
}
