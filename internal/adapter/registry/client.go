// Package registry talks to an OCI distribution registry over HTTP.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opencontainers/go-digest"

	"swarmorch/internal/errdefs"
	"swarmorch/internal/registry"
)

var _ registry.Client = (*Client)(nil)

const (
	mediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"

	defaultRetryMax = 3
	defaultTimeout  = 10 * time.Second
	pageSize        = 100
	maxManifestSize = 4 << 20
)

type Config struct {
	URL      string
	Username string
	Password string
	// RetryMax bounds retries of read requests. Zero selects the default.
	RetryMax int
	Timeout  time.Duration
}

// Client implements registry.Client. Reads go through a retrying client
// with exponential backoff; deletes are sent once.
type Client struct {
	base     *url.URL
	username string
	password string
	reads    *retryablehttp.Client
	writes   *http.Client
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if raw == "" {
		return nil, errdefs.Invalid("registry_url", "is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errdefs.Invalid("registry_url", fmt.Sprintf("%q is not an absolute URL", cfg.URL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}

	reads := retryablehttp.NewClient()
	reads.RetryMax = retryMax
	reads.RetryWaitMin = 200 * time.Millisecond
	reads.RetryWaitMax = 2 * time.Second
	reads.Backoff = retryablehttp.DefaultBackoff
	reads.HTTPClient.Timeout = timeout
	reads.Logger = slog.With("component", "registry-http")

	return &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		reads:    reads,
		writes:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) get(ctx context.Context, method, rawURL string, accept ...string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create registry request: %w", err)
	}
	if len(accept) > 0 {
		req.Header.Set("Accept", strings.Join(accept, ", "))
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.reads.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

type catalogPage struct {
	Repositories []string `json:"repositories"`
}

func (c *Client) Repositories(ctx context.Context) ([]string, error) {
	out := []string{}
	err := c.paginate(ctx, c.endpoint("/v2/_catalog"), func(body io.Reader) error {
		var page catalogPage
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return fmt.Errorf("decode catalog: %w", err)
		}
		out = append(out, page.Repositories...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return out, nil
}

type tagsPage struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (c *Client) Tags(ctx context.Context, repo string) ([]string, error) {
	out := []string{}
	err := c.paginate(ctx, c.endpoint("/v2/"+repo+"/tags/list"), func(body io.Reader) error {
		var page tagsPage
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return fmt.Errorf("decode tags: %w", err)
		}
		out = append(out, page.Tags...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", repo, err)
	}
	return out, nil
}

// paginate follows rel="next" Link headers until the last page.
func (c *Client) paginate(ctx context.Context, first string, page func(io.Reader) error) error {
	u, err := url.Parse(first)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("n", fmt.Sprint(pageSize))
	u.RawQuery = q.Encode()

	next := u.String()
	for next != "" {
		resp, err := c.get(ctx, http.MethodGet, next, "application/json")
		if err != nil {
			return err
		}
		err = page(resp.Body)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if err != nil {
			return err
		}
		next, err = c.nextPage(link)
		if err != nil {
			return err
		}
	}
	return nil
}

// nextPage extracts the target of a `<url>; rel="next"` Link header,
// resolved against the registry base.
func (c *Client) nextPage(link string) (string, error) {
	for part := range strings.SplitSeq(link, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start, end := strings.Index(part, "<"), strings.Index(part, ">")
		if start < 0 || end <= start {
			return "", fmt.Errorf("malformed Link header %q", link)
		}
		ref, err := url.Parse(part[start+1 : end])
		if err != nil {
			return "", fmt.Errorf("malformed Link header %q: %w", link, err)
		}
		return c.base.ResolveReference(ref).String(), nil
	}
	return "", nil
}

// DeleteManifest sends a single DELETE. Registries that do not allow
// deletion answer 405, which is reported as a conflict.
func (c *Client) DeleteManifest(ctx context.Context, repo string, dgst digest.Digest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/v2/"+repo+"/manifests/"+dgst.String()), nil)
	if err != nil {
		return fmt.Errorf("create registry request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.writes.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s@%s: %w", repo, dgst, transportError(err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("delete %s@%s: %w", repo, dgst, statusError(resp))
	}
}

type registryErrors struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// statusError maps a non-success response onto the error taxonomy.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body registryErrors
	_ = json.Unmarshal(data, &body)

	detail := strings.TrimSpace(string(data))
	unsupported := false
	if len(body.Errors) > 0 {
		e := body.Errors[0]
		detail = strings.TrimSpace(e.Code + ": " + e.Message)
		for _, e := range body.Errors {
			if e.Code == "UNSUPPORTED" {
				unsupported = true
			}
		}
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = errdefs.ErrNotFound
	case resp.StatusCode == http.StatusMethodNotAllowed || unsupported:
		kind = errdefs.ErrConflict
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = errdefs.ErrUpstreamUnavailable
	case resp.StatusCode >= 500:
		kind = errdefs.ErrUpstreamUnavailable
	default:
		return fmt.Errorf("registry status %d: %s", resp.StatusCode, detail)
	}
	return fmt.Errorf("registry status %d: %s: %w", resp.StatusCode, detail, kind)
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, errdefs.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%v: %w", err, errdefs.ErrUpstreamUnavailable)
}

func contentType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}
