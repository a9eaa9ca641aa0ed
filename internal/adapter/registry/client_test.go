package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"swarmorch/internal/errdefs"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, RetryMax: 1, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.reads.RetryWaitMin = time.Millisecond
	c.reads.RetryWaitMax = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, mediaType string, v any) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", mediaType)
	_, _ = w.Write(data)
	return data
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "registry:5000", "   "} {
		if _, err := New(Config{URL: raw}); !errdefs.IsInvalidArgument(err) {
			t.Fatalf("New(%q) error = %v, want invalid argument", raw, err)
		}
	}
}

func TestRepositoriesFollowsPagination(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/_catalog", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("last") == "" {
			w.Header().Set("Link", `</v2/_catalog?last=app&n=100>; rel="next"`)
			writeJSON(w, "application/json", catalogPage{Repositories: []string{"app"}})
			return
		}
		writeJSON(w, "application/json", catalogPage{Repositories: []string{"team/api"}})
	})
	c := newTestClient(t, mux)

	got, err := c.Repositories(t.Context())
	if err != nil {
		t.Fatalf("Repositories() error = %v", err)
	}
	if diff := cmp.Diff([]string{"app", "team/api"}, got); diff != "" {
		t.Fatalf("Repositories() mismatch (-want +got):\n%s", diff)
	}
}

func TestTagsNestedRepository(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/team/api/tags/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "application/json", tagsPage{Name: "team/api", Tags: []string{"v1", "latest"}})
	})
	mux.HandleFunc("GET /v2/empty/tags/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "application/json", map[string]any{"name": "empty", "tags": nil})
	})
	c := newTestClient(t, mux)

	got, err := c.Tags(t.Context(), "team/api")
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if diff := cmp.Diff([]string{"v1", "latest"}, got); diff != "" {
		t.Fatalf("Tags() mismatch (-want +got):\n%s", diff)
	}

	got, err = c.Tags(t.Context(), "empty")
	if err != nil {
		t.Fatalf("Tags(empty) error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Tags(empty) = %#v, want empty non-nil", got)
	}
}

func TestTagsUnknownRepositoryIsNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/missing/tags/list", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"code":"NAME_UNKNOWN","message":"repository name not known to registry"}]}`))
	})
	c := newTestClient(t, mux)

	_, err := c.Tags(t.Context(), "missing")
	if !errdefs.IsNotFound(err) {
		t.Fatalf("Tags() error = %v, want not found", err)
	}
	if !strings.Contains(err.Error(), "NAME_UNKNOWN") {
		t.Fatalf("Tags() error = %q, want registry code in message", err)
	}
}

func TestServerErrorsAreUpstreamUnavailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/_catalog", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)

	_, err := c.Repositories(t.Context())
	if !errdefs.IsUpstreamUnavailable(err) {
		t.Fatalf("Repositories() error = %v, want upstream unavailable", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("catalog calls = %d, want 2 (one retry)", got)
	}
}

func TestUnreachableRegistryIsUpstreamUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{URL: url, RetryMax: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.reads.RetryWaitMin = time.Millisecond
	c.reads.RetryWaitMax = time.Millisecond

	if _, err := c.Repositories(t.Context()); !errdefs.IsUpstreamUnavailable(err) {
		t.Fatalf("Repositories() error = %v, want upstream unavailable", err)
	}
}

func TestDeadlineIsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/_catalog", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Repositories(ctx); !errdefs.IsTimeout(err) {
		t.Fatalf("Repositories() error = %v, want timeout", err)
	}
}

func TestManifestImageWithConfig(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	config := v1.Image{Created: &created, Platform: v1.Platform{Architecture: "arm64", OS: "linux"}}
	configBytes, _ := json.Marshal(config)
	configDigest := digest.FromBytes(configBytes)

	manifest := v1.Manifest{
		MediaType: v1.MediaTypeImageManifest,
		Config:    v1.Descriptor{MediaType: v1.MediaTypeImageConfig, Digest: configDigest, Size: int64(len(configBytes))},
		Layers: []v1.Descriptor{
			{MediaType: v1.MediaTypeImageLayerGzip, Digest: digest.FromString("layer1"), Size: 1000},
			{MediaType: v1.MediaTypeImageLayerGzip, Digest: digest.FromString("layer2"), Size: 2000},
		},
	}
	manifest.SchemaVersion = 2
	manifestBytes, _ := json.Marshal(manifest)
	manifestDigest := digest.FromBytes(manifestBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/app/manifests/latest", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), v1.MediaTypeImageIndex) {
			t.Errorf("Accept = %q, want OCI index accepted", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", v1.MediaTypeImageManifest)
		w.Header().Set("Docker-Content-Digest", manifestDigest.String())
		_, _ = w.Write(manifestBytes)
	})
	mux.HandleFunc("GET /v2/app/blobs/"+configDigest.String(), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(configBytes)
	})
	c := newTestClient(t, mux)

	got, err := c.Manifest(t.Context(), "app", "latest")
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if got.Digest != manifestDigest {
		t.Fatalf("Digest = %s, want %s", got.Digest, manifestDigest)
	}
	if got.MediaType != v1.MediaTypeImageManifest {
		t.Fatalf("MediaType = %q", got.MediaType)
	}
	if want := int64(len(configBytes)) + 3000; got.Size != want {
		t.Fatalf("Size = %d, want %d", got.Size, want)
	}
	if got.Architecture != "arm64" || got.OS != "linux" {
		t.Fatalf("platform = %s/%s, want linux/arm64", got.OS, got.Architecture)
	}
	if !got.Created.Equal(created) {
		t.Fatalf("Created = %v, want %v", got.Created, created)
	}
}

func TestManifestIndex(t *testing.T) {
	t.Parallel()

	index := v1.Index{
		MediaType: v1.MediaTypeImageIndex,
		Manifests: []v1.Descriptor{
			{MediaType: v1.MediaTypeImageManifest, Digest: digest.FromString("att"), Size: 100,
				Platform: &v1.Platform{Architecture: "unknown", OS: "unknown"}},
			{MediaType: v1.MediaTypeImageManifest, Digest: digest.FromString("amd64"), Size: 500,
				Platform: &v1.Platform{Architecture: "amd64", OS: "linux"}},
			{MediaType: v1.MediaTypeImageManifest, Digest: digest.FromString("arm64"), Size: 400,
				Platform: &v1.Platform{Architecture: "arm64", OS: "linux"}},
		},
	}
	index.SchemaVersion = 2

	var body []byte
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/app/manifests/multi", func(w http.ResponseWriter, r *http.Request) {
		body = writeJSON(w, v1.MediaTypeImageIndex, index)
	})
	c := newTestClient(t, mux)

	got, err := c.Manifest(t.Context(), "app", "multi")
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if got.Size != 1000 {
		t.Fatalf("Size = %d, want 1000", got.Size)
	}
	if got.Architecture != "amd64" || got.OS != "linux" {
		t.Fatalf("platform = %s/%s, want linux/amd64", got.OS, got.Architecture)
	}
	if !got.Created.IsZero() {
		t.Fatalf("Created = %v, want zero for index", got.Created)
	}
	if want := digest.FromBytes(body); got.Digest != want {
		t.Fatalf("Digest = %s, want body digest %s", got.Digest, want)
	}
}

func TestManifestDigestUsesHead(t *testing.T) {
	t.Parallel()

	want := digest.FromString("manifest")
	var gets atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/app/manifests/v1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			gets.Add(1)
		}
		w.Header().Set("Docker-Content-Digest", want.String())
	})
	c := newTestClient(t, mux)

	got, err := c.ManifestDigest(t.Context(), "app", "v1")
	if err != nil {
		t.Fatalf("ManifestDigest() error = %v", err)
	}
	if got != want {
		t.Fatalf("ManifestDigest() = %s, want %s", got, want)
	}
	if gets.Load() != 0 {
		t.Fatalf("manifest body fetched %d times, want 0", gets.Load())
	}
}

func TestDeleteManifest(t *testing.T) {
	t.Parallel()

	dgst := digest.FromString("manifest")
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{name: "accepted", status: http.StatusAccepted, check: func(err error) bool { return err == nil }},
		{name: "missing", status: http.StatusNotFound, check: errdefs.IsNotFound},
		{name: "deletion disabled", status: http.StatusMethodNotAllowed,
			body: `{"errors":[{"code":"UNSUPPORTED","message":"The operation is unsupported."}]}`, check: errdefs.IsConflict},
		{name: "server error", status: http.StatusServiceUnavailable, check: errdefs.IsUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("DELETE /v2/team/api/manifests/"+dgst.String(), func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestClient(t, mux)

			err := c.DeleteManifest(t.Context(), "team/api", dgst)
			if !tt.check(err) {
				t.Fatalf("DeleteManifest() error = %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("delete calls = %d, want exactly 1", calls.Load())
			}
		})
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/_catalog", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ci" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, "application/json", catalogPage{Repositories: []string{"app"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, Username: "ci", Password: "secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Repositories(t.Context()); err != nil {
		t.Fatalf("Repositories() error = %v", err)
	}
}
