package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"swarmorch/internal/registry"
)

var manifestAccept = []string{
	v1.MediaTypeImageManifest,
	v1.MediaTypeImageIndex,
	mediaTypeDockerManifest,
	mediaTypeDockerManifestList,
}

// Manifest fetches the manifest for reference (a tag or digest). Image
// manifests are enriched with platform and creation time from their config
// blob. Indexes report the summed size of their children and the platform
// of the first concrete child.
func (c *Client) Manifest(ctx context.Context, repo, reference string) (registry.Manifest, error) {
	resp, err := c.get(ctx, http.MethodGet, c.endpoint("/v2/"+repo+"/manifests/"+reference), manifestAccept...)
	if err != nil {
		return registry.Manifest{}, fmt.Errorf("get manifest %s:%s: %w", repo, reference, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return registry.Manifest{}, fmt.Errorf("read manifest %s:%s: %w", repo, reference, transportError(err))
	}

	m := registry.Manifest{MediaType: contentType(resp)}
	m.Digest, err = responseDigest(resp, body)
	if err != nil {
		return registry.Manifest{}, fmt.Errorf("manifest %s:%s: %w", repo, reference, err)
	}

	var probe struct {
		MediaType string `json:"mediaType"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return registry.Manifest{}, fmt.Errorf("decode manifest %s:%s: %w", repo, reference, err)
	}
	if probe.MediaType != "" && (m.MediaType == "" || m.MediaType == "application/json") {
		m.MediaType = probe.MediaType
	}

	switch m.MediaType {
	case v1.MediaTypeImageIndex, mediaTypeDockerManifestList:
		var index v1.Index
		if err := json.Unmarshal(body, &index); err != nil {
			return registry.Manifest{}, fmt.Errorf("decode index %s:%s: %w", repo, reference, err)
		}
		applyIndex(&m, index)
	case v1.MediaTypeImageManifest, mediaTypeDockerManifest:
		var manifest v1.Manifest
		if err := json.Unmarshal(body, &manifest); err != nil {
			return registry.Manifest{}, fmt.Errorf("decode manifest %s:%s: %w", repo, reference, err)
		}
		m.Size = manifest.Config.Size
		for _, layer := range manifest.Layers {
			m.Size += layer.Size
		}
		if err := c.applyConfig(ctx, repo, manifest.Config.Digest, &m); err != nil {
			slog.Debug("manifest config unavailable", "component", "registry-http",
				"repository", repo, "reference", reference, "err", err)
		}
	default:
		m.Size = int64(len(body))
	}
	return m, nil
}

func applyIndex(m *registry.Manifest, index v1.Index) {
	for _, child := range index.Manifests {
		m.Size += child.Size
	}
	for _, child := range index.Manifests {
		p := child.Platform
		if p == nil || p.Architecture == "" || p.Architecture == "unknown" || p.OS == "unknown" {
			continue
		}
		m.Architecture = p.Architecture
		m.OS = p.OS
		return
	}
}

func (c *Client) applyConfig(ctx context.Context, repo string, dgst digest.Digest, m *registry.Manifest) error {
	if err := dgst.Validate(); err != nil {
		return fmt.Errorf("config digest: %w", err)
	}
	resp, err := c.get(ctx, http.MethodGet, c.endpoint("/v2/"+repo+"/blobs/"+dgst.String()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var img v1.Image
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestSize)).Decode(&img); err != nil {
		return fmt.Errorf("decode image config: %w", err)
	}
	m.Architecture = img.Architecture
	m.OS = img.OS
	if img.Created != nil {
		m.Created = img.Created.UTC()
	}
	return nil
}

// ManifestDigest resolves tag with a HEAD request, falling back to hashing
// the manifest body when the registry omits Docker-Content-Digest.
func (c *Client) ManifestDigest(ctx context.Context, repo, tag string) (digest.Digest, error) {
	resp, err := c.get(ctx, http.MethodHead, c.endpoint("/v2/"+repo+"/manifests/"+tag), manifestAccept...)
	if err != nil {
		return "", fmt.Errorf("resolve %s:%s: %w", repo, tag, err)
	}
	resp.Body.Close()
	if header := resp.Header.Get("Docker-Content-Digest"); header != "" {
		dgst, err := digest.Parse(header)
		if err != nil {
			return "", fmt.Errorf("resolve %s:%s: registry returned digest %q: %w", repo, tag, header, err)
		}
		return dgst, nil
	}

	m, err := c.Manifest(ctx, repo, tag)
	if err != nil {
		return "", err
	}
	return m.Digest, nil
}

func responseDigest(resp *http.Response, body []byte) (digest.Digest, error) {
	header := resp.Header.Get("Docker-Content-Digest")
	if header == "" {
		return digest.FromBytes(body), nil
	}
	dgst, err := digest.Parse(header)
	if err != nil {
		return "", fmt.Errorf("registry returned digest %q: %w", header, err)
	}
	return dgst, nil
}
