package registry

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Repository is the cheap listing view of a repository.
type Repository struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// RepositoryDetail carries enriched per-tag metadata for one repository.
type RepositoryDetail struct {
	Name     string      `json:"name"`
	Tags     []TagDetail `json:"tags"`
	TagCount int         `json:"tag_count"`
}

// TagDetail describes the manifest a tag points at. A tag whose manifest
// could not be fetched keeps its name and zero values elsewhere.
type TagDetail struct {
	Tag          string `json:"tag"`
	Digest       string `json:"digest"`
	MediaType    string `json:"media_type"`
	Size         int64  `json:"size"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Created      string `json:"created"`
}

// Manifest is the summary of a manifest as resolved by a Client. For an
// image index, Size is the sum of child manifest sizes and the platform is
// taken from the first child that names one.
type Manifest struct {
	Digest       digest.Digest
	MediaType    string
	Size         int64
	Architecture string
	OS           string
	Created      time.Time
}

func tagDetail(tag string, m Manifest) TagDetail {
	d := TagDetail{
		Tag:          tag,
		Digest:       m.Digest.String(),
		MediaType:    m.MediaType,
		Size:         m.Size,
		Architecture: m.Architecture,
		OS:           m.OS,
	}
	if !m.Created.IsZero() {
		d.Created = m.Created.UTC().Format(time.RFC3339)
	}
	return d
}
