package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultReleaseBase is the GitHub releases API of the plugin repository.
const DefaultReleaseBase = "https://api.github.com/repos/nestdotland/deno_swc/releases"

var (
	// ErrUnknownRelease is returned when the tag has no release.
	ErrUnknownRelease = errors.New("unknown release tag")
	// ErrAssetNotFound is returned when a release has no binary for the platform.
	ErrAssetNotFound = errors.New("release asset not found")
)

// Release is the subset of a GitHub release the resolver needs.
type Release struct {
	ID      int64          `json:"id"`
	TagName string         `json:"tag_name"`
	Assets  []ReleaseAsset `json:"assets"`
}

type ReleaseAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// ReleaseClient queries the releases API.
type ReleaseClient struct {
	Base   string
	Client *http.Client
}

func NewReleaseClient(base string, client *http.Client) *ReleaseClient {
	if base == "" {
		base = DefaultReleaseBase
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ReleaseClient{Base: strings.TrimRight(base, "/"), Client: client}
}

// Release fetches the release published under tag.
func (c *ReleaseClient) Release(ctx context.Context, tag string) (*Release, error) {
	url := c.Base + "/tags/" + tag
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query release %s: %w", tag, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelease, tag)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("query release %s: status %d: %s", tag, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release %s: %w", tag, err)
	}
	return &release, nil
}

// AssetURL returns the download URL of filename in the release. When the API
// reports no download URL the documented {base}/{releaseId}/{filename}
// pattern is used.
func (c *ReleaseClient) AssetURL(release *Release, filename string) (string, error) {
	for _, asset := range release.Assets {
		if asset.Name != filename {
			continue
		}
		if asset.BrowserDownloadURL != "" {
			return asset.BrowserDownloadURL, nil
		}
		return fmt.Sprintf("%s/%d/%s", c.Base, release.ID, filename), nil
	}
	return "", fmt.Errorf("%w: %s in %s", ErrAssetNotFound, filename, release.TagName)
}
