// Package service provides the high-level operations behind the CLI:
// inspecting an installed package and fetching a published release.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/roaddetection/identitybridge/internal/config"
	"github.com/roaddetection/identitybridge/internal/release"
)

const (
	// CacheDirPermissions sets the permission mode for the download cache.
	CacheDirPermissions = 0755
)

// ConfigParser provides config parsing functionality.
type ConfigParser interface {
	ParseFile(ctx context.Context, path string) (*config.Config, error)
}

// ReleaseSource resolves a release by tag; an empty tag selects the latest.
type ReleaseSource interface {
	Resolve(ctx context.Context, tag string) (*release.Release, error)
}

// AssetDownloader stores release assets locally.
type AssetDownloader interface {
	DownloadAsset(ctx context.Context, tag string, asset *release.Asset) (string, error)
}

// ArtifactVerifier checks a downloaded artifact against its sidecar files.
type ArtifactVerifier interface {
	Verify(artifactPath string, files release.SidecarFiles) ([]release.VerificationResult, error)
}

// LoadConfig parses the config file at path and applies defaults. When
// optional is set a missing file yields the default config.
func LoadConfig(ctx context.Context, parser ConfigParser, path string, optional bool) (*config.Config, error) {
	cfg, err := parser.ParseFile(ctx, path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
