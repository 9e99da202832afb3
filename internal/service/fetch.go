package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/roaddetection/identitybridge/internal/identity"
	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/roaddetection/identitybridge/internal/release"
)

var (
	// ErrNoAPKAsset is returned when a release carries no .apk asset.
	ErrNoAPKAsset = errors.New("release has no APK asset")

	// ErrFingerprintMismatch is returned when the downloaded APK is not
	// signed with the expected certificate.
	ErrFingerprintMismatch = errors.New("signing fingerprint mismatch")
)

// FetchService downloads a published APK, verifies it and fingerprints it.
type FetchService struct {
	releases   ReleaseSource
	downloader AssetDownloader
	verifier   ArtifactVerifier
	inspector  *InspectService
	logger     logging.Logger
}

// NewFetchService creates a new fetch service with dependency injection.
func NewFetchService(
	releases ReleaseSource,
	downloader AssetDownloader,
	verifier ArtifactVerifier,
	inspector *InspectService,
) *FetchService {
	return &FetchService{
		releases:   releases,
		downloader: downloader,
		verifier:   verifier,
		inspector:  inspector,
		logger:     logging.Nop(),
	}
}

// WithLogger sets the logger and returns the service.
func (s *FetchService) WithLogger(logger logging.Logger) *FetchService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// FetchRequest contains parameters for fetching a release.
type FetchRequest struct {
	Tag         string // empty selects the latest release
	PackageName string
	APILevel    int
	Expect      string // optional "SHA1: ..." the APK must carry
}

// FetchResult contains the results of the fetch operation.
type FetchResult struct {
	Tag          string                       `json:"tag" yaml:"tag"`
	ReleaseName  string                       `json:"release,omitempty" yaml:"release,omitempty"`
	Asset        string                       `json:"asset" yaml:"asset"`
	Size         string                       `json:"size,omitempty" yaml:"size,omitempty"`
	Path         string                       `json:"path" yaml:"path"`
	Verification []release.VerificationResult `json:"verification" yaml:"verification"`
	Inspection   *InspectResult               `json:"inspection,omitempty" yaml:"inspection,omitempty"`
	Expected     string                       `json:"expected,omitempty" yaml:"expected,omitempty"`
	Match        *bool                        `json:"match,omitempty" yaml:"match,omitempty"`
}

// Fetch resolves the release, downloads its APK and sidecar files, verifies
// the APK and computes its signing fingerprint. A partial result is returned
// alongside verification and mismatch errors.
func (s *FetchService) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var expected *identity.Fingerprint
	if req.Expect != "" {
		fp, err := identity.ParseFingerprint(req.Expect)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		expected = &fp
	}

	rel, err := s.releases.Resolve(ctx, req.Tag)
	if err != nil {
		return nil, fmt.Errorf("resolve release: %w", err)
	}

	asset := release.FindAPKAsset(rel)
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAPKAsset, rel.TagName)
	}

	result := &FetchResult{
		Tag:         rel.TagName,
		ReleaseName: rel.Name,
		Asset:       asset.Name,
		Size:        release.FormatSize(asset.Size),
	}
	if expected != nil {
		result.Expected = expected.String()
	}

	apkPath, err := s.downloader.DownloadAsset(ctx, rel.TagName, asset)
	if err != nil {
		return nil, err
	}
	result.Path = apkPath

	files, err := s.downloadSidecars(ctx, rel, asset)
	if err != nil {
		return result, err
	}

	result.Verification, err = s.verifier.Verify(apkPath, files)
	if err != nil {
		return result, err
	}
	for _, v := range result.Verification {
		s.logger.Info("verification", "method", v.Method.String(), "success", v.Success, "detail", v.Detail)
	}

	result.Inspection, err = s.inspector.Inspect(ctx, InspectRequest{
		PackageName: req.PackageName,
		APKPath:     apkPath,
		APILevel:    req.APILevel,
	})
	if err != nil {
		return result, fmt.Errorf("inspect %s: %w", asset.Name, err)
	}

	if expected != nil {
		got := result.Inspection.Fingerprint()
		match := got != nil && got.Equal(*expected)
		result.Match = &match
		if !match {
			actual := "none"
			if got != nil {
				actual = got.String()
			}
			return result, fmt.Errorf("%w: got %s, want %s", ErrFingerprintMismatch, actual, expected.String())
		}
	}

	return result, nil
}

// downloadSidecars downloads whichever verification files the release
// publishes for the APK.
func (s *FetchService) downloadSidecars(ctx context.Context, rel *release.Release, apk *release.Asset) (release.SidecarFiles, error) {
	var files release.SidecarFiles
	sidecars := release.FindSidecars(rel, apk)

	for _, sc := range []struct {
		asset *release.Asset
		dest  *string
	}{
		{sidecars.Checksums, &files.Checksums},
		{sidecars.Signature, &files.Signature},
		{sidecars.Bundle, &files.Bundle},
	} {
		if sc.asset == nil {
			continue
		}
		path, err := s.downloader.DownloadAsset(ctx, rel.TagName, sc.asset)
		if err != nil {
			return files, err
		}
		*sc.dest = path
	}

	return files, nil
}
