package platform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/shirou/gopsutil/v4/host"
)

// DefaultBuildPropPath is where Android publishes its build properties.
const DefaultBuildPropPath = "/system/build.prop"

const (
	propSDK     = "ro.build.version.sdk"
	propRelease = "ro.build.version.release"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	apiLevel  int
	buildProp string
	logger    logging.Logger
}

// Option configures a RealDetector.
type Option func(*RealDetector)

// WithAPILevel pins the API level instead of reading it from the host.
// Values <= 0 are ignored.
func WithAPILevel(level int) Option {
	return func(d *RealDetector) {
		if level > 0 {
			d.apiLevel = level
		}
	}
}

// WithBuildPropPath overrides the build property file location.
func WithBuildPropPath(path string) Option {
	return func(d *RealDetector) {
		d.buildProp = path
	}
}

// WithLogger sets the logger for detection problems that are not fatal.
func WithLogger(logger logging.Logger) Option {
	return func(d *RealDetector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector creates a new platform detector.
func NewDetector(opts ...Option) *RealDetector {
	d := &RealDetector{buildProp: DefaultBuildPropPath, logger: logging.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect performs platform detection and returns platform information.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture,
// and gopsutil for Linux distribution details.
//
// If gopsutil fails to detect the distribution, distro fields stay empty
// and detection continues. An unreadable build property file leaves the API
// level unknown. Only a cancelled context is a hard failure.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if info.IsLinux() {
		platform, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
		} else if platform = normalizePlatform(platform); platform != "" {
			info.Platform = platform
			info.Family = mapFamily(family)
			info.Version = normalizePlatform(version)
		}

		if kernel, err := host.KernelVersionWithContext(ctx); err == nil {
			info.Kernel = kernel
		}

		props, err := readBuildProps(d.buildProp)
		switch {
		case err == nil:
			applyBuildProps(info, props)
		case !errors.Is(err, fs.ErrNotExist):
			d.logger.Warn("cannot read build properties", "file", d.buildProp, "error", err)
		}
	}

	if d.apiLevel > 0 {
		info.APILevel = d.apiLevel
	}

	return info, nil
}

// applyBuildProps marks info as Android when the SDK property is present.
func applyBuildProps(info *Info, props map[string]string) {
	sdk, ok := props[propSDK]
	if !ok {
		return
	}
	info.OS = "android"
	info.Platform = "android"
	info.Family = FamilyAndroid
	if release := props[propRelease]; release != "" {
		info.Version = release
	}
	if level, err := strconv.Atoi(sdk); err == nil && level > 0 {
		info.APILevel = level
	}
}

// readBuildProps parses a key=value property file. Comments and malformed
// lines are skipped.
func readBuildProps(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return props, nil
}
