package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/roaddetection/identitybridge/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector skips the platform table.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Nop()}
}

// WithLogger sets the logger used for parse diagnostics.
func (p *Parser) WithLogger(logger logging.Logger) *Parser {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// ParseFile reads and parses a Lua config file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}

	for _, finding := range DetectSensitiveData(string(data)) {
		p.logger.Warn("possible secret in config", "file", path, "line", finding.Line, "kind", finding.PatternName)
	}

	p.logger.Debug("parsing config", "file", path, "bytes", len(data))
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
// This is useful for testing and in-memory config generation.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	// Detect platform and inject platform table
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("parse config: %w", ctx.Err())
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig extracts the config from a Lua state.
// It expects a global "bridge" table with the config structure.
func extractConfig(L *lua.LState) (*Config, error) {
	bridgeTable := L.GetGlobal(luaGlobalBridge)
	if bridgeTable.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'bridge' table",
			Detail:  fmt.Sprintf("expected table, got %s", bridgeTable.Type()),
		}
	}

	config := &Config{}
	table := bridgeTable.(*lua.LTable)

	config.Channel = stringField(table, luaFieldChannel)

	switch pkg := table.RawGetString(luaFieldPackage); pkg.Type() {
	case lua.LTTable:
		config.Package = extractPackage(pkg.(*lua.LTable))
	case lua.LTString:
		// Shorthand: package = "com.example.app"
		config.Package.Name = pkg.String()
	}

	if level := table.RawGetString(luaFieldAPILevel); level.Type() != lua.LTNil {
		n, ok := level.(lua.LNumber)
		if !ok || float64(n) != float64(int(n)) {
			return nil, &ParseError{
				Message: "invalid api_level",
				Detail:  fmt.Sprintf("expected integer, got %s", level.Type()),
			}
		}
		config.APILevel = int(n)
	}

	if releases := table.RawGetString(luaFieldReleases); releases.Type() == lua.LTTable {
		config.Releases = extractReleases(releases.(*lua.LTable))
	}

	if httpVal := table.RawGetString(luaFieldHTTP); httpVal.Type() == lua.LTTable {
		config.HTTP.Addr = stringField(httpVal.(*lua.LTable), luaFieldAddr)
	}

	if err := config.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return config, nil
}

// extractPackage extracts the package section from a Lua table.
func extractPackage(table *lua.LTable) PackageConfig {
	return PackageConfig{
		Name: stringField(table, luaFieldName),
		APK:  stringField(table, luaFieldAPK),
	}
}

// extractReleases extracts the releases section from a Lua table.
func extractReleases(table *lua.LTable) ReleaseConfig {
	return ReleaseConfig{
		Owner:               stringField(table, luaFieldOwner),
		Repo:                stringField(table, luaFieldRepo),
		APIURL:              stringField(table, luaFieldAPIURL),
		Keyring:             stringField(table, luaFieldKeyring),
		TrustedRoot:         stringField(table, luaFieldTrustedRoot),
		CertificateIdentity: stringField(table, luaFieldIdentity),
		CertificateIssuer:   stringField(table, luaFieldIssuer),
		Expect:              stringField(table, luaFieldExpect),
	}
}

// stringField returns a string field or "" when absent or not a string.
// Nil values from platform conditionals land here too.
func stringField(table *lua.LTable, name string) string {
	if v := table.RawGetString(name); v.Type() == lua.LTString {
		return v.String()
	}
	return ""
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	if parseErr, ok := err.(*ParseError); ok {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
