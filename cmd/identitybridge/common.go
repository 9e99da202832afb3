package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roaddetection/identitybridge/internal/config"
	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/roaddetection/identitybridge/internal/platform"
	"github.com/roaddetection/identitybridge/internal/service"
)

// Environment variables read by the CLI.
const (
	EnvDir         = "IDENTITYBRIDGE_DIR"
	EnvLogLevel    = "IDENTITYBRIDGE_LOG_LEVEL"
	EnvGitHubToken = "GITHUB_TOKEN"
)

const (
	configFileName = "bridge.lua"
	cacheDirName   = "cache"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// getDir returns the identitybridge directory from the environment or the
// default ~/.config/identitybridge.
func getDir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "identitybridge"), nil
}

// newLogger builds the stderr logger. An invalid level falls back to the
// default with a warning.
func newLogger() logging.Logger {
	level := os.Getenv(EnvLogLevel)
	logger, err := logging.New(os.Stderr, level)
	if err != nil {
		logger, _ = logging.New(os.Stderr, "")
		logger.Warn("ignoring invalid log level", "env", EnvLogLevel, "value", level)
	}
	return logger
}

// commonFlags are accepted by every command that reads the config.
type commonFlags struct {
	configPath string
	format     string
	verbose    bool
	help       bool
}

// argReader walks command-line arguments, accepting both "--flag value" and
// "--flag=value".
type argReader struct {
	args []string
	pos  int
	// value split from "--flag=value"
	inline    string
	hasInline bool
}

func newArgReader(args []string) *argReader {
	return &argReader{args: args}
}

// next returns the next flag name, or false when arguments are exhausted.
func (r *argReader) next() (string, bool) {
	if r.pos >= len(r.args) {
		return "", false
	}
	arg := r.args[r.pos]
	r.pos++
	r.inline, r.hasInline = "", false
	if strings.HasPrefix(arg, "--") {
		if name, value, ok := strings.Cut(arg, "="); ok {
			r.inline, r.hasInline = value, true
			return name, true
		}
	}
	return arg, true
}

// value returns the value for the flag just read.
func (r *argReader) value(flag string) (string, error) {
	if r.hasInline {
		r.hasInline = false
		return r.inline, nil
	}
	if r.pos >= len(r.args) {
		return "", fmt.Errorf("%s requires a value", flag)
	}
	v := r.args[r.pos]
	r.pos++
	return v, nil
}

// optionalValue returns the value for the flag just read when one is
// given inline or as a following non-flag argument.
func (r *argReader) optionalValue() string {
	if r.hasInline {
		r.hasInline = false
		return r.inline
	}
	if r.pos < len(r.args) && !strings.HasPrefix(r.args[r.pos], "-") {
		v := r.args[r.pos]
		r.pos++
		return v
	}
	return ""
}

// intValue returns the integer value for the flag just read.
func (r *argReader) intValue(flag string) (int, error) {
	v, err := r.value(flag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", flag, v)
	}
	return n, nil
}

// parseCommon handles flags shared by all commands. It reports false for
// flags it does not know.
func (c *commonFlags) parseCommon(r *argReader, flag string) (bool, error) {
	var err error
	switch flag {
	case "--help", "-h":
		c.help = true
	case "--verbose", "-v":
		c.verbose = true
	case "--config", "-c":
		c.configPath, err = r.value(flag)
	case "--format", "-f":
		c.format, err = r.value(flag)
		if err == nil {
			err = validateFormat(c.format)
		}
	default:
		return false, nil
	}
	return true, err
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}

func unknownOption(command, arg string) error {
	return fmt.Errorf("unknown option: %s\nRun 'identitybridge %s --help' for usage", arg, command)
}

// loadConfig reads the config named by --config, or the default config file
// when it exists.
func loadConfig(ctx context.Context, flags commonFlags, logger logging.Logger) (*config.Config, error) {
	path := flags.configPath
	optional := false
	if path == "" {
		dir, err := getDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, configFileName)
		optional = true
	}

	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}

	parser := config.NewParser(platform.NewDetector(platform.WithLogger(logger))).WithLogger(logger)
	cfg, err := service.LoadConfig(ctx, parser, expanded, optional)
	if err != nil {
		var parseErr *config.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%s: %s", expanded, config.FormatError(parseErr, flags.verbose))
		}
		return nil, err
	}
	return cfg, nil
}

// resolveAPILevel picks the API level: explicit value, then host detection.
// Zero means unknown.
func resolveAPILevel(ctx context.Context, level int, logger logging.Logger) int {
	if level > 0 {
		return level
	}
	info, err := platform.NewDetector(platform.WithLogger(logger)).Detect(ctx)
	if err != nil {
		logger.Warn("platform detection failed, assuming modern API level", "error", err)
		return 0
	}
	logger.Debug("platform detected", "os", info.OS, "family", info.Family, "api_level", info.APILevel)
	return info.APILevel
}

// render writes v in the requested format; text output is delegated.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "", formatText:
		return text(w)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return validateFormat(format)
	}
}
