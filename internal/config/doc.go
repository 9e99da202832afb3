// Package config parses and generates the bridge's Lua configuration.
//
// # Overview
//
// Configuration is a Lua file defining a global "bridge" table. It runs in a
// gopher-lua VM with only the base, string, table and math libraries, so a
// config can compute values but cannot touch the filesystem, environment or
// network. Platform information is injected first as a read-only "platform"
// table, which lets one file serve several devices:
//
//	bridge = {
//	  channel = "com.roaddetection.security",
//	  package = {
//	    name = "com.roaddetection.vgtec_app",
//	    apk = platform.when(platform.is_android, "/data/app/base.apk"),
//	  },
//	  api_level = platform.api_level,
//	  releases = {
//	    owner = "royhairul",
//	    repo = "vgtec-app",
//	    keyring = "~/.config/identitybridge/release.asc",
//	    expect = "SHA1: DA39A3EE5E6B4B0D3255BFEF95601890AFD80709",
//	  },
//	  http = { addr = "127.0.0.1:8765" },
//	}
//
// The "package" field also accepts a bare package name string.
//
// # Usage
//
//	parser := config.NewParser(platform.NewDetector()).WithLogger(logger)
//	cfg, err := parser.ParseFile(ctx, path)
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, config.FormatError(err, verbose))
//	}
//	cfg.ApplyDefaults()
//
// Generator writes a Config back out as Lua; the output parses to an equal
// Config.
//
// # Errors
//
// Lua errors and schema problems are returned as *ParseError with a short
// Message and the raw Lua Detail. FormatError strips stack tracebacks unless
// verbose output is requested. Field problems found by Config.Validate are
// *ValidationError values naming the offending field.
//
// ParseFile also scans the raw file for hardcoded tokens and passwords and
// logs a warning for each finding; release API credentials belong in
// GITHUB_TOKEN.
package config
