package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roaddetection/identitybridge/internal/config"
	"github.com/roaddetection/identitybridge/internal/release"
	"github.com/roaddetection/identitybridge/internal/service"
)

type fetchFlags struct {
	releaseFlags
	tag         string
	expect      string
	packageName string
	apiLevel    int
}

func parseFetchFlags(args []string) (*fetchFlags, error) {
	flags := &fetchFlags{}
	r := newArgReader(args)
	for {
		arg, ok := r.next()
		if !ok {
			break
		}
		handled, err := flags.parseCommon(r, arg)
		if !handled && err == nil {
			handled, err = flags.parseReleaseFlag(r, arg)
		}
		if !handled && err == nil {
			handled = true
			switch arg {
			case "--tag", "-t":
				flags.tag, err = r.value(arg)
			case "--expect":
				flags.expect, err = r.value(arg)
			case "--package", "-p":
				flags.packageName, err = r.value(arg)
			case "--api-level":
				flags.apiLevel, err = r.intValue(arg)
			default:
				handled = false
			}
		}
		if err != nil {
			return nil, err
		}
		if !handled {
			return nil, unknownOption("fetch", arg)
		}
	}
	return flags, nil
}

// runFetch handles the `identitybridge fetch` subcommand
func runFetch(args []string, out io.Writer) (int, error) {
	flags, err := parseFetchFlags(args)
	if err != nil {
		return exitError, err
	}
	if flags.help {
		printFetchHelp(out)
		return exitOK, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), release.DefaultTimeout)
	defer cancel()

	logger := newLogger()
	cfg, err := loadConfig(ctx, flags.commonFlags, logger)
	if err != nil {
		return exitError, err
	}
	if err := flags.applyTo(cfg); err != nil {
		return exitError, err
	}

	dir, err := getDir()
	if err != nil {
		return exitError, fmt.Errorf("get identitybridge directory: %w", err)
	}
	cacheDir := filepath.Join(dir, cacheDirName, "releases")
	if err := os.MkdirAll(cacheDir, service.CacheDirPermissions); err != nil {
		return exitError, fmt.Errorf("create cache directory: %w", err)
	}

	client, err := newReleaseClient(cfg, logger)
	if err != nil {
		return exitError, err
	}

	verifierOpts, err := verifierOptions(cfg)
	if err != nil {
		return exitError, err
	}
	verifierOpts.Logger = logger

	svc := service.NewFetchService(
		client,
		release.NewDownloader(cacheDir).WithToken(os.Getenv(EnvGitHubToken)).WithLogger(logger),
		release.NewVerifier(verifierOpts),
		service.NewInspectService(service.RealClock{}).WithLogger(logger),
	).WithLogger(logger)

	apiLevel := flags.apiLevel
	if apiLevel == 0 {
		apiLevel = cfg.APILevel
	}

	result, fetchErr := svc.Fetch(ctx, service.FetchRequest{
		Tag:         flags.tag,
		PackageName: firstNonEmpty(flags.packageName, cfg.Package.Name),
		APILevel:    apiLevel,
		Expect:      firstNonEmpty(flags.expect, cfg.Releases.Expect),
	})
	if result != nil {
		if err := render(out, flags.format, result, func(w io.Writer) error {
			return printFetchText(w, result)
		}); err != nil {
			return exitError, err
		}
	}

	switch {
	case errors.Is(fetchErr, service.ErrFingerprintMismatch):
		return exitMismatch, fetchErr
	case fetchErr != nil:
		return exitError, fetchErr
	case result.Inspection == nil || result.Inspection.Signature == nil:
		return exitAbsent, nil
	}
	return exitOK, nil
}

// verifierOptions expands the trust material paths from the config.
func verifierOptions(cfg *config.Config) (release.VerifierOptions, error) {
	opts := release.VerifierOptions{
		CertificateIdentity: cfg.Releases.CertificateIdentity,
		CertificateIssuer:   cfg.Releases.CertificateIssuer,
	}
	var err error
	if opts.KeyringPath, err = config.ExpandPath(cfg.Releases.Keyring); err != nil {
		return opts, err
	}
	if opts.TrustedRootPath, err = config.ExpandPath(cfg.Releases.TrustedRoot); err != nil {
		return opts, err
	}
	return opts, nil
}

func printFetchText(w io.Writer, r *service.FetchResult) error {
	fmt.Fprintf(w, "Release:   %s", r.Tag)
	if r.ReleaseName != "" && r.ReleaseName != r.Tag {
		fmt.Fprintf(w, " (%s)", r.ReleaseName)
	}
	fmt.Fprintln(w)
	if r.Size != "" {
		fmt.Fprintf(w, "Asset:     %s, %s\n", r.Asset, r.Size)
	} else {
		fmt.Fprintf(w, "Asset:     %s\n", r.Asset)
	}
	if r.Path != "" {
		fmt.Fprintf(w, "Saved to:  %s\n", r.Path)
	}

	for _, v := range r.Verification {
		status := "ok"
		switch {
		case v.Method == release.VerificationNone:
			status = "skipped"
		case !v.Success:
			status = "FAILED"
		}
		line := fmt.Sprintf("Verify:    %-8s %s", v.Method, status)
		if v.Detail != "" {
			line += "  " + v.Detail
		}
		if v.Error != nil {
			line += "  " + v.Error.Error()
		}
		fmt.Fprintln(w, line)
	}

	if r.Inspection != nil {
		if r.Inspection.Signature != nil {
			fmt.Fprintf(w, "Signature: %s\n", *r.Inspection.Signature)
		} else {
			fmt.Fprintf(w, "Signature: null (%s)\n", r.Inspection.Failure)
		}
	}
	if r.Match != nil {
		if *r.Match {
			fmt.Fprintln(w, "Expected:  match")
		} else {
			fmt.Fprintf(w, "Expected:  MISMATCH, want %s\n", r.Expected)
		}
	}
	return nil
}

func printFetchHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: identitybridge fetch [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Download the APK of a release, verify it against the published checksums,")
	fmt.Fprintln(w, "OpenPGP signature or sigstore bundle, and print its signing fingerprint.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -c, --config FILE     Config file (default $IDENTITYBRIDGE_DIR/bridge.lua)")
	fmt.Fprintln(w, "  -t, --tag TAG         Release tag (default: latest)")
	fmt.Fprintln(w, "      --expect FP       Required fingerprint, e.g. \"SHA1: 0A1B...\"")
	fmt.Fprintln(w, "  -p, --package NAME    Package name (overrides bridge.package.name)")
	fmt.Fprintln(w, "      --api-level N     API level used to pick the signer")
	fmt.Fprintln(w, "      --owner OWNER     Repository owner (overrides bridge.releases.owner)")
	fmt.Fprintln(w, "      --repo REPO       Repository name (overrides bridge.releases.repo)")
	fmt.Fprintln(w, "      --api-url URL     Release API base URL")
	fmt.Fprintln(w, "  -f, --format FORMAT   Output format: text, json or yaml")
	fmt.Fprintln(w, "  -h, --help            Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit status: 0 ok, 1 error or failed verification, 2 unsigned APK,")
	fmt.Fprintln(w, "3 fingerprint mismatch.")
}
