package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/roaddetection/identitybridge/internal/config"
	"github.com/roaddetection/identitybridge/internal/service"
)

// Exit codes of the signature and fetch commands.
const (
	exitOK       = 0
	exitError    = 1
	exitAbsent   = 2
	exitMismatch = 3
)

type signatureFlags struct {
	commonFlags
	apkPath     string
	packageName string
	apiLevel    int
}

func parseSignatureFlags(args []string) (*signatureFlags, error) {
	flags := &signatureFlags{}
	r := newArgReader(args)
	for {
		arg, ok := r.next()
		if !ok {
			break
		}
		if handled, err := flags.parseCommon(r, arg); err != nil {
			return nil, err
		} else if handled {
			continue
		}

		var err error
		switch arg {
		case "--apk":
			flags.apkPath, err = r.value(arg)
		case "--package", "-p":
			flags.packageName, err = r.value(arg)
		case "--api-level":
			flags.apiLevel, err = r.intValue(arg)
		default:
			return nil, unknownOption("signature", arg)
		}
		if err != nil {
			return nil, err
		}
	}
	return flags, nil
}

// runSignature handles the `identitybridge signature` subcommand
func runSignature(args []string, out io.Writer) (int, error) {
	flags, err := parseSignatureFlags(args)
	if err != nil {
		return exitError, err
	}
	if flags.help {
		printSignatureHelp(out)
		return exitOK, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := newLogger()
	cfg, err := loadConfig(ctx, flags.commonFlags, logger)
	if err != nil {
		return exitError, err
	}

	req := service.InspectRequest{
		PackageName: firstNonEmpty(flags.packageName, cfg.Package.Name),
		APKPath:     firstNonEmpty(flags.apkPath, cfg.Package.APK),
	}
	if req.APKPath == "" {
		return exitError, fmt.Errorf("no APK path: set bridge.package.apk in the config or pass --apk")
	}
	if req.APKPath, err = config.ExpandPath(req.APKPath); err != nil {
		return exitError, err
	}

	apiLevel := flags.apiLevel
	if apiLevel == 0 {
		apiLevel = cfg.APILevel
	}
	req.APILevel = resolveAPILevel(ctx, apiLevel, logger)

	svc := service.NewInspectService(service.RealClock{}).WithLogger(logger)
	result, err := svc.Inspect(ctx, req)
	if err != nil {
		return exitError, err
	}

	if err := render(out, flags.format, result, func(w io.Writer) error {
		return printInspectText(w, result, flags.verbose)
	}); err != nil {
		return exitError, err
	}

	if result.Signature == nil {
		return exitAbsent, nil
	}
	return exitOK, nil
}

// printInspectText prints the fingerprint alone, or "null" when absent, so
// the output can be consumed by scripts. Verbose mode adds details.
func printInspectText(w io.Writer, r *service.InspectResult, verbose bool) error {
	if r.Signature == nil {
		fmt.Fprintln(w, "null")
	} else {
		fmt.Fprintln(w, *r.Signature)
	}
	if !verbose {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Package:      %s\n", r.PackageName)
	fmt.Fprintf(w, "  APK:          %s\n", r.APKPath)
	fmt.Fprintf(w, "  API level:    %d (%s)\n", r.APILevel, r.Variant)
	if r.Failure != "" {
		fmt.Fprintf(w, "  Failure:      %s\n", r.Failure)
		return nil
	}
	fmt.Fprintf(w, "  Scheme:       v%d\n", r.SchemeVersion)
	fmt.Fprintf(w, "  Certificates: %d\n", r.CertificateCount)
	if r.MultipleSigners {
		fmt.Fprintln(w, "  Note:         multiple signers; only the first is reported")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printSignatureHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: identitybridge signature [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the SHA-1 fingerprint of the package's first signing certificate,")
	fmt.Fprintln(w, "or null when the package has none.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -c, --config FILE      Config file (default $IDENTITYBRIDGE_DIR/bridge.lua)")
	fmt.Fprintln(w, "      --apk PATH         APK to inspect (overrides bridge.package.apk)")
	fmt.Fprintln(w, "  -p, --package NAME     Package name (overrides bridge.package.name)")
	fmt.Fprintln(w, "      --api-level N      Platform API level (default: config, then host)")
	fmt.Fprintln(w, "  -f, --format FORMAT    Output format: text, json or yaml")
	fmt.Fprintln(w, "  -v, --verbose          Show signing details")
	fmt.Fprintln(w, "  -h, --help             Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit status is 0 when a fingerprint is printed and 2 when it is absent.")
}
