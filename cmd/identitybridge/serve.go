package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roaddetection/identitybridge/internal/channel"
	"github.com/roaddetection/identitybridge/internal/config"
	"github.com/roaddetection/identitybridge/internal/identity"
	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/roaddetection/identitybridge/internal/pkgmanager"
	"github.com/roaddetection/identitybridge/internal/platform"
)

const shutdownTimeout = 5 * time.Second

type serveFlags struct {
	commonFlags
	apkPath  string
	apiLevel int
	useHTTP  bool
	httpAddr string
}

func parseServeFlags(args []string) (*serveFlags, error) {
	flags := &serveFlags{}
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
		case "--api-level":
			flags.apiLevel, err = r.intValue(arg)
		case "--http":
			flags.useHTTP = true
			flags.httpAddr = r.optionalValue()
		default:
			return nil, unknownOption("serve", arg)
		}
		if err != nil {
			return nil, err
		}
	}
	return flags, nil
}

// runServe handles the `identitybridge serve` subcommand
func runServe(args []string, in io.Reader, out io.Writer) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	if flags.help {
		printServeHelp(out)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	cfg, err := loadConfig(ctx, flags.commonFlags, logger)
	if err != nil {
		return err
	}

	messenger, err := buildMessenger(ctx, cfg, flags, logger)
	if err != nil {
		return err
	}

	if !flags.useHTTP {
		logger.Info("serving method channel on stdio", "channel", cfg.Channel)
		if err := messenger.ServeStream(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("stdio stream closed")
		return nil
	}

	addr := firstNonEmpty(flags.httpAddr, cfg.HTTP.Addr)
	return serveHTTP(ctx, addr, messenger.Handler(), logger)
}

// buildMessenger wires the identity bridge plugin for the configured package
// onto a new messenger.
func buildMessenger(ctx context.Context, cfg *config.Config, flags *serveFlags, logger logging.Logger) (*channel.Messenger, error) {
	apkPath := firstNonEmpty(flags.apkPath, cfg.Package.APK)
	if apkPath == "" {
		return nil, fmt.Errorf("no APK path: set bridge.package.apk in the config or pass --apk")
	}
	apkPath, err := config.ExpandPath(apkPath)
	if err != nil {
		return nil, err
	}

	apiLevel := flags.apiLevel
	if apiLevel == 0 {
		apiLevel = cfg.APILevel
	}
	info := platform.Info{APILevel: resolveAPILevel(ctx, apiLevel, logger)}

	mgr, err := pkgmanager.NewFileManager(pkgmanager.Config{
		PackageName: cfg.Package.Name,
		Packages:    map[string]string{cfg.Package.Name: apkPath},
		APILevel:    uint32(info.EffectiveAPILevel()),
	})
	if err != nil {
		return nil, fmt.Errorf("create package manager: %w", err)
	}
	mgr.WithLogger(logger)

	lister := identity.NewPlatformLister(mgr, info.EffectiveAPILevel())
	bridge := identity.NewBridge(lister).WithLogger(logger)

	messenger := channel.NewMessenger().WithLogger(logger)
	identity.NewPlugin(bridge, cfg.Channel).Register(messenger)

	logger.Debug("bridge registered",
		"channel", cfg.Channel,
		"package", cfg.Package.Name,
		"api_level", info.EffectiveAPILevel(),
		"signing_certificates", lister.UsesSigningCertificates())
	return messenger, nil
}

// serveHTTP runs the HTTP transport until ctx is cancelled, then shuts down
// gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger logging.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving method channel over HTTP", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func printServeHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: identitybridge serve [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve the identity method channel. By default requests are read as JSON")
	fmt.Fprintln(w, "lines from stdin and replies written to stdout:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, `  {"id":1,"channel":"com.roaddetection.security","method":"getSignature"}`)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -c, --config FILE   Config file (default $IDENTITYBRIDGE_DIR/bridge.lua)")
	fmt.Fprintln(w, "      --apk PATH      APK of the current package (overrides bridge.package.apk)")
	fmt.Fprintln(w, "      --api-level N   Platform API level (default: config, then host)")
	fmt.Fprintln(w, "      --http [ADDR]   Serve over HTTP instead (default bridge.http.addr)")
	fmt.Fprintln(w, "  -h, --help          Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "HTTP endpoints:")
	fmt.Fprintln(w, "  POST /channels/{channel}/{method}   body: JSON arguments")
	fmt.Fprintln(w, "  GET  /healthz")
}
