package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roaddetection/identitybridge/internal/config"
)

const (
	dirPermissions    = 0755
	configPermissions = 0644
)

type initFlags struct {
	releaseFlags
	force       bool
	packageName string
	apkPath     string
	apiLevel    int
	keyring     string
	expect      string
}

func parseInitFlags(args []string) (*initFlags, error) {
	flags := &initFlags{}
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
			case "--force":
				flags.force = true
			case "--package", "-p":
				flags.packageName, err = r.value(arg)
			case "--apk":
				flags.apkPath, err = r.value(arg)
			case "--api-level":
				flags.apiLevel, err = r.intValue(arg)
			case "--keyring":
				flags.keyring, err = r.value(arg)
			case "--expect":
				flags.expect, err = r.value(arg)
			default:
				handled = false
			}
		}
		if err != nil {
			return nil, err
		}
		if !handled {
			return nil, unknownOption("init", arg)
		}
	}
	return flags, nil
}

// createDirectoryStructure creates the identitybridge directories.
// This is idempotent - safe to call multiple times
func createDirectoryStructure(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory cannot be empty")
	}

	dirs := []string{
		dir,
		filepath.Join(dir, "keyrings"),
		filepath.Join(dir, cacheDirName, "releases"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, dirPermissions); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

// initialConfig builds the starter config from defaults and flags.
func initialConfig(flags *initFlags) (*config.Config, error) {
	cfg := config.Default()
	cfg.Package.Name = firstNonEmpty(flags.packageName, cfg.Package.Name)
	cfg.Package.APK = flags.apkPath
	cfg.APILevel = flags.apiLevel
	cfg.Releases.Keyring = flags.keyring
	cfg.Releases.Expect = flags.expect
	if err := flags.applyTo(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runInit handles the `identitybridge init` subcommand
func runInit(args []string, out io.Writer) error {
	flags, err := parseInitFlags(args)
	if err != nil {
		return err
	}
	if flags.help {
		printInitHelp(out)
		return nil
	}

	dir, err := getDir()
	if err != nil {
		return fmt.Errorf("get identitybridge directory: %w", err)
	}

	configPath := flags.configPath
	if configPath == "" {
		configPath = filepath.Join(dir, configFileName)
	}
	if configPath, err = config.ExpandPath(configPath); err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil && !flags.force {
		return fmt.Errorf("config already exists: %s\nUse --force to overwrite", configPath)
	}

	cfg, err := initialConfig(flags)
	if err != nil {
		return err
	}

	if err := createDirectoryStructure(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), dirPermissions); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	luaCode, err := config.NewGenerator().Generate(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, []byte(luaCode), configPermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(out, "Wrote %s\n", configPath)
	if cfg.Package.APK == "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Next: set bridge.package.apk to the installed APK, then run")
		fmt.Fprintln(out, "  identitybridge signature")
	}
	return nil
}

func printInitHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: identitybridge init [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Create the identitybridge directory and a starter config.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -c, --config FILE     Where to write the config (default $IDENTITYBRIDGE_DIR/bridge.lua)")
	fmt.Fprintln(w, "  -p, --package NAME    Package name")
	fmt.Fprintln(w, "      --apk PATH        Installed APK of the package")
	fmt.Fprintln(w, "      --api-level N     Platform API level (default: detect)")
	fmt.Fprintln(w, "      --owner OWNER     Release repository owner")
	fmt.Fprintln(w, "      --repo REPO       Release repository name")
	fmt.Fprintln(w, "      --api-url URL     Release API base URL")
	fmt.Fprintln(w, "      --keyring FILE    OpenPGP keyring for release signatures")
	fmt.Fprintln(w, "      --expect FP       Fingerprint release APKs must carry")
	fmt.Fprintln(w, "      --force           Overwrite an existing config")
	fmt.Fprintln(w, "  -h, --help            Show this help message")
}
