package main

import (
	"fmt"
	"os"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 0
	}

	var err error
	code := 0

	switch args[0] {
	case "--version", "version":
		fmt.Printf("identitybridge %s\n", Version)
		return 0
	case "--help", "-h", "help":
		printUsage()
		return 0
	case "signature":
		code, err = runSignature(args[1:], os.Stdout)
	case "serve":
		err = runServe(args[1:], os.Stdin, os.Stdout)
	case "releases":
		err = runReleases(args[1:], os.Stdout)
	case "fetch":
		code, err = runFetch(args[1:], os.Stdout)
	case "init":
		err = runInit(args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Run 'identitybridge --help' for usage")
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func printUsage() {
	fmt.Println("identitybridge - app signing identity bridge")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  identitybridge --version            Show version information")
	fmt.Println("  identitybridge init [options]       Write a starter config")
	fmt.Println("  identitybridge signature [options]  Print the package signing fingerprint")
	fmt.Println("  identitybridge serve [options]      Serve the method channel on stdio or HTTP")
	fmt.Println("  identitybridge releases [options]   List published releases")
	fmt.Println("  identitybridge fetch [options]      Download, verify and fingerprint a release APK")
	fmt.Println()
	fmt.Println("Run 'identitybridge <command> --help' for command options.")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  %-26s Config and cache directory (default ~/.config/identitybridge)\n", EnvDir)
	fmt.Printf("  %-26s debug, info, warn or error (default warn)\n", EnvLogLevel)
	fmt.Printf("  %-26s Token for the release API\n", EnvGitHubToken)
}
