package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/roaddetection/identitybridge/internal/config"
	"github.com/roaddetection/identitybridge/internal/logging"
	"github.com/roaddetection/identitybridge/internal/release"
)

type releaseFlags struct {
	commonFlags
	owner  string
	repo   string
	apiURL string
}

// parseReleaseFlag handles the repository flags shared by releases and
// fetch.
func (f *releaseFlags) parseReleaseFlag(r *argReader, arg string) (bool, error) {
	var err error
	switch arg {
	case "--owner":
		f.owner, err = r.value(arg)
	case "--repo":
		f.repo, err = r.value(arg)
	case "--api-url":
		f.apiURL, err = r.value(arg)
	default:
		return false, nil
	}
	return true, err
}

// applyTo overrides config values with the flags that were given.
func (f *releaseFlags) applyTo(cfg *config.Config) error {
	if f.owner != "" {
		cfg.Releases.Owner = f.owner
	}
	if f.repo != "" {
		cfg.Releases.Repo = f.repo
	}
	if f.apiURL != "" {
		cfg.Releases.APIURL = f.apiURL
	}
	return cfg.Validate()
}

func parseReleasesFlags(args []string) (*releaseFlags, error) {
	flags := &releaseFlags{}
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
		if err != nil {
			return nil, err
		}
		if !handled {
			return nil, unknownOption("releases", arg)
		}
	}
	return flags, nil
}

// newReleaseClient builds the release API client from config and the
// GITHUB_TOKEN environment variable.
func newReleaseClient(cfg *config.Config, logger logging.Logger) (*release.Client, error) {
	return release.NewClient(release.ClientOptions{
		Owner:  cfg.Releases.Owner,
		Repo:   cfg.Releases.Repo,
		APIURL: cfg.Releases.APIURL,
		Token:  os.Getenv(EnvGitHubToken),
		Logger: logger,
	})
}

// releaseSummary is the report row for one release.
type releaseSummary struct {
	Tag        string    `json:"tag" yaml:"tag"`
	Name       string    `json:"name,omitempty" yaml:"name,omitempty"`
	Published  time.Time `json:"published" yaml:"published"`
	Prerelease bool      `json:"prerelease,omitempty" yaml:"prerelease,omitempty"`
	Draft      bool      `json:"draft,omitempty" yaml:"draft,omitempty"`
	APK        string    `json:"apk,omitempty" yaml:"apk,omitempty"`
	Size       string    `json:"size,omitempty" yaml:"size,omitempty"`
	URL        string    `json:"url,omitempty" yaml:"url,omitempty"`
}

func summarize(releases []release.Release) []releaseSummary {
	summaries := make([]releaseSummary, 0, len(releases))
	for i := range releases {
		r := &releases[i]
		s := releaseSummary{
			Tag:        r.TagName,
			Name:       r.Name,
			Published:  r.PublishedAt,
			Prerelease: r.Prerelease,
			Draft:      r.Draft,
		}
		if apk := release.FindAPKAsset(r); apk != nil {
			s.APK = apk.Name
			s.Size = release.FormatSize(apk.Size)
			s.URL = apk.BrowserDownloadURL
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// runReleases handles the `identitybridge releases` subcommand
func runReleases(args []string, out io.Writer) error {
	flags, err := parseReleasesFlags(args)
	if err != nil {
		return err
	}
	if flags.help {
		printReleasesHelp(out)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := newLogger()
	cfg, err := loadConfig(ctx, flags.commonFlags, logger)
	if err != nil {
		return err
	}
	if err := flags.applyTo(cfg); err != nil {
		return err
	}

	client, err := newReleaseClient(cfg, logger)
	if err != nil {
		return err
	}

	releases, err := client.List(ctx)
	if err != nil {
		return err
	}
	summaries := summarize(releases)

	return render(out, flags.format, summaries, func(w io.Writer) error {
		if len(summaries) == 0 {
			fmt.Fprintf(w, "No releases published for %s.\n", client.Repository())
			fmt.Fprintf(w, "See %s\n", client.PageURL())
			return nil
		}

		fmt.Fprintf(w, "Releases of %s:\n\n", client.Repository())
		for _, s := range summaries {
			label := s.Tag
			if s.Draft {
				label += " (draft)"
			} else if s.Prerelease {
				label += " (pre-release)"
			}
			published := "-"
			if !s.Published.IsZero() {
				published = s.Published.Format("2006-01-02")
			}
			apk := "no APK"
			if s.APK != "" {
				apk = s.APK
				if s.Size != "" {
					apk += " (" + s.Size + ")"
				}
			}
			fmt.Fprintf(w, "  %-24s %s  %s\n", label, published, apk)
		}
		return nil
	})
}

func printReleasesHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: identitybridge releases [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "List the releases published for the app and their APK assets.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -c, --config FILE    Config file (default $IDENTITYBRIDGE_DIR/bridge.lua)")
	fmt.Fprintln(w, "      --owner OWNER    Repository owner (overrides bridge.releases.owner)")
	fmt.Fprintln(w, "      --repo REPO      Repository name (overrides bridge.releases.repo)")
	fmt.Fprintln(w, "      --api-url URL    Release API base URL")
	fmt.Fprintln(w, "  -f, --format FORMAT  Output format: text, json or yaml")
	fmt.Fprintln(w, "  -h, --help           Show this help message")
}
