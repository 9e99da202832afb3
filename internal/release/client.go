package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roaddetection/identitybridge/internal/logging"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint
	DefaultAPIURL = "https://api.github.com"
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "identitybridge/1.0"

	maxAPIResponse = 10 << 20
)

// ErrNoRelease is returned when a repository has no published release.
var ErrNoRelease = errors.New("no published release")

// APIError is a non-200 answer from the release API.
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("release API %s: status %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("release API %s: status %d", e.URL, e.StatusCode)
}

// NotFound reports whether the API answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Owner  string
	Repo   string
	APIURL string // defaults to DefaultAPIURL
	Token  string // optional bearer token
	HTTP   *http.Client
	Logger logging.Logger
}

// Client reads releases of one GitHub repository.
type Client struct {
	baseURL   string
	owner     string
	repo      string
	token     string
	userAgent string
	http      *http.Client
	logger    logging.Logger
}

// NewClient creates a release client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("release client: owner and repo are required")
	}
	base := opts.APIURL
	if base == "" {
		base = DefaultAPIURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("release client: invalid API URL: %w", err)
	}

	c := &Client{
		baseURL:   strings.TrimRight(base, "/"),
		owner:     opts.Owner,
		repo:      opts.Repo,
		token:     opts.Token,
		userAgent: DefaultUserAgent,
		http:      opts.HTTP,
		logger:    opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	return c, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// PageURL is the human-facing releases page, used when no asset exists.
func (c *Client) PageURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/releases", c.owner, c.repo)
}

// List returns the repository's releases, newest first as the API orders
// them.
func (c *Client) List(ctx context.Context) ([]Release, error) {
	var releases []Release
	if err := c.get(ctx, c.repoPath("releases"), &releases); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return releases, nil
}

// Latest returns the newest non-draft release.
func (c *Client) Latest(ctx context.Context) (*Release, error) {
	releases, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range releases {
		if !releases[i].Draft {
			return &releases[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", c.Repository(), ErrNoRelease)
}

// ByTag returns the release with the given tag.
func (c *Client) ByTag(ctx context.Context, tag string) (*Release, error) {
	if tag == "" {
		return nil, fmt.Errorf("release by tag: empty tag")
	}
	var r Release
	if err := c.get(ctx, c.repoPath("releases", "tags", url.PathEscape(tag)), &r); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return nil, fmt.Errorf("release %s: %w", tag, ErrNoRelease)
		}
		return nil, fmt.Errorf("release %s: %w", tag, err)
	}
	return &r, nil
}

// Resolve returns the release for tag, or the latest one when tag is empty.
func (c *Client) Resolve(ctx context.Context, tag string) (*Release, error) {
	if tag == "" {
		return c.Latest(ctx)
	}
	return c.ByTag(ctx, tag)
}

func (c *Client) repoPath(parts ...string) string {
	return c.baseURL + "/repos/" + url.PathEscape(c.owner) + "/" + url.PathEscape(c.repo) + "/" + strings.Join(parts, "/")
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("release API request", "url", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, URL: endpoint}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
