package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/avelez/codetour/pkg/schema"
)

const (
	defaultBaseURL     = "https://api.github.com"
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxFileSize = 100 * 1024 // 100 KB
)

// Config configures the GitHub API client.
type Config struct {
	// Token is the optional GitHub API token. Unauthenticated requests work
	// for public repositories but hit a much lower rate limit.
	Token string
	// BaseURL overrides the GitHub API endpoint.
	BaseURL string
	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// Client crawls repositories through the GitHub contents API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger

	// sleep is swapped out in tests to avoid real rate-limit waits.
	sleep func(time.Duration)
}

// NewClient creates a GitHub API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      cfg.Token,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// File is one downloaded repository file.
type File struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

// FetchOptions narrows which files a crawl downloads. Include patterns match
// the file name, exclude patterns match the repository-relative path.
type FetchOptions struct {
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSize     int64
}

// FetchResult is the outcome of a repository crawl.
type FetchResult struct {
	Locator      Locator `json:"locator"`
	Files        []File  `json:"files"`
	SkippedCount int     `json:"skipped_count"`
}

// FetchRepository resolves the repository URL and recursively downloads every
// file under its subpath that passes the include/exclude patterns and the
// size limit. Files are returned in crawl order (directory listing order).
func (c *Client) FetchRepository(ctx context.Context, repoURL string, opts FetchOptions) (*FetchResult, error) {
	loc, err := c.ResolveLocator(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}

	result := &FetchResult{Locator: *loc}
	if err := c.crawl(ctx, loc, loc.SubPath, opts, result); err != nil {
		return nil, err
	}

	c.logger.Info("repository fetched",
		"repo", loc.String(),
		"files", len(result.Files),
		"skipped", result.SkippedCount)
	return result, nil
}

// contentItem is the subset of the contents API response the crawler needs.
type contentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
	URL         string `json:"url"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
}

func (c *Client) crawl(ctx context.Context, loc *Locator, dir string, opts FetchOptions, result *FetchResult) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, loc.Owner, loc.Repo, dir)
	if loc.Ref != "" {
		endpoint += "?ref=" + url.QueryEscape(loc.Ref)
	}

	body, err := c.get(ctx, endpoint, dir, loc)
	if err != nil {
		return err
	}

	// The contents API returns an object for a file and an array for a
	// directory; normalize to a list.
	var items []contentItem
	if err := json.Unmarshal(body, &items); err != nil {
		var single contentItem
		if err := json.Unmarshal(body, &single); err != nil {
			return schema.NewErrorf(schema.ErrCodeFetch, "decode contents of %q", dir).WithCause(err)
		}
		items = []contentItem{single}
	}

	for _, item := range items {
		switch item.Type {
		case "dir":
			if err := c.crawl(ctx, loc, item.Path, opts, result); err != nil {
				return err
			}
		case "file":
			if !shouldInclude(item.Path, item.Name, opts) {
				c.logger.Debug("skipping file", "path", item.Path, "reason", "pattern")
				continue
			}
			if item.Size > opts.MaxFileSize {
				result.SkippedCount++
				c.logger.Debug("skipping file", "path", item.Path, "reason", "size", "size", item.Size)
				continue
			}
			content, ok, err := c.download(ctx, loc, item, opts.MaxFileSize)
			if err != nil {
				return err
			}
			if !ok {
				result.SkippedCount++
				continue
			}
			result.Files = append(result.Files, File{Path: item.Path, Size: item.Size, Content: content})
		}
	}
	return nil
}

// download fetches a file's content, preferring the raw download URL and
// falling back to the base64-encoded contents endpoint. Returns ok=false when
// the file turned out to exceed the size limit after all.
func (c *Client) download(ctx context.Context, loc *Locator, item contentItem, maxSize int64) (string, bool, error) {
	if item.DownloadURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
		if err != nil {
			return "", false, schema.NewErrorf(schema.ErrCodeFetch, "build download request for %q", item.Path).WithCause(err)
		}
		c.setHeaders(req)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", false, schema.NewErrorf(schema.ErrCodeFetch, "download %q", item.Path).WithCause(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", false, schema.NewErrorf(schema.ErrCodeFetch, "download %q: status %d", item.Path, resp.StatusCode)
		}
		if resp.ContentLength > maxSize {
			return "", false, nil
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
		if err != nil {
			return "", false, schema.NewErrorf(schema.ErrCodeFetch, "read %q", item.Path).WithCause(err)
		}
		if int64(len(data)) > maxSize {
			return "", false, nil
		}
		return string(data), true, nil
	}

	// No download URL (e.g. submodule-adjacent entries); use the contents
	// endpoint, which returns base64.
	body, err := c.get(ctx, item.URL, item.Path, loc)
	if err != nil {
		return "", false, err
	}
	var full contentItem
	if err := json.Unmarshal(body, &full); err != nil {
		return "", false, schema.NewErrorf(schema.ErrCodeFetch, "decode content of %q", item.Path).WithCause(err)
	}
	if full.Encoding != "base64" || full.Content == "" {
		c.logger.Warn("unexpected content format", "path", item.Path, "encoding", full.Encoding)
		return "", false, nil
	}
	if int64(float64(len(full.Content))*0.75) > maxSize {
		return "", false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(full.Content, "\n", ""))
	if err != nil {
		return "", false, schema.NewErrorf(schema.ErrCodeFetch, "decode base64 content of %q", item.Path).WithCause(err)
	}
	return string(decoded), true, nil
}

// get performs an authenticated GET against the GitHub API, blocking through
// rate-limit responses and mapping 404s to typed errors.
func (c *Client) get(ctx context.Context, endpoint, what string, loc *Locator) ([]byte, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeFetch, "build request for %q", what).WithCause(err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeFetch, "fetch %q", what).WithCause(err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeFetch, "read response for %q", what).WithCause(readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil

		case resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(string(body)), "rate limit exceeded"):
			wait := c.rateLimitWait(resp.Header.Get("X-RateLimit-Reset"))
			c.logger.Warn("rate limit exceeded, waiting", "wait", wait, "endpoint", what)
			c.sleep(wait)
			continue

		case resp.StatusCode == http.StatusNotFound:
			target := fmt.Sprintf("repository %s/%s", loc.Owner, loc.Repo)
			if what != "" {
				target = fmt.Sprintf("path %q in %s/%s", what, loc.Owner, loc.Repo)
			}
			return nil, c.notFoundError(target)

		default:
			return nil, schema.NewErrorf(schema.ErrCodeFetch, "fetch %q: status %d: %s",
				what, resp.StatusCode, truncate(string(body), 200))
		}
	}
}

func (c *Client) fetchBranches(ctx context.Context, owner, repo string) ([]string, error) {
	loc := &Locator{Owner: owner, Repo: repo}
	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/%s/branches?per_page=100", c.baseURL, owner, repo), "", loc)
	if err != nil {
		return nil, err
	}
	var branches []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &branches); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeFetch, "decode branches of %s/%s", owner, repo).WithCause(err)
	}
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	return names, nil
}

func (c *Client) checkTree(ctx context.Context, owner, repo, tree string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/git/trees/%s", c.baseURL, owner, repo, tree), nil)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeFetch, "build tree request").WithCause(err)
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeFetch, "check tree %q", tree).WithCause(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
}

func (c *Client) rateLimitWait(resetHeader string) time.Duration {
	reset, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil || reset == 0 {
		return time.Minute
	}
	wait := time.Until(time.Unix(reset, 0)) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// shouldInclude applies include patterns to the file name and exclude
// patterns to the full path. Exclude patterns are also tried against every
// path suffix so "*tests/*" catches files in nested test directories.
func shouldInclude(filePath, fileName string, opts FetchOptions) bool {
	included := len(opts.IncludePatterns) == 0
	for _, p := range opts.IncludePatterns {
		if ok, _ := path.Match(p, fileName); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range opts.ExcludePatterns {
		if matchPath(p, filePath) {
			return false
		}
	}
	return true
}

func matchPath(pattern, filePath string) bool {
	if ok, _ := path.Match(pattern, filePath); ok {
		return true
	}
	segments := strings.Split(filePath, "/")
	for i := 1; i < len(segments); i++ {
		if ok, _ := path.Match(pattern, strings.Join(segments[i:], "/")); ok {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
