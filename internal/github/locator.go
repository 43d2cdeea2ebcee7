package github

import (
	"context"
	"net/url"
	"strings"

	"github.com/avelez/codetour/pkg/schema"
)

// Locator identifies a crawlable location inside a GitHub repository:
// owner/repo, an optional ref (branch name or tree SHA) and an optional
// subdirectory to start from.
type Locator struct {
	Owner   string
	Repo    string
	Ref     string
	SubPath string
}

func (l Locator) String() string {
	s := l.Owner + "/" + l.Repo
	if l.Ref != "" {
		s += "@" + l.Ref
	}
	if l.SubPath != "" {
		s += "/" + l.SubPath
	}
	return s
}

// splitRepoURL extracts the path segments of a GitHub repository URL.
// Returns owner, repo and the remaining segments (e.g. ["tree", "main", "src"]).
func splitRepoURL(rawURL string) (owner, repo string, rest []string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid repository URL %q", rawURL).WithCause(err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid repository URL %q: expected github.com/{owner}/{repo}", rawURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), parts[2:], nil
}

// ResolveLocator parses a repository URL and resolves any /tree/{ref}/{path}
// segment against the repository's actual branches. Branch names may contain
// slashes, so the branch list is consulted before assuming the first segment
// after /tree/ is the whole ref; if no branch matches, the segment is checked
// as a tree SHA.
func (c *Client) ResolveLocator(ctx context.Context, rawURL string) (*Locator, error) {
	owner, repo, rest, err := splitRepoURL(rawURL)
	if err != nil {
		return nil, err
	}
	loc := &Locator{Owner: owner, Repo: repo}

	if len(rest) == 0 || rest[0] != "tree" {
		return loc, nil
	}
	if len(rest) < 2 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid repository URL %q: /tree/ without a ref", rawURL)
	}

	relevant := strings.Join(rest[1:], "/")
	branches, err := c.fetchBranches(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	for _, b := range branches {
		if relevant == b || strings.HasPrefix(relevant, b+"/") {
			loc.Ref = b
			loc.SubPath = strings.TrimPrefix(strings.TrimPrefix(relevant, b), "/")
			return loc, nil
		}
	}

	// Not a branch; accept a tree SHA if the repository has it.
	candidate := rest[1]
	ok, err := c.checkTree(ctx, owner, repo, candidate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"ref %q does not match any branch or tree in %s/%s", candidate, owner, repo)
	}
	loc.Ref = candidate
	if len(rest) > 2 {
		loc.SubPath = strings.Join(rest[2:], "/")
	}
	return loc, nil
}

// notFoundError builds the 404 message, which differs depending on whether a
// token was configured so the operator knows where to look.
func (c *Client) notFoundError(what string) *schema.CodetourError {
	if c.token == "" {
		return schema.NewErrorf(schema.ErrCodeNotFound,
			"%s not found or is private; provide a GitHub token to access private repositories", what)
	}
	return schema.NewErrorf(schema.ErrCodeNotFound,
		"%s not found or the provided token lacks access", what)
}
