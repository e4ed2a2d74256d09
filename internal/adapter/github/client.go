package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"ctxpipe/internal/domain"
)

// DefaultTimeout is the outbound HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Config identifies the repository the adapter serves.
type Config struct {
	Owner   string
	Repo    string
	Token   string
	BaseURL string // API root; empty means api.github.com
	Timeout time.Duration
	Limiter *RateLimiter
}

// Client is a repository-scoped GitHub API client.
type Client struct {
	gh          *gh.Client
	owner       string
	repo        string
	rateLimiter *RateLimiter
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var missing []string
	if cfg.Owner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if cfg.Repo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if cfg.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = timeout
	client := gh.NewClient(tc)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("%w: github api url %q: %v", domain.ErrConfiguration, cfg.BaseURL, err)
		}
		client.BaseURL = u
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRate, DefaultBurst)
	}

	return &Client{
		gh:          client,
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		rateLimiter: limiter,
	}, nil
}

// Repo returns "owner/repo".
func (c *Client) Repo() string {
	return c.owner + "/" + c.repo
}

// ListContents lists a directory, or returns the single entry for a file.
func (c *Client) ListContents(ctx context.Context, path, ref string) ([]*gh.RepositoryContent, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}
	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "list contents")
	}
	if file != nil {
		return []*gh.RepositoryContent{file}, nil
	}
	return dir, nil
}

// IssueQuery filters ListIssues.
type IssueQuery struct {
	State   string
	Labels  []string
	PerPage int
}

// ListIssues returns one page of issues.
func (c *Client) ListIssues(ctx context.Context, q IssueQuery) ([]*gh.Issue, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.IssueListByRepoOptions{
		State:       q.State,
		Labels:      q.Labels,
		ListOptions: gh.ListOptions{PerPage: q.PerPage},
	}
	issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "list issues")
	}
	return issues, nil
}

// CreateIssue opens an issue.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*gh.Issue, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req := &gh.IssueRequest{Title: gh.Ptr(title)}
	if body != "" {
		req.Body = gh.Ptr(body)
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	issue, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "create issue")
	}
	return issue, nil
}

// CommentIssue adds a comment to an issue or pull request.
func (c *Client) CommentIssue(ctx context.Context, number int, body string) (*gh.IssueComment, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	comment, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{Body: gh.Ptr(body)})
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "comment issue")
	}
	return comment, nil
}

// ListPulls returns one page of pull requests.
func (c *Client) ListPulls(ctx context.Context, state string, perPage int) ([]*gh.PullRequest, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	opts := &gh.PullRequestListOptions{
		State:       state,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "list pulls")
	}
	return prs, nil
}

func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.UpdateFromResponse(resp.Response)
}

// wrapError converts go-github errors into RemoteError so the upstream
// status can be surfaced.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &domain.RemoteError{
			Service: "github",
			Status:  http.StatusTooManyRequests,
			Message: fmt.Sprintf("%s: rate limit exceeded, resets at %s", operation, rateLimitErr.Rate.Reset.Format(time.RFC3339)),
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return &domain.RemoteError{
			Service: "github",
			Status:  ghErr.Response.StatusCode,
			Message: fmt.Sprintf("%s: %s", operation, ghErr.Message),
		}
	}

	return fmt.Errorf("%w: github %s: %v", domain.ErrBackendUnavailable, operation, err)
}
