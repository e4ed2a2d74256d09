package checkout

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

var _ port.Checkout = (*Resolver)(nil)

// Resolver materializes local and remote-repo sources.
type Resolver struct {
	baseDir string
	token   string
	gitBin  string
}

// NewResolver creates a resolver. Relative local paths resolve against
// baseDir. token, when non-empty, is sent as a bearer header for https remotes.
func NewResolver(baseDir, token string) *Resolver {
	return &Resolver{
		baseDir: baseDir,
		token:   token,
		gitBin:  "git",
	}
}

// Materialize returns the root of the source tree. For remote sources the
// tree lives in a temporary directory removed by cleanup; cleanup is always
// non-nil and safe to call.
func (r *Resolver) Materialize(ctx context.Context, src domain.Source) (string, func(), error) {
	noop := func() {}

	switch src.Kind {
	case domain.SourceLocal:
		path := src.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.baseDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", noop, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, src.Path, err)
		}
		if !info.IsDir() {
			return "", noop, fmt.Errorf("%w: %s is not a directory", domain.ErrSourceUnavailable, src.Path)
		}
		return path, noop, nil

	case domain.SourceRemote:
		return r.clone(ctx, src)

	default:
		return "", noop, fmt.Errorf("%w: unknown source kind %q", domain.ErrConfiguration, src.Kind)
	}
}

func (r *Resolver) clone(ctx context.Context, src domain.Source) (string, func(), error) {
	tmp, err := os.MkdirTemp("", "ctxpipe-src-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create checkout dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }

	dir := filepath.Join(tmp, "repo")
	args := r.cloneArgs(src, dir)

	cmd := exec.CommandContext(ctx, r.gitBin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cleanup()
		msg := strings.TrimSpace(stderr.String())
		if r.token != "" {
			msg = strings.ReplaceAll(msg, r.token, "***")
		}
		return "", func() {}, fmt.Errorf("%w: git clone %s@%s: %v: %s", domain.ErrSourceUnavailable, src.URL, src.Ref, err, msg)
	}
	return dir, cleanup, nil
}

func (r *Resolver) cloneArgs(src domain.Source, dir string) []string {
	var args []string
	if r.token != "" && isHTTPS(src.URL) {
		args = append(args, "-c", "http.extraHeader=Authorization: Bearer "+r.token)
	}
	args = append(args, "clone", "--depth", "1", "--single-branch")
	if src.Ref != "" {
		args = append(args, "--branch", src.Ref)
	}
	return append(args, "--", src.URL, dir)
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}
