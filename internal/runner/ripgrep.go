// Package runner spawns the external search tool (ripgrep) and falls
// back to a bounded directory walk when the tool is unavailable. Callers
// see one contract regardless of which path executed.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/vault"
)

// Exit codes ripgrep reports.
const (
	exitMatch   = 0
	exitNoMatch = 1 // empty success, not an error
	exitError   = 2
)

// Config holds the invocation limits shared by every request.
type Config struct {
	Binary      string
	Threads     int
	MaxFilesize string // rg --max-filesize value, e.g. "1M"
	MaxColumns  int
	MaxDepth    int
	Timeout     time.Duration

	// Fallback bounds.
	FileTimeout     time.Duration
	MaxLinesPerFile int
}

// Request describes one search invocation.
type Request struct {
	// Pattern is the regex to match. Empty means pure file listing.
	Pattern string
	// Root is the directory to search.
	Root string
	// Globs are include globs (e.g. "*.md").
	Globs []string
	// Excludes are directory/file names to skip; each is applied both
	// bare and as **/name/** to cover subdirectories.
	Excludes []string
}

// Result is the outcome of a run. Lines holds one "path:match" line per
// hit (or one path per line for file listings).
type Result struct {
	ExitCode int
	Lines    []string
	Stderr   string
	Fallback bool
}

// Runner executes search requests.
type Runner struct {
	cfg    Config
	vault  vault.Provider
	logger *slog.Logger
}

// New creates a Runner. The vault provider backs the fallback path.
func New(cfg Config, v vault.Provider, logger *slog.Logger) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = "rg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = time.Second
	}
	if cfg.MaxLinesPerFile <= 0 {
		cfg.MaxLinesPerFile = 2000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, vault: v, logger: logger}
}

// buildArgs translates a request into a ripgrep argument list.
func (r *Runner) buildArgs(req Request) []string {
	args := []string{"--color", "never", "--no-heading"}

	if req.Pattern == "" {
		args = append(args, "--files")
	} else {
		args = append(args, "--only-matching", "--no-line-number", "--with-filename")
	}

	if r.cfg.MaxFilesize != "" {
		args = append(args, "--max-filesize", r.cfg.MaxFilesize)
	}
	if r.cfg.MaxColumns > 0 && req.Pattern != "" {
		args = append(args, "--max-columns", strconv.Itoa(r.cfg.MaxColumns))
	}
	if r.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(r.cfg.Threads))
	}
	if r.cfg.MaxDepth > 0 {
		args = append(args, "--max-depth", strconv.Itoa(r.cfg.MaxDepth))
	}

	for _, g := range req.Globs {
		args = append(args, "--glob", g)
	}
	for _, e := range req.Excludes {
		args = append(args, "--glob", "!"+e, "--glob", "!**/"+e+"/**")
	}

	if req.Pattern != "" {
		args = append(args, "--regexp", req.Pattern)
	}
	args = append(args, "--", req.Root)
	return args
}

// Run executes the request, blocking until completion, timeout, or ctx
// cancellation. Tool absence or tool-reported failure switches to the
// fallback walk transparently; a timeout is terminal and reported as
// apperr.ErrTimeout.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Binary, r.buildArgs(req)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	switch ctxErr := runCtx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return Result{}, fmt.Errorf("runner: %s: %w", r.cfg.Binary, apperr.ErrTimeout)
	case ctxErr != nil:
		// Caller cancelled; a fallback walk would only fail the same way.
		return Result{}, fmt.Errorf("runner: %s: %w", r.cfg.Binary, ctxErr)
	}

	switch {
	case err == nil:
		return Result{ExitCode: exitMatch, Lines: splitLines(stdout.String()), Stderr: stderr.String()}, nil
	case isNoMatch(err):
		return Result{ExitCode: exitNoMatch, Stderr: stderr.String()}, nil
	default:
		// Tool missing (exec.ErrNotFound), exit 2, or any other failure:
		// fall back to the portable walk.
		r.logger.Debug("runner: tool failed, using fallback",
			slog.String("binary", r.cfg.Binary),
			slog.String("error", err.Error()))
		return r.runFallback(ctx, req)
	}
}

// Start executes the request without blocking and delivers the outcome
// via cb from a separate goroutine.
func (r *Runner) Start(ctx context.Context, req Request, cb func(Result, error)) {
	go func() {
		res, err := r.Run(ctx, req)
		cb(res, err)
	}()
}

func isNoMatch(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == exitNoMatch
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
