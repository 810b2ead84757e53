package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/starford/ansuz/internal/apperr"
)

// runFallback reproduces the subprocess contract with a bounded directory
// walk and per-file line scans. Individual slow or unreadable files are
// skipped, never fatal; only a whole-walk timeout aborts the pass.
func (r *Runner) runFallback(ctx context.Context, req Request) (Result, error) {
	if r.vault == nil {
		return Result{}, fmt.Errorf("runner: no fallback provider: %w", apperr.ErrToolUnavailable)
	}

	files, err := r.vault.List(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("runner: fallback list: %w", apperr.ErrTimeout)
		}
		return Result{}, fmt.Errorf("runner: fallback list: %w", apperr.ErrToolUnavailable)
	}

	if req.Pattern == "" {
		lines := make([]string, 0, len(files))
		for _, f := range files {
			lines = append(lines, f.Path)
		}
		return Result{ExitCode: exitMatch, Lines: lines, Fallback: true}, nil
	}

	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		return Result{}, fmt.Errorf("runner: fallback pattern: %w", apperr.ErrValidation)
	}

	var out []string
	skipped := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			// Whole-extraction deadline hit: return what we have.
			r.logger.Debug("runner: fallback truncated",
				slog.Int("matched_files", len(out)),
				slog.Int("skipped", skipped))
			return Result{ExitCode: exitMatch, Lines: out, Fallback: true}, nil
		}

		fileCtx, cancel := context.WithTimeout(ctx, r.cfg.FileTimeout)
		lines, readErr := r.vault.ReadLines(fileCtx, f.Path, r.cfg.MaxLinesPerFile)
		cancel()
		if readErr != nil {
			skipped++
			continue
		}
		for _, line := range lines {
			for _, m := range re.FindAllString(line, -1) {
				out = append(out, f.Path+":"+m)
			}
		}
	}

	exit := exitMatch
	if len(out) == 0 {
		exit = exitNoMatch
	}
	return Result{ExitCode: exit, Lines: out, Fallback: true}, nil
}
