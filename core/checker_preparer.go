package core

import (
	"context"
	"os"
)

// PrepareChecker resolves a problem's checker (or interactor) artifact,
// preferring a cached compiled binary over compiling from source.
// name is the checker_name or interactor_name as loaded by the
// Problem Loader.
func PrepareChecker(ctx context.Context, sandbox Sandbox, cfg Config, problem *Problem, name string) (*CheckerPrepared, error) {
	binPath := CheckerBinPath(problem.ProblemDir, name)
	if _, err := os.Stat(binPath); err == nil {
		return sandbox.LoadCheckerBlob(ctx, binPath)
	}

	source, err := ReadCheckerSource(cfg, problem.Pid, name)
	if err != nil {
		return nil, err
	}
	return sandbox.PrepareChecker(ctx, source, cfg.TestlibIncludePath)
}
