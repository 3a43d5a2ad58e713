// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// DefaultImage provides pandoc and a TeX distribution with xelatex.
const DefaultImage = "pandoc/latex:latest"

// ErrToolUnavailable is returned when a tool is neither on PATH nor
// provided by the configured container image.
var ErrToolUnavailable = errors.New("tool not available")

// DefaultImageTools lists the tools DefaultImage provides.
var DefaultImageTools = []string{"pandoc", "xelatex", "pdflatex", "lualatex"}

// Location reports where a tool will run.
type Location string

const (
	LocationLocal     Location = "local"
	LocationContainer Location = "container"
	LocationNone      Location = "unavailable"
)

// Runner runs external tools from PATH, falling back to a container image.
type Runner struct {
	// Image is the container image used when a tool is not installed.
	Image string

	// ImageTools lists the tools Image provides.
	ImageTools []string

	exec executor

	once    sync.Once
	runtime Runtime
	rtErr   error
}

// NewRunner returns a Runner backed by os/exec. An empty image selects
// DefaultImage.
func NewRunner(image string) *Runner {
	return newRunner(image, defaultExec)
}

func newRunner(image string, exec executor) *Runner {
	if image == "" {
		image = DefaultImage
	}
	return &Runner{
		Image:      image,
		ImageTools: slices.Clone(DefaultImageTools),
		exec:       exec,
	}
}

// Local reports whether tool is on PATH.
func (r *Runner) Local(tool string) bool {
	_, err := r.exec.LookPath(tool)
	return err == nil
}

// Locate reports where tool would run.
func (r *Runner) Locate(tool string) Location {
	if r.Local(tool) {
		return LocationLocal
	}
	if slices.Contains(r.ImageTools, tool) {
		if _, err := r.detect(); err == nil {
			return LocationContainer
		}
	}
	return LocationNone
}

// Available reports whether tool can run locally or in the container.
func (r *Runner) Available(tool string) bool {
	return r.Locate(tool) != LocationNone
}

// RuntimeName returns the detected container runtime, or "" when none.
func (r *Runner) RuntimeName() string {
	rt, err := r.detect()
	if err != nil {
		return ""
	}
	return rt.Name()
}

// Run executes tool with args in dir and returns its combined output.
// Paths in args must be relative to dir so they resolve inside a container.
func (r *Runner) Run(ctx context.Context, tool, dir string, args ...string) ([]byte, error) {
	switch r.Locate(tool) {
	case LocationLocal:
		out, err := r.exec.Output(ctx, dir, tool, args...)
		if err != nil {
			return out, fmt.Errorf("running %s: %w: %s", tool, err, strings.TrimSpace(string(out)))
		}
		return out, nil
	case LocationContainer:
		rt, _ := r.detect()
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("resolving working directory: %w", err)
			}
			dir = wd
		}
		out, err := rt.Run(ctx, r.Image, dir, tool, args)
		if err != nil {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: %w", tool, ErrToolUnavailable)
	}
}

// Version returns the first line tool prints for its version flag.
func (r *Runner) Version(ctx context.Context, tool string) (string, error) {
	flag := "--version"
	if tool == "pdfinfo" {
		flag = "-v"
	}
	out, err := r.Run(ctx, tool, "", flag)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

func (r *Runner) detect() (Runtime, error) {
	r.once.Do(func() {
		r.runtime, r.rtErr = detectRuntime(r.exec)
	})
	return r.runtime, r.rtErr
}
