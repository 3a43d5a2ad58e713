// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container runs the external document tools grant-engine delegates
// to (pandoc, xelatex, soffice). A tool on PATH is run directly; otherwise it
// is run inside a container image with the working directory bind-mounted.
package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

const (
	binDocker = "docker"
	binPodman = "podman"

	// mountPoint is where the working directory appears inside the container.
	mountPoint = "/work"
)

// Runtime provides container operations: checking availability, verifying
// images, and running tools inside containers.
type Runtime interface {
	// Name returns the runtime name ("docker" or "podman").
	Name() string

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available() bool

	// ImageExists checks whether the named image exists locally.
	// Returns nil when the image is found, or an error describing the failure.
	ImageExists(image string) error

	// Run executes entrypoint with args in image. dir is mounted as the
	// container's working directory, so paths in args must be relative to it.
	// The combined stdout and stderr is returned.
	Run(ctx context.Context, image, dir, entrypoint string, args []string) ([]byte, error)
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// runtime implements Runtime for a specific container binary. Both Docker
// and Podman share the same logic; they differ only in binary name and the
// subcommand used to check image existence.
type runtime struct {
	bin           string
	imageCheckCmd []string // e.g. ["image", "inspect"] for docker
	user          string   // uid:gid passed to --user, empty to keep the image default
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available() bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(r.bin, "info") == nil
}

func (r *runtime) ImageExists(image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Run(ctx context.Context, image, dir, entrypoint string, args []string) ([]byte, error) {
	runArgs := []string{"run", "--rm",
		"-v", dir + ":" + mountPoint,
		"-w", mountPoint,
		"--entrypoint", entrypoint,
	}
	if r.user != "" {
		runArgs = append(runArgs, "--user", r.user)
	}
	runArgs = append(runArgs, image)
	runArgs = append(runArgs, args...)

	out, err := r.exec.Output(ctx, "", r.bin, runArgs...)
	if err != nil {
		return out, fmt.Errorf("running %s in %s container %s: %w", entrypoint, r.bin, image, err)
	}
	return out, nil
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		user:          hostUser(),
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	// Rootless podman already maps the container root to the invoking user.
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

// hostUser returns "uid:gid" so files written to the mount are owned by the
// caller. Empty on platforms without numeric ids.
func hostUser() string {
	uid, gid := os.Getuid(), os.Getgid()
	if uid < 0 || gid < 0 {
		return ""
	}
	return strconv.Itoa(uid) + ":" + strconv.Itoa(gid)
}

var defaultExec = &osExecutor{}

// DetectRuntime tries docker first, falls back to podman. Returns an error
// if neither runtime is available.
func DetectRuntime() (Runtime, error) {
	return detectRuntime(defaultExec)
}

func detectRuntime(exec executor) (Runtime, error) {
	docker := newDockerRuntime(exec)
	if docker.Available() {
		return docker, nil
	}

	podman := newPodmanRuntime(exec)
	if podman.Available() {
		return podman, nil
	}

	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}
