// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRunnerLocate(t *testing.T) {
	tests := []struct {
		name string
		exec *mockExecutor
		tool string
		want Location
	}{
		{
			name: "local binary wins",
			exec: &mockExecutor{availableBins: map[string]bool{"pandoc": true, "docker": true}},
			tool: "pandoc",
			want: LocationLocal,
		},
		{
			name: "image tool falls back to container",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			tool: "xelatex",
			want: LocationContainer,
		},
		{
			name: "tool missing from image",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			tool: "soffice",
			want: LocationNone,
		},
		{
			name: "no runtime",
			exec: &mockExecutor{},
			tool: "pandoc",
			want: LocationNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner("", tt.exec)
			if got := r.Locate(tt.tool); got != tt.want {
				t.Errorf("Locate(%q) = %q, want %q", tt.tool, got, tt.want)
			}
			if got := r.Available(tt.tool); got != (tt.want != LocationNone) {
				t.Errorf("Available(%q) = %v", tt.tool, got)
			}
		})
	}
}

func TestRunnerRun_Local(t *testing.T) {
	exec := &mockExecutor{
		availableBins: map[string]bool{"pandoc": true},
		outputFunc: func(dir, name string, args []string) ([]byte, error) {
			return []byte("done"), nil
		},
	}
	r := newRunner("", exec)

	out, err := r.Run(context.Background(), "pandoc", "/proj", "a.md", "-o", "a.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "done" {
		t.Errorf("output = %q", out)
	}
	if want := "/proj|pandoc a.md -o a.docx"; exec.calls[0] != want {
		t.Errorf("call = %q, want %q", exec.calls[0], want)
	}
}

func TestRunnerRun_Container(t *testing.T) {
	exec := &mockExecutor{
		availableBins: map[string]bool{"podman": true},
		runnableCmds:  map[string]bool{"podman info": true},
	}
	r := newRunner("custom/image:1", exec)

	if _, err := r.Run(context.Background(), "pandoc", "/proj", "a.md"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "|podman run --rm -v /proj:/work -w /work --entrypoint pandoc custom/image:1 a.md"
	if exec.calls[0] != want {
		t.Errorf("call = %q, want %q", exec.calls[0], want)
	}
	if r.RuntimeName() != "podman" {
		t.Errorf("RuntimeName = %q", r.RuntimeName())
	}
}

func TestRunnerRun_Unavailable(t *testing.T) {
	r := newRunner("", &mockExecutor{})
	_, err := r.Run(context.Background(), "soffice", "")
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestRunnerRun_LocalFailureIncludesOutput(t *testing.T) {
	exec := &mockExecutor{
		availableBins: map[string]bool{"pandoc": true},
		outputFunc: func(string, string, []string) ([]byte, error) {
			return []byte("pandoc: unknown option\n"), errors.New("exit status 2")
		},
	}
	r := newRunner("", exec)
	_, err := r.Run(context.Background(), "pandoc", "", "--bogus")
	if err == nil || !strings.Contains(err.Error(), "unknown option") {
		t.Fatalf("err = %v, want tool output in message", err)
	}
}

func TestRunnerVersion(t *testing.T) {
	exec := &mockExecutor{
		availableBins: map[string]bool{"pandoc": true, "pdfinfo": true},
		outputFunc: func(_, name string, args []string) ([]byte, error) {
			if name == "pdfinfo" && args[0] == "-v" {
				return []byte("pdfinfo version 24.02.0\nCopyright"), nil
			}
			return []byte("pandoc 3.1.11\nFeatures: +server\n"), nil
		},
	}
	r := newRunner("", exec)

	v, err := r.Version(context.Background(), "pandoc")
	if err != nil || v != "pandoc 3.1.11" {
		t.Errorf("Version(pandoc) = %q, %v", v, err)
	}
	v, err = r.Version(context.Background(), "pdfinfo")
	if err != nil || v != "pdfinfo version 24.02.0" {
		t.Errorf("Version(pdfinfo) = %q, %v", v, err)
	}
}
