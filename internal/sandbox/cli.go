package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CLIRuntime drives the docker command-line tool.
type CLIRuntime struct {
	binary string
}

// NewCLIRuntime returns a runtime that shells out to binary (default "docker").
func NewCLIRuntime(binary string) *CLIRuntime {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "docker"
	}
	return &CLIRuntime{binary: binary}
}

func (r *CLIRuntime) List(ctx context.Context, name string) (string, error) {
	args := []string{"ps", "-a", "--filter", "name=" + exactName(name), "--format", "{{.Status}}|{{.Names}}|{{.ID}}"}
	out, err := exec.CommandContext(ctx, r.binary, args...).Output()
	if err != nil {
		return "", fmt.Errorf("docker ps failed: %s: %w", exitDetail(err), err)
	}
	return string(out), nil
}

func (r *CLIRuntime) Remove(ctx context.Context, name string) (string, error) {
	out, err := r.combined(ctx, "", "rm", "-f", name)
	if err != nil {
		if strings.Contains(out, "No such container") {
			return out, fmt.Errorf("%w: %s", ErrNoSuchContainer, name)
		}
		return out, fmt.Errorf("docker rm failed: %s: %w", out, err)
	}
	return out, nil
}

func (r *CLIRuntime) Build(ctx context.Context, opts BuildOptions) (string, error) {
	args := []string{"build", "-t", opts.Tag}
	if opts.Dockerfile != "" && opts.Dockerfile != "Dockerfile" {
		args = append(args, "-f", opts.Dockerfile)
	}
	args = append(args, ".")

	out, err := r.combined(ctx, opts.ContextDir, args...)
	if err != nil {
		return out, fmt.Errorf("docker build failed: %w", err)
	}
	return out, nil
}

func (r *CLIRuntime) Run(ctx context.Context, opts RunOptions) (string, error) {
	args := []string{
		"run", "-d",
		"--name", opts.Name,
		"-p", opts.portMapping(),
		"-v", opts.volume(),
		"--cpus", cpuFlag(opts.CPUs),
		"--memory", memoryFlag(opts.MemoryGiB),
		opts.Image,
	}

	out, err := r.combined(ctx, "", args...)
	if err != nil {
		return out, fmt.Errorf("docker run failed: %w", err)
	}
	return out, nil
}

func (r *CLIRuntime) combined(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// exitDetail pulls stderr out of an *exec.ExitError when Output captured it.
func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}
