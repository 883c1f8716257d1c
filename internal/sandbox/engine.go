package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
)

// EngineRuntime talks to the Docker Engine API instead of the CLI.
type EngineRuntime struct {
	client *client.Client
}

// NewEngineRuntime connects to the daemon described by the DOCKER_* environment.
func NewEngineRuntime() (*EngineRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	return &EngineRuntime{client: cli}, nil
}

// NewEngineRuntimeWithClient wraps an existing API client without pinging it.
func NewEngineRuntimeWithClient(cli *client.Client) *EngineRuntime {
	return &EngineRuntime{client: cli}
}

// Close releases the API client.
func (r *EngineRuntime) Close() error {
	return r.client.Close()
}

func (r *EngineRuntime) List(ctx context.Context, name string) (string, error) {
	containers, err := r.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", exactName(name))),
	})
	if err != nil {
		return "", fmt.Errorf("list containers: %w", err)
	}

	var b strings.Builder
	for _, c := range containers {
		names := make([]string, 0, len(c.Names))
		for _, n := range c.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
		fmt.Fprintf(&b, "%s|%s|%s\n", c.Status, strings.Join(names, ","), shortID(c.ID))
	}
	return b.String(), nil
}

func (r *EngineRuntime) Remove(ctx context.Context, name string) (string, error) {
	err := r.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return err.Error(), fmt.Errorf("%w: %s", ErrNoSuchContainer, name)
		}
		return err.Error(), fmt.Errorf("remove container: %w", err)
	}
	return name, nil
}

func (r *EngineRuntime) Build(ctx context.Context, opts BuildOptions) (string, error) {
	tarball, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("archive build context: %w", err)
	}
	defer tarball.Close()

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := r.client.ImageBuild(ctx, tarball, build.ImageBuildOptions{
		Tags:        []string{opts.Tag},
		Dockerfile:  filepath.ToSlash(dockerfile),
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	// The build stream reports step failures as error messages, not as an HTTP error.
	var out bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &out, 0, false, nil); err != nil {
		return strings.TrimSpace(out.String()), fmt.Errorf("image build: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (r *EngineRuntime) Run(ctx context.Context, opts RunOptions) (string, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(opts.ContainerPort))
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}

	containerCfg := &container.Config{
		Image:        opts.Image,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostPort: strconv.Itoa(opts.HostPort)}},
		},
		Binds: []string{opts.volume()},
		Resources: container.Resources{
			NanoCPUs: int64(opts.CPUs * 1e9),
			Memory:   memoryBytes(opts.MemoryGiB),
		},
	}

	resp, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, fmt.Errorf("start container: %w", err)
	}

	return resp.ID, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
