package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Runtime is the external container tool the controller drives.
// Every method returns the tool's output so callers can log it.
type Runtime interface {
	// List returns status|name|id lines for containers matching name.
	List(ctx context.Context, name string) (string, error)
	// Remove force-removes a container. A missing container yields ErrNoSuchContainer.
	Remove(ctx context.Context, name string) (string, error)
	Build(ctx context.Context, opts BuildOptions) (string, error)
	// Run starts a detached container and returns its id.
	Run(ctx context.Context, opts RunOptions) (string, error)
}

// BuildOptions describes an image build from a directory.
type BuildOptions struct {
	ContextDir string
	Dockerfile string // relative to ContextDir
	Tag        string
}

// RunOptions describes a detached container start.
type RunOptions struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	HostDir       string // bind-mounted into WorkspaceDir
	WorkspaceDir  string
	CPUs          float64
	MemoryGiB     float64
}

// cpuFlag formats a CPU count the way docker --cpus expects it.
func cpuFlag(cpus float64) string {
	return strconv.FormatFloat(cpus, 'f', -1, 64)
}

// memoryFlag formats a memory limit in GiB, e.g. "3.5G".
func memoryFlag(gib float64) string {
	return strconv.FormatFloat(gib, 'f', -1, 64) + "G"
}

func (o RunOptions) portMapping() string {
	return fmt.Sprintf("%d:%d", o.HostPort, o.ContainerPort)
}

func (o RunOptions) volume() string {
	return fmt.Sprintf("%s:%s", o.HostDir, o.WorkspaceDir)
}

// memoryBytes converts a GiB limit into bytes for the engine API.
func memoryBytes(gib float64) int64 {
	return int64(gib * 1024 * 1024 * 1024)
}

// exactName anchors a container name for the runtime's regex name filter,
// which otherwise matches substrings.
func exactName(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}
