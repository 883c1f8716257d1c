package sandbox

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// State is the classified state of the reserved container.
type State string

const (
	StateAbsent  State = "absent"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateCreated State = "created"
	StateUnknown State = "unknown"
)

// Spec holds the resource limits requested for a launch.
type Spec struct {
	CPUs           float64 `json:"cpus"`
	MemoryGiB      float64 `json:"memory_gib"`
	TimeoutMinutes int     `json:"timeout_minutes"` // 0 disables auto-stop
}

// MaxTimeoutMinutes caps the auto-stop delay at ten years.
const MaxTimeoutMinutes = 10 * 365 * 24 * 60

// Validate rejects non-positive or non-finite limits and out-of-range timeouts.
func (s Spec) Validate() error {
	if !(s.CPUs > 0) || math.IsInf(s.CPUs, 0) {
		return fmt.Errorf("%w: cpu must be positive, got %v", ErrInvalidSpec, s.CPUs)
	}
	if !(s.MemoryGiB > 0) || math.IsInf(s.MemoryGiB, 0) {
		return fmt.Errorf("%w: memory must be positive, got %v", ErrInvalidSpec, s.MemoryGiB)
	}
	if s.TimeoutMinutes < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %d", ErrInvalidSpec, s.TimeoutMinutes)
	}
	if s.TimeoutMinutes > MaxTimeoutMinutes {
		return fmt.Errorf("%w: timeout must be at most %d minutes, got %d", ErrInvalidSpec, MaxTimeoutMinutes, s.TimeoutMinutes)
	}
	return nil
}

// Timeout returns the auto-stop delay, zero when disabled.
func (s Spec) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// Status is a snapshot of the reserved container, derived fresh on every query.
type Status struct {
	State State  `json:"state"`
	Raw   string `json:"raw"` // status|name|id line, or the error text for a failed inspection
	Name  string `json:"name,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Label is the short human-readable form of the status.
func (s Status) Label() string {
	switch s.State {
	case StateAbsent:
		return "No container"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateCreated:
		return "Created"
	default:
		if s.Raw == "" {
			return "Unknown"
		}
		field, _, _ := strings.Cut(s.Raw, "|")
		return field
	}
}

// Class is the CSS class the web page uses for the status badge.
func (s Status) Class() string {
	switch s.State {
	case StateRunning:
		return "status-running"
	case StateStopped:
		return "status-stopped"
	case StateCreated:
		return "status-building"
	default:
		return "status-unknown"
	}
}

// Result is the outcome of a mutating lifecycle operation.
// Message is safe to show to the operator; Output is tool output for logs only.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Output  string `json:"-"`
}

// Handle describes the container the controller believes it owns.
type Handle struct {
	Name        string    `json:"name"`
	ContainerID string    `json:"container_id"`
	Generation  uint64    `json:"generation"`
	Spec        Spec      `json:"spec"`
	StartedAt   time.Time `json:"started_at"`
	StopAt      time.Time `json:"stop_at,omitempty"`
}

var (
	ErrInvalidSpec      = errors.New("invalid sandbox spec")
	ErrMissingBuildFile = errors.New("build file not found")
	ErrPortInUse        = errors.New("port already in use")
	ErrBuildFailed      = errors.New("image build failed")
	ErrRunFailed        = errors.New("container run failed")
	ErrRemoveFailed     = errors.New("container remove failed")
	ErrInspectFailed    = errors.New("container inspect failed")
	ErrNoSuchContainer  = errors.New("no such container")
)

const (
	msgLaunched     = "Jupyter Sandbox launched successfully!"
	msgStopped      = "Sandbox stopped successfully!"
	msgBuildFailed  = "Error building image. Please check the logs for details."
	msgRunFailed    = "Error launching sandbox. Please check the logs for details."
	msgStopFailed   = "Error stopping sandbox. Please check the logs for details."
	msgMissingBuild = "Error: %s not found in the project directory. Please add a %s to build the image."
	msgPortInUse    = "Error: Port %d is already in use. Please stop any running JupyterLab or free the port before launching."
)
