package sandbox

import (
	"context"
	"fmt"
	"strings"
)

// Inspector reports the state of the reserved container by asking the runtime.
type Inspector struct {
	runtime Runtime
	name    string
}

// NewInspector returns an inspector for the container called name.
func NewInspector(runtime Runtime, name string) *Inspector {
	return &Inspector{runtime: runtime, name: name}
}

// Inspect never fails: runtime errors are folded into an unknown status
// carrying the error text.
func (i *Inspector) Inspect(ctx context.Context) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			status = Status{State: StateUnknown, Raw: fmt.Sprintf("Error: %v", r)}
		}
	}()

	out, err := i.runtime.List(ctx, i.name)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInspectFailed, err)
		return Status{State: StateUnknown, Raw: "Error: " + err.Error()}
	}
	return Classify(out)
}

// Classify maps raw status|name|id output to a Status. Only the first
// non-empty line is considered.
func Classify(raw string) Status {
	line := firstLine(raw)
	if line == "" {
		return Status{State: StateAbsent}
	}

	parts := strings.SplitN(line, "|", 3)
	st := Status{Raw: line}
	if len(parts) > 1 {
		st.Name = parts[1]
	}
	if len(parts) > 2 {
		st.ID = parts[2]
	}

	dockerStatus := parts[0]
	switch {
	case strings.Contains(dockerStatus, "Up"):
		st.State = StateRunning
	case strings.Contains(dockerStatus, "Exited"):
		st.State = StateStopped
	case strings.Contains(dockerStatus, "Created"):
		st.State = StateCreated
	default:
		st.State = StateUnknown
	}
	return st
}

func firstLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
