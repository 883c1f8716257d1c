package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zpdzap/mlsandbox/internal/config"
	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

// Command represents a parsed slash command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a slash command string into a Command.
// Returns nil if the input is not a valid command.
func ParseCommand(input string) *Command {
	input = strings.TrimSpace(input)
	if input == "" || input[0] != '/' {
		return nil
	}

	parts := strings.Fields(input)
	return &Command{
		Name: parts[0],
		Args: parts[1:],
	}
}

// ParseLaunchArgs builds a Spec from key=value arguments (cpu, ram, timeout),
// starting from the configured defaults.
func ParseLaunchArgs(args []string, defaults config.Defaults) (sandbox.Spec, error) {
	spec := sandbox.Spec{
		CPUs:           defaults.CPUs,
		MemoryGiB:      defaults.MemoryGiB,
		TimeoutMinutes: defaults.TimeoutMinutes,
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || value == "" {
			return sandbox.Spec{}, fmt.Errorf("expected key=value, got %q", arg)
		}

		var err error
		switch strings.ToLower(key) {
		case "cpu", "cpus":
			spec.CPUs, err = strconv.ParseFloat(value, 64)
		case "ram", "mem", "memory":
			spec.MemoryGiB, err = strconv.ParseFloat(strings.TrimSuffix(strings.ToUpper(value), "G"), 64)
		case "timeout":
			spec.TimeoutMinutes, err = strconv.Atoi(value)
		default:
			return sandbox.Spec{}, fmt.Errorf("unknown option %q (want cpu, ram or timeout)", key)
		}
		if err != nil {
			return sandbox.Spec{}, fmt.Errorf("invalid %s value %q", key, value)
		}
	}

	if err := spec.Validate(); err != nil {
		return sandbox.Spec{}, err
	}
	return spec, nil
}
