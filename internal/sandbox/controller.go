package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zpdzap/mlsandbox/internal/config"
)

// Event reports the outcome of a lifecycle operation. Automatic is set for
// stops issued by an auto-stop timer rather than a caller.
type Event struct {
	Op        string
	Result    Result
	Automatic bool
	At        time.Time
}

// NotifyFunc receives every lifecycle outcome, including timer-initiated stops.
type NotifyFunc func(Event)

// Options carries the controller's collaborators. Zero values get defaults.
type Options struct {
	Logger  *slog.Logger
	Clock   Clock
	Probe   PortProbe
	Metrics *Metrics
	Notify  NotifyFunc
}

// Controller owns the reserved notebook container: it removes, builds and
// runs it, and stops it on request or when an auto-stop timer fires.
type Controller struct {
	projectDir string
	cfg        config.Container
	runtime    Runtime
	inspector  *Inspector

	logger  *slog.Logger
	clock   Clock
	probe   PortProbe
	metrics *Metrics
	notify  NotifyFunc

	// opMu serializes launch, stop and timer-initiated stop.
	opMu sync.Mutex

	mu         sync.Mutex
	owned      *Handle
	generation uint64

	stops *stopRegistry
}

// NewController creates a controller for the container described by cfg.
func NewController(projectDir string, cfg config.Container, runtime Runtime, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Probe == nil {
		opts.Probe = IsPortInUse
	}
	if cfg.Dockerfile == "" {
		cfg.Dockerfile = "Dockerfile"
	}

	return &Controller{
		projectDir: projectDir,
		cfg:        cfg,
		runtime:    runtime,
		inspector:  NewInspector(runtime, cfg.Name),
		logger:     opts.Logger.With("container", cfg.Name),
		clock:      opts.Clock,
		probe:      opts.Probe,
		metrics:    opts.Metrics,
		notify:     opts.Notify,
		stops:      newStopRegistry(),
	}
}

// Status queries the runtime for the reserved container. It never fails.
func (c *Controller) Status(ctx context.Context) Status {
	return c.inspector.Inspect(ctx)
}

// Owned returns the handle of the container this controller last launched,
// if it has not been stopped since.
func (c *Controller) Owned() (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owned == nil {
		return Handle{}, false
	}
	return *c.owned, true
}

// PendingStop returns the deadline of the armed auto-stop, if any.
func (c *Controller) PendingStop() (time.Time, bool) {
	return c.stops.deadline(c.cfg.Name)
}

// Launch validates preconditions, replaces any existing container with the
// reserved name, builds the image and runs it with the requested limits.
// The steps are best-effort and not rolled back on failure.
func (c *Controller) Launch(ctx context.Context, spec Spec) Result {
	started := time.Now()

	c.opMu.Lock()
	res := c.launch(ctx, spec)
	c.opMu.Unlock()

	c.metrics.observe("launch", res, started)
	c.publish(Event{Op: "launch", Result: res, At: c.clock.Now()})
	return res
}

// Stop force-removes the reserved container and cancels any pending auto-stop.
// A container that does not exist counts as stopped.
func (c *Controller) Stop(ctx context.Context) Result {
	started := time.Now()

	c.opMu.Lock()
	c.cancelAutoStop()
	res := c.stop(ctx)
	c.opMu.Unlock()

	c.metrics.observe("stop", res, started)
	c.publish(Event{Op: "stop", Result: res, At: c.clock.Now()})
	return res
}

func (c *Controller) launch(ctx context.Context, spec Spec) Result {
	if err := spec.Validate(); err != nil {
		return Result{Message: "Error: " + err.Error(), Err: err}
	}

	dockerfile := filepath.Join(c.projectDir, c.cfg.Dockerfile)
	if _, err := os.Stat(dockerfile); err != nil {
		base := filepath.Base(c.cfg.Dockerfile)
		return Result{
			Message: fmt.Sprintf(msgMissingBuild, base, base),
			Err:     fmt.Errorf("%w: %s", ErrMissingBuildFile, dockerfile),
		}
	}

	if c.probe(c.cfg.Port) {
		return Result{
			Message: fmt.Sprintf(msgPortInUse, c.cfg.Port),
			Err:     fmt.Errorf("%w: %d", ErrPortInUse, c.cfg.Port),
		}
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	// A timer from an earlier launch must not outlive the container it was armed for.
	c.cancelAutoStop()
	if out, err := c.runtime.Remove(ctx, c.cfg.Name); err != nil && !errors.Is(err, ErrNoSuchContainer) {
		c.logger.Warn("removing previous container failed", "error", err, "output", out)
	}
	c.setOwned(nil)

	c.logger.Info("building image", "image", c.cfg.Image, "dockerfile", c.cfg.Dockerfile)
	out, err := c.runtime.Build(ctx, BuildOptions{
		ContextDir: c.projectDir,
		Dockerfile: c.cfg.Dockerfile,
		Tag:        c.cfg.Image,
	})
	if err != nil {
		c.logger.Error("error building image", "error", err, "output", out)
		return Result{
			Message: msgBuildFailed,
			Err:     fmt.Errorf("%w: %w", ErrBuildFailed, err),
			Output:  out,
		}
	}

	hostDir, err := filepath.Abs(filepath.Join(c.projectDir, c.cfg.Notebooks))
	if err != nil {
		hostDir = filepath.Join(c.projectDir, c.cfg.Notebooks)
	}

	out, err = c.runtime.Run(ctx, RunOptions{
		Name:          c.cfg.Name,
		Image:         c.cfg.Image,
		HostPort:      c.cfg.Port,
		ContainerPort: c.cfg.Port,
		HostDir:       hostDir,
		WorkspaceDir:  c.cfg.Workspace,
		CPUs:          spec.CPUs,
		MemoryGiB:     spec.MemoryGiB,
	})
	if err != nil {
		c.logger.Error("error launching sandbox", "error", err, "output", out)
		return Result{
			Message: msgRunFailed,
			Err:     fmt.Errorf("%w: %w", ErrRunFailed, err),
			Output:  out,
		}
	}

	now := c.clock.Now()
	h := &Handle{
		Name:        c.cfg.Name,
		ContainerID: shortID(firstLine(out)),
		Generation:  c.nextGeneration(),
		Spec:        spec,
		StartedAt:   now,
	}

	msg := msgLaunched
	if timeout := spec.Timeout(); timeout > 0 {
		h.StopAt = c.armAutoStop(h.Generation, timeout)
		msg = fmt.Sprintf("%s Auto-stop in %d minute(s).", msgLaunched, spec.TimeoutMinutes)
	}
	c.setOwned(h)

	c.logger.Info("sandbox launched",
		"container_id", h.ContainerID,
		"generation", h.Generation,
		"cpus", spec.CPUs,
		"memory_gib", spec.MemoryGiB,
		"timeout_minutes", spec.TimeoutMinutes,
	)
	return Result{Success: true, Message: msg, Output: out}
}

// stop removes the container. Callers hold opMu.
func (c *Controller) stop(ctx context.Context) Result {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	out, err := c.runtime.Remove(ctx, c.cfg.Name)
	if err != nil && !errors.Is(err, ErrNoSuchContainer) {
		c.logger.Error("error removing container", "error", err, "output", out)
		return Result{
			Message: msgStopFailed,
			Err:     fmt.Errorf("%w: %w", ErrRemoveFailed, err),
			Output:  out,
		}
	}

	c.setOwned(nil)
	c.logger.Info("sandbox stopped", "existed", err == nil)
	return Result{Success: true, Message: msgStopped, Output: out}
}

// armAutoStop schedules a stop for the launch identified by generation and
// returns its deadline. Callers hold opMu.
func (c *Controller) armAutoStop(generation uint64, d time.Duration) time.Time {
	deadline := c.clock.Now().Add(d)
	p := &pendingStop{generation: generation, deadline: deadline}
	p.timer = c.clock.AfterFunc(d, func() { c.autoStop(generation) })
	c.stops.arm(c.cfg.Name, p)
	c.metrics.setPending(c.stops.len())

	c.logger.Info("auto-stop armed", "generation", generation, "deadline", deadline)
	return deadline
}

// cancelAutoStop drops any armed timer. Callers hold opMu.
func (c *Controller) cancelAutoStop() {
	if c.stops.cancel(c.cfg.Name) {
		c.logger.Info("auto-stop cancelled")
	}
	c.metrics.setPending(c.stops.len())
}

// autoStop runs on the timer goroutine. It only stops the container if the
// launch that armed the timer is still the one this controller owns.
func (c *Controller) autoStop(generation uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	released := c.stops.release(c.cfg.Name, generation)
	c.metrics.setPending(c.stops.len())

	h, owned := c.Owned()
	if !released || !owned || h.Generation != generation {
		c.logger.Debug("stale auto-stop ignored", "generation", generation)
		c.metrics.autoStop("stale")
		return
	}

	res := c.stop(context.Background())
	if res.Success {
		c.logger.Info("auto-stop completed", "generation", generation)
		c.metrics.autoStop("stopped")
	} else {
		c.logger.Error("auto-stop failed", "generation", generation, "error", res.Err)
		c.metrics.autoStop("failed")
	}
	c.publish(Event{Op: "stop", Result: res, Automatic: true, At: c.clock.Now()})
}

func (c *Controller) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CommandTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) nextGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

func (c *Controller) setOwned(h *Handle) {
	c.mu.Lock()
	c.owned = h
	c.mu.Unlock()
}

func (c *Controller) publish(ev Event) {
	if c.notify != nil {
		c.notify(ev)
	}
}
