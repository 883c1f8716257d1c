package sandbox

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchMissingDockerfile(t *testing.T) {
	h := newHarness(t, false)

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 3.5})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrMissingBuildFile)
	assert.Equal(t, "Error: Dockerfile not found in the project directory. Please add a Dockerfile to build the image.", res.Message)
	assert.Empty(t, h.runtime.Calls(), "no runtime calls expected")
}

func TestLaunchPortInUse(t *testing.T) {
	h := newHarness(t, true)
	h.portBusy = true

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 3.5})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrPortInUse)
	assert.Contains(t, res.Message, "Port 8888 is already in use")
	assert.Zero(t, h.runtime.count("build"))
	assert.Empty(t, h.runtime.Calls())
}

func TestLaunchInvalidSpec(t *testing.T) {
	h := newHarness(t, true)

	tests := []struct {
		name string
		spec Spec
	}{
		{"zero cpu", Spec{CPUs: 0, MemoryGiB: 1}},
		{"negative memory", Spec{CPUs: 1, MemoryGiB: -1}},
		{"negative timeout", Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: -5}},
		{"timeout wraps to short delay", Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 307445735}},
		{"timeout wraps negative", Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 200000000}},
		{"timeout over cap", Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: MaxTimeoutMinutes + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.ctrl.Launch(context.Background(), tt.spec)
			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, ErrInvalidSpec)
		})
	}
	assert.Empty(t, h.runtime.Calls())
	assert.Zero(t, h.clock.Armed())
}

func TestLaunchMaxTimeoutArmsFullDelay(t *testing.T) {
	h := newHarness(t, true)

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: MaxTimeoutMinutes})
	require.True(t, res.Success, res.Message)

	deadline, ok := h.ctrl.PendingStop()
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Add(time.Duration(MaxTimeoutMinutes)*time.Minute), deadline)

	h.clock.Advance(24 * time.Hour)
	assert.Empty(t, h.events.automatic())
	assert.True(t, h.runtime.Exists())
}

func TestLaunchBuildFailure(t *testing.T) {
	h := newHarness(t, true)
	h.runtime.buildErr = errTool

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 3.5})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrBuildFailed)
	assert.Equal(t, "Error building image. Please check the logs for details.", res.Message)
	assert.Equal(t, "step 3/5 failed", res.Output)
	assert.Equal(t, []string{"remove", "build"}, h.runtime.Calls())
}

func TestLaunchRunFailure(t *testing.T) {
	h := newHarness(t, true)
	h.runtime.runErr = errTool

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 3.5, TimeoutMinutes: 5})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrRunFailed)
	assert.Equal(t, "Error launching sandbox. Please check the logs for details.", res.Message)
	assert.Equal(t, []string{"remove", "build", "run"}, h.runtime.Calls())
	assert.Zero(t, h.clock.Armed(), "failed run must not arm auto-stop")

	_, owned := h.ctrl.Owned()
	assert.False(t, owned)
}

func TestLaunchSuccess(t *testing.T) {
	h := newHarness(t, true)

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 2, MemoryGiB: 3.5})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Jupyter Sandbox launched successfully!", res.Message)
	assert.Equal(t, []string{"remove", "build", "run"}, h.runtime.Calls())
	assert.Zero(t, h.clock.Armed())

	run := h.runtime.lastRun
	assert.Equal(t, "ml-sandbox-jupyter", run.Name)
	assert.Equal(t, "ml-sandbox-jupyter-img", run.Image)
	assert.Equal(t, 8888, run.HostPort)
	assert.Equal(t, "/tf/notebooks", run.WorkspaceDir)
	assert.Equal(t, filepath.Join(h.dir, "notebooks"), run.HostDir)
	assert.Equal(t, 2.0, run.CPUs)
	assert.Equal(t, 3.5, run.MemoryGiB)

	owned, ok := h.ctrl.Owned()
	require.True(t, ok)
	assert.Equal(t, uint64(1), owned.Generation)
	assert.Equal(t, "c0ffee000001", owned.ContainerID)
	assert.True(t, owned.StopAt.IsZero())
}

func TestLaunchRemovesExistingContainer(t *testing.T) {
	h := newHarness(t, true)
	h.runtime.exists = true
	h.runtime.running = "old"

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1})

	require.True(t, res.Success)
	assert.Equal(t, 1, h.runtime.count("remove"))
	assert.True(t, h.runtime.Exists())
}

func TestLaunchIgnoresRemoveFailure(t *testing.T) {
	h := newHarness(t, true)
	h.runtime.removeErr = errTool

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"remove", "build", "run"}, h.runtime.Calls())
}

func TestAutoStopFiresOnce(t *testing.T) {
	h := newHarness(t, true)

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 5})
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "Auto-stop in 5 minute(s).")
	assert.Equal(t, 1, h.clock.Armed())

	deadline, ok := h.ctrl.PendingStop()
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), deadline)

	h.clock.Advance(4*time.Minute + 59*time.Second)
	assert.Empty(t, h.events.automatic())
	assert.True(t, h.runtime.Exists())

	h.clock.Advance(time.Second)
	auto := h.events.automatic()
	require.Len(t, auto, 1)
	assert.True(t, auto[0].Result.Success)
	assert.False(t, h.runtime.Exists())
	assert.Equal(t, 2, h.runtime.count("remove"))

	h.clock.Advance(time.Hour)
	assert.Len(t, h.events.automatic(), 1)

	_, ok = h.ctrl.PendingStop()
	assert.False(t, ok)
	_, owned := h.ctrl.Owned()
	assert.False(t, owned)
}

func TestAutoStopFailureIsReported(t *testing.T) {
	h := newHarness(t, true)

	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 1}).Success)
	h.runtime.mu.Lock()
	h.runtime.removeErr = errTool
	h.runtime.mu.Unlock()

	h.clock.Advance(time.Minute)

	auto := h.events.automatic()
	require.Len(t, auto, 1)
	assert.False(t, auto[0].Result.Success)
	assert.ErrorIs(t, auto[0].Result.Err, ErrRemoveFailed)
}

func TestManualStopCancelsAutoStop(t *testing.T) {
	h := newHarness(t, true)

	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 5}).Success)

	res := h.ctrl.Stop(context.Background())
	require.True(t, res.Success)
	_, ok := h.ctrl.PendingStop()
	assert.False(t, ok)

	h.clock.Advance(10 * time.Minute)
	assert.Empty(t, h.events.automatic())
	assert.Equal(t, 2, h.runtime.count("remove"))
}

func TestRelaunchWhileRunningHitsOwnPort(t *testing.T) {
	h := newHarness(t, true)

	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 5}).Success)
	// The running sandbox publishes the port, so the probe now reports it busy.
	h.portBusy = true

	res := h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrPortInUse)
	assert.Equal(t, []string{"remove", "build", "run"}, h.runtime.Calls())

	// The first launch keeps its container and timer.
	owned, ok := h.ctrl.Owned()
	require.True(t, ok)
	assert.Equal(t, uint64(1), owned.Generation)
	_, pending := h.ctrl.PendingStop()
	assert.True(t, pending)

	h.clock.Advance(5 * time.Minute)
	assert.Len(t, h.events.automatic(), 1)
	assert.False(t, h.runtime.Exists())
}

// Relaunch only gets past the port check when the port is free, for example
// after the container exited on its own or the port is mapped elsewhere.
func TestSecondLaunchSupersedesTimer(t *testing.T) {
	h := newHarness(t, true)

	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 5}).Success)
	h.clock.Advance(3 * time.Minute)
	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1}).Success)

	// The first timer's deadline passes; the second container must survive.
	h.clock.Advance(5 * time.Minute)
	assert.Empty(t, h.events.automatic())
	assert.True(t, h.runtime.Exists())

	owned, ok := h.ctrl.Owned()
	require.True(t, ok)
	assert.Equal(t, uint64(2), owned.Generation)
}

func TestStaleTimerCallbackIsIgnored(t *testing.T) {
	h := newHarness(t, true)

	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 5}).Success)
	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 30}).Success)

	// Simulate a callback that was already running when the first timer was cancelled.
	h.ctrl.autoStop(1)

	assert.Empty(t, h.events.automatic())
	assert.True(t, h.runtime.Exists())
	_, ok := h.ctrl.PendingStop()
	assert.True(t, ok, "newer timer must stay armed")
}

func TestStopWithoutContainer(t *testing.T) {
	h := newHarness(t, true)

	res := h.ctrl.Stop(context.Background())

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, "Sandbox stopped successfully!", res.Message)
}

func TestStopFailure(t *testing.T) {
	h := newHarness(t, true)
	h.runtime.removeErr = errTool

	res := h.ctrl.Stop(context.Background())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrRemoveFailed)
	assert.Equal(t, "Error stopping sandbox. Please check the logs for details.", res.Message)
}

func TestNotifyReceivesSynchronousResults(t *testing.T) {
	h := newHarness(t, true)

	h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1})
	h.ctrl.Stop(context.Background())

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.Len(t, h.events.events, 2)
	assert.Equal(t, "launch", h.events.events[0].Op)
	assert.Equal(t, "stop", h.events.events[1].Op)
	assert.False(t, h.events.events[1].Automatic)
}

func TestConcurrentLaunchAndStop(t *testing.T) {
	h := newHarness(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1, TimeoutMinutes: 1})
		}()
		go func() {
			defer wg.Done()
			res := h.ctrl.Stop(context.Background())
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	// Whichever operation finished last decides the final state.
	calls := h.runtime.Calls()
	last := calls[len(calls)-1]
	_, owned := h.ctrl.Owned()
	_, pending := h.ctrl.PendingStop()
	if last == "run" {
		assert.True(t, h.runtime.Exists())
		assert.True(t, owned)
		assert.True(t, pending)
	} else {
		assert.Equal(t, "remove", last)
		assert.False(t, h.runtime.Exists())
		assert.False(t, owned)
		assert.False(t, pending)
	}
}

func TestStatusDelegatesToInspector(t *testing.T) {
	h := newHarness(t, true)

	assert.Equal(t, StateAbsent, h.ctrl.Status(context.Background()).State)

	require.True(t, h.ctrl.Launch(context.Background(), Spec{CPUs: 1, MemoryGiB: 1}).Success)
	st := h.ctrl.Status(context.Background())
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, "ml-sandbox-jupyter", st.Name)
}
