package process_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/foomo/idreset/pkg/process"
	"github.com/foomo/idreset/pkg/process/mock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testNames = []string{"cursor", "cursor.exe", "Cursor"}

// pid returns fake pids that never collide with the test process.
func pid(n int32) int32 {
	return int32(os.Getpid()) + 100 + n
}

func testController(t *testing.T, platform process.Platform, states *[]process.State) *process.Controller {
	t.Helper()
	return process.NewController(zaptest.NewLogger(t), testNames,
		process.ControllerWithPlatform(platform),
		process.ControllerWithTimeout(60*time.Millisecond),
		process.ControllerWithPollInterval(5*time.Millisecond),
		process.ControllerWithObserver(func(s process.State) {
			if states != nil {
				*states = append(*states, s)
			}
		}),
	)
}

func TestFind(t *testing.T) {
	self := int32(os.Getpid())
	platform := mock.NewPlatform(
		process.Process{PID: self + 1, Name: "Cursor Helper (Renderer)"},
		process.Process{PID: self + 2, Name: "cursor"},
		process.Process{PID: self + 3, Name: "Cur"},
		process.Process{PID: self + 4, Name: "code"},
		process.Process{PID: self + 5, Name: ""},
		process.Process{PID: self, Name: "cursor"},
	)
	c := testController(t, platform, nil)

	procs, err := c.Find(context.Background())
	require.NoError(t, err)

	var pids []int32
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	assert.Equal(t, []int32{self + 1, self + 2, self + 3}, pids)
}

func TestRunning(t *testing.T) {
	c := testController(t, mock.NewPlatform(process.Process{PID: pid(1), Name: "bash"}), nil)
	running, err := c.Running(context.Background())
	require.NoError(t, err)
	assert.False(t, running)

	c = testController(t, mock.NewPlatform(process.Process{PID: pid(1), Name: "Cursor.exe"}), nil)
	running, err = c.Running(context.Background())
	require.NoError(t, err)
	assert.True(t, running)

	platform := mock.NewPlatform()
	platform.ProcessesErr = errors.New("boom")
	_, err = testController(t, platform, nil).Running(context.Background())
	require.Error(t, err)
}

func TestShutdownIdle(t *testing.T) {
	var states []process.State
	c := testController(t, mock.NewPlatform(), &states)

	state, err := c.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, process.StateIdle, state)
	assert.Empty(t, states)
}

func TestShutdownGraceful(t *testing.T) {
	var states []process.State
	platform := mock.NewPlatform(process.Process{PID: pid(1), Name: "cursor"}, process.Process{PID: pid(2), Name: "cursor"})
	c := testController(t, platform, &states)

	state, err := c.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, process.StateTerminated, state)
	assert.Equal(t, []process.State{process.StateGracefulShutdown, process.StateTerminated}, states)
	assert.Equal(t, []int32{pid(1), pid(2)}, platform.Terminated())
	assert.Empty(t, platform.Killed())
}

func TestShutdownForced(t *testing.T) {
	var states []process.State
	platform := mock.NewPlatform(process.Process{PID: pid(1), Name: "cursor"}, process.Process{PID: pid(2), Name: "cursor"}).
		IgnoreTerminate(pid(2))
	c := testController(t, platform, &states)

	state, err := c.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, process.StateTerminated, state)
	assert.Equal(t, []process.State{
		process.StateGracefulShutdown,
		process.StateForcedShutdown,
		process.StateTerminated,
	}, states)
	assert.Equal(t, []int32{pid(2)}, platform.Killed())
}

func TestShutdownTimedOut(t *testing.T) {
	var states []process.State
	platform := mock.NewPlatform(process.Process{PID: pid(7), Name: "cursor"}).
		IgnoreTerminate(pid(7)).
		IgnoreKill(pid(7))
	c := testController(t, platform, &states)

	start := time.Now()
	state, err := c.Shutdown(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, process.StateTimedOut, state)
	assert.Equal(t, process.StateTimedOut, states[len(states)-1])

	var timeoutErr *process.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, []int32{pid(7)}, timeoutErr.PIDs)
	assert.Contains(t, err.Error(), "elevated privileges")
}

func TestShutdownCanceled(t *testing.T) {
	platform := mock.NewPlatform(process.Process{PID: pid(7), Name: "cursor"}).IgnoreTerminate(pid(7))
	c := process.NewController(zaptest.NewLogger(t), testNames,
		process.ControllerWithPlatform(platform),
		process.ControllerWithTimeout(time.Minute),
		process.ControllerWithPollInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	state, err := c.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, process.StateGracefulShutdown, state)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", process.StateIdle.String())
	assert.Equal(t, "forced_shutdown", process.StateForcedShutdown.String())
	assert.Equal(t, "timed_out", process.StateTimedOut.String())
	assert.Equal(t, "state(42)", process.State(42).String())
}
