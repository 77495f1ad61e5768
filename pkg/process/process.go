package process

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

type (
	Process struct {
		PID  int32
		Name string
	}
	// Platform enumerates and signals OS processes.
	Platform interface {
		Processes(ctx context.Context) ([]Process, error)
		// Terminate asks the process to exit.
		Terminate(ctx context.Context, pid int32) error
		// Kill forces the process to exit.
		Kill(ctx context.Context, pid int32) error
		Alive(ctx context.Context, pid int32) (bool, error)
	}
)

type State int

const (
	StateIdle State = iota
	StateGracefulShutdown
	StateForcedShutdown
	StateTerminated
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGracefulShutdown:
		return "graceful_shutdown"
	case StateForcedShutdown:
		return "forced_shutdown"
	case StateTerminated:
		return "terminated"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TimeoutError is returned when processes survive both shutdown windows.
type TimeoutError struct {
	PIDs    []int32
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	pids := make([]string, len(e.PIDs))
	for i, pid := range e.PIDs {
		pids[i] = fmt.Sprint(pid)
	}
	return fmt.Sprintf("processes still running after %s (pids: %s), retry with elevated privileges", e.Timeout, strings.Join(pids, ", "))
}

type (
	// Controller finds and shuts down the processes of one target application.
	Controller struct {
		l        *zap.Logger
		platform Platform
		names    []string
		timeout  time.Duration
		interval time.Duration
		self     int32
		observer func(State)
	}
	ControllerOption func(*Controller)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func ControllerWithPlatform(v Platform) ControllerOption {
	return func(o *Controller) {
		o.platform = v
	}
}

// ControllerWithTimeout sets the total shutdown budget, split evenly between both phases.
func ControllerWithTimeout(v time.Duration) ControllerOption {
	return func(o *Controller) {
		if v > 0 {
			o.timeout = v
		}
	}
}

func ControllerWithPollInterval(v time.Duration) ControllerOption {
	return func(o *Controller) {
		if v > 0 {
			o.interval = v
		}
	}
}

// ControllerWithObserver is called on every state transition.
func ControllerWithObserver(v func(State)) ControllerOption {
	return func(o *Controller) {
		o.observer = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewController(l *zap.Logger, names []string, opts ...ControllerOption) *Controller {
	inst := &Controller{
		l:        l.Named("process"),
		names:    names,
		timeout:  10 * time.Second,
		interval: 500 * time.Millisecond,
		self:     int32(os.Getpid()),
	}

	for _, opt := range opts {
		opt(inst)
	}

	if inst.platform == nil {
		inst.platform = DefaultPlatform()
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Find returns the running processes matching the target names.
func (c *Controller) Find(ctx context.Context) ([]Process, error) {
	procs, err := c.platform.Processes(ctx)
	if err != nil {
		return nil, err
	}

	var ret []Process
	for _, p := range procs {
		if p.PID == c.self || p.Name == "" {
			continue
		}
		if c.matches(p.Name) {
			ret = append(ret, p)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].PID < ret[j].PID })
	return ret, nil
}

func (c *Controller) Running(ctx context.Context) (bool, error) {
	procs, err := c.Find(ctx)
	if err != nil {
		return false, err
	}
	return len(procs) > 0, nil
}

// Shutdown terminates all matching processes, escalating to a kill after half the timeout.
func (c *Controller) Shutdown(ctx context.Context) (State, error) {
	procs, err := c.Find(ctx)
	if err != nil {
		return StateIdle, err
	}
	if len(procs) == 0 {
		c.l.Debug("no running processes")
		return StateIdle, nil
	}

	pids := make([]int32, len(procs))
	for i, p := range procs {
		pids[i] = p.PID
	}

	graceful := c.timeout / 2

	c.transition(StateGracefulShutdown, pids)
	for _, pid := range pids {
		if err := c.platform.Terminate(ctx, pid); err != nil {
			c.l.Warn("terminate failed", zap.Int32("pid", pid), zap.Error(err))
		}
	}
	remaining, err := c.wait(ctx, pids, graceful)
	if err != nil {
		return StateGracefulShutdown, err
	}
	if len(remaining) == 0 {
		c.transition(StateTerminated, nil)
		return StateTerminated, nil
	}

	c.transition(StateForcedShutdown, remaining)
	for _, pid := range remaining {
		if err := c.platform.Kill(ctx, pid); err != nil {
			c.l.Warn("kill failed", zap.Int32("pid", pid), zap.Error(err))
		}
	}
	remaining, err = c.wait(ctx, remaining, c.timeout-graceful)
	if err != nil {
		return StateForcedShutdown, err
	}
	if len(remaining) == 0 {
		c.transition(StateTerminated, nil)
		return StateTerminated, nil
	}

	c.transition(StateTimedOut, remaining)
	return StateTimedOut, &TimeoutError{PIDs: remaining, Timeout: c.timeout}
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (c *Controller) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, n := range c.names {
		target := strings.ToLower(n)
		if target == "" {
			continue
		}
		if strings.Contains(lower, target) || strings.Contains(target, lower) {
			return true
		}
	}
	return false
}

func (c *Controller) transition(s State, pids []int32) {
	c.l.Info("shutdown state", zap.Stringer("state", s), zap.Int32s("pids", pids))
	if c.observer != nil {
		c.observer(s)
	}
}

// wait polls until all pids are gone or the window elapsed and returns the survivors.
func (c *Controller) wait(ctx context.Context, pids []int32, window time.Duration) ([]int32, error) {
	deadline := time.Now().Add(window)
	for {
		alive := c.alive(ctx, pids)
		if len(alive) == 0 {
			return nil, nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			return alive, nil
		}
		sleep := c.interval
		if left < sleep {
			sleep = left
		}
		select {
		case <-ctx.Done():
			return alive, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (c *Controller) alive(ctx context.Context, pids []int32) []int32 {
	var ret []int32
	for _, pid := range pids {
		ok, err := c.platform.Alive(ctx, pid)
		if err != nil {
			c.l.Debug("liveness check failed", zap.Int32("pid", pid), zap.Error(err))
			ok = true
		}
		if ok {
			ret = append(ret, pid)
		}
	}
	return ret
}
