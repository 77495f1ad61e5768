package process

import (
	"context"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	ps "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
)

// gopsutilPlatform is the Platform of the host OS. Graceful termination is
// implemented per OS in terminate_*.go.
type gopsutilPlatform struct {
	workers int
}

// DefaultPlatform returns the Platform for the host OS.
func DefaultPlatform() Platform {
	return &gopsutilPlatform{workers: runtime.NumCPU() * 4}
}

func (p *gopsutilPlatform) Processes(ctx context.Context) ([]Process, error) {
	procs, err := ps.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}

	names := make([]string, len(procs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, proc := range procs {
		g.Go(func() error {
			// processes may exit or be inaccessible while we look at them
			if name, err := proc.NameWithContext(gctx); err == nil {
				names[i] = name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ret := make([]Process, 0, len(procs))
	for i, proc := range procs {
		if names[i] != "" {
			ret = append(ret, Process{PID: proc.Pid, Name: names[i]})
		}
	}
	return ret, nil
}

func (p *gopsutilPlatform) Kill(ctx context.Context, pid int32) error {
	proc, err := ps.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, ps.ErrorProcessNotRunning) {
			return nil
		}
		return err
	}
	return proc.KillWithContext(ctx)
}

func (p *gopsutilPlatform) Alive(ctx context.Context, pid int32) (bool, error) {
	exists, err := ps.PidExistsWithContext(ctx, pid)
	if err != nil || !exists {
		return false, err
	}
	proc, err := ps.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, ps.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, err
	}
	if status, err := proc.StatusWithContext(ctx); err == nil && slices.Contains(status, ps.Zombie) {
		return false, nil
	}
	return true, nil
}
