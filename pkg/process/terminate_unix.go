//go:build !windows

package process

import (
	"context"
	"syscall"

	"github.com/pkg/errors"
	ps "github.com/shirou/gopsutil/v4/process"
)

// Terminate sends SIGTERM.
func (p *gopsutilPlatform) Terminate(ctx context.Context, pid int32) error {
	proc, err := ps.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, ps.ErrorProcessNotRunning) {
			return nil
		}
		return err
	}
	return proc.SendSignalWithContext(ctx, syscall.SIGTERM)
}
