//go:build windows

package process

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
)

// Terminate asks the process tree to close via taskkill without /F.
func (p *gopsutilPlatform) Terminate(ctx context.Context, pid int32) error {
	out, err := exec.CommandContext(ctx, "taskkill", "/PID", strconv.Itoa(int(pid)), "/T").CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "taskkill: %s", out)
	}
	return nil
}
