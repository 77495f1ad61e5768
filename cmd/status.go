package cmd

import (
	"fmt"

	"github.com/foomo/idreset/pkg/backup"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// machineIDKeys are looked up in order to show the current identity.
var machineIDKeys = []string{"telemetry.devDeviceId", "telemetry.machineId", "machineId"}

type status struct {
	Target    string  `json:"target"`
	Installed bool    `json:"installed"`
	DataRoot  string  `json:"dataRoot,omitempty"`
	Version   string  `json:"version,omitempty"`
	DeviceID  string  `json:"deviceId,omitempty"`
	Running   []int32 `json:"running"`
}

func NewStatusCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the target is installed, running and which identity it uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := zap.L().Named("idreset")

			target, err := loadTarget(v)
			if err != nil {
				return err
			}

			fs := afero.NewOsFs()
			s := status{Target: target.DisplayName, Running: []int32{}}
			if root, err := dataRoot(v, target); err == nil {
				s.Installed = true
				s.DataRoot = root
				s.Version = target.Version(fs, root)
				s.DeviceID = currentDeviceID(fs, target.PrimaryConfigPath(root))
			} else {
				l.Debug("target not found", zap.Error(err))
			}

			procs, err := newController(l, target).Find(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range procs {
				s.Running = append(s.Running, p.PID)
			}

			if jsonFlag(v) {
				return printJSON(cmd.OutOrStdout(), s)
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "target:    %s\n", s.Target)
			_, _ = fmt.Fprintf(w, "installed: %t\n", s.Installed)
			if s.Installed {
				_, _ = fmt.Fprintf(w, "data root: %s\n", s.DataRoot)
				_, _ = fmt.Fprintf(w, "version:   %s\n", s.Version)
				_, _ = fmt.Fprintf(w, "device id: %s\n", s.DeviceID)
			}
			_, _ = fmt.Fprintf(w, "running:   %v\n", s.Running)
			return nil
		},
	}

	flags := cmd.Flags()
	addTargetFlags(flags, v)
	addJSONFlag(flags, v)

	return cmd
}

// currentDeviceID returns the first identifier found in the primary config.
func currentDeviceID(fs afero.Fs, path string) string {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return ""
	}
	for _, key := range machineIDKeys {
		if id := jsoniter.Get(data, key).ToString(); id != "" {
			return id
		}
	}
	return backup.UnknownMachineID
}
