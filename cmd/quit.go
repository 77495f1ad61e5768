package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewQuitCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Shut the target application down, forcefully if it does not exit in time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := zap.L().Named("idreset")

			target, err := loadTarget(v)
			if err != nil {
				return err
			}
			defer writeMetrics(l, v)

			state, err := shutdown(cmd.Context(), l, target)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", target.DisplayName, state)
			return nil
		},
	}

	flags := cmd.Flags()
	addConfigFlag(flags, v)
	addTargetFlag(flags, v)
	addMetricsFileFlag(flags, v)

	return cmd
}
