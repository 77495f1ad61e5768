package cmd

import (
	"fmt"
	"strings"

	"github.com/foomo/idreset/pkg/config"
	"github.com/spf13/cobra"
)

// Populated by goreleaser during build
var version = "latest"

func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (targets: %s)\n", version, strings.Join(config.Names(), ", "))
		},
	}
	return cmd
}
