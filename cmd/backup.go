package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/foomo/idreset/pkg/backup"
	"github.com/foomo/idreset/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backups of the primary configuration file",
	}

	cmd.AddCommand(newBackupListCommand())
	cmd.AddCommand(newBackupCreateCommand())
	cmd.AddCommand(newBackupRestoreCommand())
	cmd.AddCommand(newBackupDeleteCommand())

	return cmd
}

// ------------------------------------------------------------------------------------------------
// ~ Sub commands
// ------------------------------------------------------------------------------------------------

func newBackupListCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupStore(cmd, v, func(l *zap.Logger, target config.Target, store *backup.Store) error {
				list, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonFlag(v) {
					return printJSON(cmd.OutOrStdout(), list)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tCREATED\tMACHINE ID\tSIZE")
				for _, d := range list {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Timestamp.Format("2006-01-02 15:04:05"), d.MachineID, humanize.IBytes(uint64(d.Size)))
				}
				return w.Flush()
			})
		},
	}

	flags := cmd.Flags()
	addConfigFlag(flags, v)
	addTargetFlag(flags, v)
	addBackupFlags(flags, v)
	addJSONFlag(flags, v)

	return cmd
}

func newBackupCreateCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a backup of the primary configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupStore(cmd, v, func(l *zap.Logger, target config.Target, store *backup.Store) error {
				root, err := dataRoot(v, target)
				if err != nil {
					return err
				}
				id, err := store.Create(cmd.Context(), target.PrimaryConfigPath(root))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	addTargetFlags(flags, v)
	addBackupFlags(flags, v)

	return cmd
}

func newBackupRestoreCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a backup over the primary configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupStore(cmd, v, func(l *zap.Logger, target config.Target, store *backup.Store) error {
				root, err := dataRoot(v, target)
				if err != nil {
					return err
				}
				running, err := newController(l, target).Running(cmd.Context())
				if err != nil {
					return err
				}
				if running {
					return errors.Errorf("%s is running, close it before restoring", target.DisplayName)
				}
				live := target.PrimaryConfigPath(root)
				if err := store.Restore(cmd.Context(), args[0], live); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], live)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	addTargetFlags(flags, v)
	addBackupFlags(flags, v)

	return cmd
}

func newBackupDeleteCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackupStore(cmd, v, func(l *zap.Logger, target config.Target, store *backup.Store) error {
				return store.Delete(cmd.Context(), args[0])
			})
		},
	}

	flags := cmd.Flags()
	addConfigFlag(flags, v)
	addTargetFlag(flags, v)
	addBackupFlags(flags, v)

	return cmd
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func withBackupStore(cmd *cobra.Command, v *viper.Viper, fn func(l *zap.Logger, target config.Target, store *backup.Store) error) error {
	l := zap.L().Named("idreset")
	target, err := loadTarget(v)
	if err != nil {
		return err
	}
	store, err := newBackupStore(cmd.Context(), l, v, target)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Warn("failed to close backup store", zap.Error(err))
		}
	}()
	return fn(l, target, store)
}
