package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/foomo/idreset/pkg/progress"
	"github.com/foomo/idreset/pkg/reset"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewResetCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the machine identity of the target application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := zap.L().Named("idreset")

			target, err := loadTarget(v)
			if err != nil {
				return err
			}
			root, err := dataRoot(v, target)
			if err != nil {
				return err
			}

			backups, err := newBackupStore(ctx, l, v, target)
			if err != nil {
				return err
			}
			defer func() {
				if err := backups.Close(); err != nil {
					l.Warn("failed to close backup store", zap.Error(err))
				}
			}()
			defer writeMetrics(l, v)

			if quitFlag(v) {
				state, err := shutdown(ctx, l, target)
				if err != nil {
					return err
				}
				l.Info("target shut down", zap.String("state", state.String()))
			}

			opts := []reset.ResetterOption{
				reset.ResetterWithSink(progress.NewZapSink(l)),
				reset.ResetterWithBackupLimit(backupLimitFlag(v)),
			}
			if backupStorageFlag(v) != "blob" {
				opts = append(opts, reset.ResetterWithBackupDir(backupDir(v, target)))
			}

			res, err := reset.NewResetter(l, target, root, newController(l, target), backups, opts...).Reset(ctx)
			if err != nil {
				return err
			}

			if jsonFlag(v) {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	flags := cmd.Flags()
	addTargetFlags(flags, v)
	addBackupFlags(flags, v)
	addBackupLimitFlag(flags, v)
	addQuitFlag(flags, v)
	addMetricsFileFlag(flags, v)
	addJSONFlag(flags, v)

	return cmd
}

func printResult(w io.Writer, res *reset.Result) {
	r := res.Report
	_, _ = fmt.Fprintf(w, "backup:              %s\n", res.BackupID)
	_, _ = fmt.Fprintf(w, "device id:           %s\n", res.Identifiers.DeviceID())
	_, _ = fmt.Fprintf(w, "files processed:     %d\n", r.FilesProcessed)
	_, _ = fmt.Fprintf(w, "keys updated:        %d\n", r.KeysUpdated)
	_, _ = fmt.Fprintf(w, "keys deleted:        %d\n", r.KeysDeleted)
	_, _ = fmt.Fprintf(w, "databases sanitized: %d\n", r.DatabasesSanitized)
	_, _ = fmt.Fprintf(w, "records cleaned:     %d\n", r.RecordsCleaned)
	_, _ = fmt.Fprintf(w, "identity files:      %d\n", r.IdentityFilesRemoved)
	_, _ = fmt.Fprintf(w, "caches cleaned:      %d (%s)\n", r.DirectoriesCleaned, humanize.IBytes(uint64(r.BytesFreed)))
	_, _ = fmt.Fprintf(w, "duration:            %s\n", res.Duration.Round(time.Millisecond))
	for _, e := range r.Errors {
		_, _ = fmt.Fprintf(w, "error:               %s\n", e)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
