package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gonglijing/nbconsole/internal/client"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

func parseIDArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List northbound connectors with their runtime status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			views, err := c.ListConfigs(cmd.Context())
			if err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}
			statuses, err := c.ListStatus(cmd.Context())
			if err != nil {
				// 状态接口不可用时仍输出配置
				opts.log.Debug("List northbound status failed", "error", err.Error())
			}
			return printViews(cmd.OutOrStdout(), client.JoinStatus(views, statuses))
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show runtime status of northbound connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			out := cmd.OutOrStdout()
			if !watch {
				statuses, err := c.ListStatus(cmd.Context())
				if err != nil {
					return reportSubmitError(cmd.ErrOrStderr(), err)
				}
				return printStatuses(out, statuses)
			}

			if !cmd.Flags().Changed("interval") {
				interval = opts.cfg.NorthboundStatusPollInterval
			}
			poller := client.NewStatusPoller(c, interval, opts.log)
			err := poller.Run(cmd.Context(), func(statuses []models.NorthboundStatus) {
				fprintf(out, "--- %s\n", time.Now().Format(time.RFC3339))
				_ = printStatuses(out, statuses)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval for --watch")
	return cmd
}

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "schema <type>",
		Short: "Show the config field schema of a northbound type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				fields []schema.Field
				err    error
			)
			if offline {
				fields, err = opts.offlineFields(cmd.Context(), args[0])
			} else {
				fields, err = opts.client().Schema(cmd.Context(), args[0])
			}
			if err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}
			return printFields(cmd.OutOrStdout(), fields)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use the built-in (or schema-file) tables instead of the gateway")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a northbound connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			if err := opts.client().Delete(cmd.Context(), id); err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}
			fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}
}

func newToggleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip the enabled flag of a northbound connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			enabled, err := opts.client().Toggle(cmd.Context(), id)
			if err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}
			fprintf(cmd.OutOrStdout(), "northbound %d enabled=%d\n", id, enabled)
			return nil
		},
	}
}

func newReloadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload <id>",
		Short: "Rebuild the runtime connector from the stored config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			if err := opts.client().Reload(cmd.Context(), id); err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}
			fprintf(cmd.OutOrStdout(), "reloaded %d\n", id)
			return nil
		},
	}
}

func newSyncIdentityCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-identity",
		Short: "Copy the gateway product/device key into schema-driven connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().SyncGatewayIdentity(cmd.Context())
			if err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}
			fprintf(cmd.OutOrStdout(), "updated %d connector(s)", res.Updated)
			if len(res.Names) > 0 {
				fprintf(cmd.OutOrStdout(), ": %s", strings.Join(res.Names, ", "))
			}
			fprintf(cmd.OutOrStdout(), "\n")
			return nil
		},
	}
}
