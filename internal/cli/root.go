// Package cli nbconsole 命令行：启动参考网关，或通过 REST 接口管理北向配置。
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gonglijing/nbconsole/internal/client"
	"github.com/gonglijing/nbconsole/internal/config"
	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

type rootOptions struct {
	configPath string
	apiBase    string
	token      string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
}

// NewRootCommand 创建 nbconsole 根命令
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "nbconsole",
		Short:         "Northbound connector configuration console",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path (default: search config/config.yaml, ./config.yaml)")
	flags.StringVar(&opts.apiBase, "api", "", "gateway API base URL (overrides api_base)")
	flags.StringVar(&opts.token, "token", "", "bearer token for the gateway API")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(opts),
		newListCommand(opts),
		newStatusCommand(opts),
		newSchemaCommand(opts),
		newCreateCommand(opts),
		newEditCommand(opts),
		newDeleteCommand(opts),
		newToggleCommand(opts),
		newReloadCommand(opts),
		newSyncIdentityCommand(opts),
		newNormalizeCommand(opts),
		newValidateCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("api") {
		cfg.APIBase = o.apiBase
	}
	if cmd.Flags().Changed("token") {
		cfg.APIToken = o.token
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}

	logOpts := logger.Options{Level: cfg.LogLevel}
	if cfg.LogJSON {
		logOpts.Format = "json"
	}
	if cmd.Name() == "serve" {
		logOpts.File = cfg.LogFile
		logOpts.MaxSizeBytes = cfg.LogMaxSizeBytes
	} else {
		// 管理命令的标准输出留给结果
		logOpts.Output = cmd.ErrOrStderr()
	}
	log, err := logger.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetGlobal(log)

	o.cfg = cfg
	o.log = log
	return nil
}

func (o *rootOptions) client() *client.Client {
	return client.New(client.Options{
		BaseURL: o.cfg.APIBase,
		Token:   o.cfg.APIToken,
		Timeout: o.cfg.APITimeout,
		Logger:  o.log,
	})
}

func (o *rootOptions) registry() *nbtype.Registry {
	types := o.cfg.SchemaDrivenTypes()
	if len(types) == 0 {
		return nbtype.New()
	}
	return nbtype.New(nbtype.WithSchemaDriven(types...))
}

// parseAssignments 解析 --set key=value
func parseAssignments(items []string) ([][2]string, error) {
	out := make([][2]string, 0, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", item)
		}
		out = append(out, [2]string{key, value})
	}
	return out, nil
}

func fprintf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
