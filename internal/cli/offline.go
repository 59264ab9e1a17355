package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// offlineFields 从内置表（或 schema 文件覆盖）取字段，不访问网关
func (o *rootOptions) offlineFields(ctx context.Context, nbType string) ([]schema.Field, error) {
	builtin, err := schema.LoadBuiltinFile(o.cfg.NorthboundSchemaFile)
	if err != nil {
		return nil, err
	}
	return builtin.Fields(ctx, o.registry().Normalize(nbType))
}

// offlineConfig 按 schema 规范化 --config-file/--config-json/--set 组合出的配置
func (o *rootOptions) offlineConfig(ctx context.Context, f *editFlags) (nbconfig.Config, []schema.Field, error) {
	registry := o.registry()
	nbType := registry.Normalize(f.nbType)
	if nbType == "" {
		return nil, nil, fmt.Errorf("--type is required")
	}
	if !registry.IsSchemaDriven(nbType) {
		return nil, nil, fmt.Errorf("%s uses free-form JSON config, nothing to normalize", nbType)
	}
	fields, err := o.offlineFields(ctx, nbType)
	if err != nil {
		return nil, nil, err
	}

	raw := map[string]interface{}{}
	text, ok, err := f.configText()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if raw, err = nbconfig.ParseJSON(text); err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
	}
	assignments, err := parseAssignments(f.sets)
	if err != nil {
		return nil, nil, err
	}
	for _, kv := range assignments {
		raw[kv[0]] = kv[1]
	}
	if f.uploadMs > 0 {
		raw[schema.KeyUploadIntervalMs] = f.uploadMs
	}
	return nbconfig.Normalize(raw, fields, o.cfg.NorthboundDefaultUploadMs), fields, nil
}

func newNormalizeCommand(opts *rootOptions) *cobra.Command {
	f := &editFlags{}
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a config object against the schema, offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.offlineConfig(cmd.Context(), f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Map())
		},
	}
	f.register(cmd)
	return cmd
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	f := &editFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Normalize and validate a config object against the schema, offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, fields, err := opts.offlineConfig(cmd.Context(), f)
			if err != nil {
				return err
			}
			if errs := nbconfig.Validate(cfg, fields); len(errs) > 0 {
				return reportSubmitError(cmd.ErrOrStderr(), errs)
			}
			fprintf(cmd.OutOrStdout(), "ok\n")
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
