package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gonglijing/nbconsole/internal/editor"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
)

// editFlags create/edit 共用参数
type editFlags struct {
	nbType     string
	name       string
	sets       []string
	configFile string
	configJSON string
	uploadMs   int
	disabled   bool
	enabled    bool
}

func (f *editFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.nbType, "type", "t", "", "northbound type (pandax, ithings, sagoo, mqtt, ...)")
	fs.StringVarP(&f.name, "name", "n", "", "connector name")
	fs.StringArrayVar(&f.sets, "set", nil, "set a schema field, key=value (repeatable)")
	fs.StringVar(&f.configFile, "config-file", "", "read the JSON config object from a file")
	fs.StringVar(&f.configJSON, "config-json", "", "inline JSON config object")
	fs.IntVar(&f.uploadMs, "upload-interval", 0, "upload interval in milliseconds")
	fs.BoolVar(&f.disabled, "disabled", false, "store the connector disabled")
	fs.BoolVar(&f.enabled, "enabled", false, "store the connector enabled")
	cmd.MarkFlagsMutuallyExclusive("config-file", "config-json")
	cmd.MarkFlagsMutuallyExclusive("enabled", "disabled")
}

func (f *editFlags) configText() (string, bool, error) {
	switch {
	case f.configFile != "":
		data, err := os.ReadFile(f.configFile)
		if err != nil {
			return "", false, fmt.Errorf("read config file: %w", err)
		}
		return string(data), true, nil
	case f.configJSON != "":
		return f.configJSON, true, nil
	default:
		return "", false, nil
	}
}

func (o *rootOptions) newSession() *editor.Session {
	c := o.client()
	return editor.NewSession(editor.Options{
		Backend:         c,
		Schemas:         c,
		Registry:        o.registry(),
		DefaultType:     o.cfg.NorthboundDefaultType,
		DefaultUploadMs: o.cfg.NorthboundDefaultUploadMs,
		Logger:          o.log,
	})
}

// applyEdits 顺序：类型、名称、JSON 文本、逐字段、上传周期、使能
func applyEdits(ctx context.Context, cmd *cobra.Command, s *editor.Session, f *editFlags, registry *nbtype.Registry) error {
	if f.nbType != "" && registry.Normalize(f.nbType) != s.Type() {
		if err := s.SwitchType(ctx, f.nbType); err != nil {
			return fmt.Errorf("load schema for %s: %w", f.nbType, err)
		}
	}
	if s.SchemaError() != nil {
		if err := s.RetrySchema(ctx); err != nil {
			return fmt.Errorf("load schema for %s: %w", s.Type(), err)
		}
	}
	if cmd.Flags().Changed("name") {
		if err := s.SetName(f.name); err != nil {
			return err
		}
	}

	text, ok, err := f.configText()
	if err != nil {
		return err
	}
	if ok {
		if err := s.SetConfigText(text); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	assignments, err := parseAssignments(f.sets)
	if err != nil {
		return err
	}
	for _, kv := range assignments {
		if err := s.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}

	if f.uploadMs > 0 {
		if err := s.SetUploadInterval(f.uploadMs); err != nil {
			return err
		}
	}
	switch {
	case f.enabled:
		return s.SetEnabled(true)
	case f.disabled:
		return s.SetEnabled(false)
	}
	return nil
}

func submit(cmd *cobra.Command, s *editor.Session, verb string) error {
	view, err := s.Submit(cmd.Context())
	if err != nil {
		return reportSubmitError(cmd.ErrOrStderr(), err)
	}
	fprintf(cmd.OutOrStdout(), "%s northbound %q (id=%d, type=%s)\n", verb, view.Name, view.ID, view.Type)
	return nil
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	f := &editFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a northbound connector through the schema-driven editor",
		Example: `  nbconsole create --type pandax --name north-1 \
    --set serverUrl=tcp://10.0.0.5:1883 --set username=token-123
  nbconsole create --type mqtt --name raw --config-file mqtt.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s := opts.newSession()
			defer s.Close()

			// 指定了 --type 时默认类型的 schema 失败不影响后续切换
			if err := s.OpenCreate(ctx); err != nil && f.nbType == "" {
				return fmt.Errorf("open editor: %w", err)
			}
			if err := applyEdits(ctx, cmd, s, f, opts.registry()); err != nil {
				return err
			}
			return submit(cmd, s, "created")
		},
	}
	f.register(cmd)
	return cmd
}

func newEditCommand(opts *rootOptions) *cobra.Command {
	f := &editFlags{}
	var show bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an existing northbound connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			view, err := opts.client().GetConfig(ctx, id)
			if err != nil {
				return reportSubmitError(cmd.ErrOrStderr(), err)
			}

			s := opts.newSession()
			defer s.Close()
			rec := view.NorthboundConfig
			if err := s.OpenEdit(ctx, &rec); err != nil {
				return fmt.Errorf("open editor: %w", err)
			}
			if show {
				return printSession(cmd, s)
			}
			if err := applyEdits(ctx, cmd, s, f, opts.registry()); err != nil {
				return err
			}
			return submit(cmd, s, "updated")
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&show, "show", false, "print the normalized editor state without submitting")
	return cmd
}

// printSession 输出会话当前的记录与配置
func printSession(cmd *cobra.Command, s *editor.Session) error {
	rec := s.Record()
	state := struct {
		models.NorthboundConfig
		SchemaDriven bool                   `json:"schema_driven"`
		ConfigObject map[string]interface{} `json:"config_object,omitempty"`
		ConfigText   string                 `json:"config_text,omitempty"`
	}{NorthboundConfig: rec, SchemaDriven: s.SchemaDriven()}
	if s.SchemaDriven() {
		state.ConfigObject = s.Config().Map()
	} else {
		state.ConfigText = s.ConfigText()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
