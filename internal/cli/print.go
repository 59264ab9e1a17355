package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cast"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// ErrValidation 提交或离线校验失败，字段错误已输出
var ErrValidation = errors.New("northbound config validation failed")

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printViews(w io.Writer, views []*models.NorthboundView) error {
	tw := newTable(w)
	fprintf(tw, "ID\tNAME\tTYPE\tENABLED\tINTERVAL(ms)\tSERVER\tCONNECTED\tBREAKER\n")
	for _, v := range views {
		connected, breaker := "-", "-"
		if v.Status != nil {
			connected = strconv.FormatBool(v.Status.Connected)
			if v.Status.BreakerState != "" {
				breaker = v.Status.BreakerState
			}
		}
		fprintf(tw, "%d\t%s\t%s\t%t\t%d\t%s\t%s\t%s\n",
			v.ID, v.Name, v.Type, v.IsEnabled(), v.UploadInterval,
			nbconfig.ServerAddress(&v.NorthboundConfig), connected, breaker)
	}
	return tw.Flush()
}

func printStatuses(w io.Writer, statuses []models.NorthboundStatus) error {
	tw := newTable(w)
	fprintf(tw, "NAME\tTYPE\tENABLED\tCONNECTED\tBREAKER\tINTERVAL(ms)\tLAST ERROR\n")
	for _, s := range statuses {
		lastErr := s.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%d\t%s\n",
			s.Name, s.Type, s.Enabled, s.Connected, s.BreakerState, s.UploadInterval, lastErr)
	}
	return tw.Flush()
}

func printFields(w io.Writer, fields []schema.Field) error {
	tw := newTable(w)
	fprintf(tw, "KEY\tLABEL\tTYPE\tREQUIRED\tDEFAULT\n")
	for _, f := range fields {
		def := "-"
		if f.Default != nil {
			def = cast.ToString(f.Default)
		}
		fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", f.Key, f.DisplayLabel(), f.Type, f.Required, def)
	}
	return tw.Flush()
}

func printFieldErrors(w io.Writer, errs map[string]string) {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fprintf(w, "  %s: %s\n", k, errs[k])
	}
}

// reportSubmitError 输出提交错误，字段错误转为 ErrValidation
func reportSubmitError(w io.Writer, err error) error {
	var fieldErrs nbconfig.FieldErrors
	if errors.As(err, &fieldErrs) {
		fprintf(w, "validation failed:\n")
		printFieldErrors(w, fieldErrs)
		return ErrValidation
	}

	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		if fields := dataFieldErrors(apiErr.Data); len(fields) > 0 {
			fprintf(w, "%s:\n", apiErr.Message)
			printFieldErrors(w, fields)
			return ErrValidation
		}
		return fmt.Errorf("%s (%s)", apperrors.UserMessage(err, apiErr.Message), apiErr.Code)
	}
	return err
}

// dataFieldErrors 从服务端错误的 data 中取字段错误
func dataFieldErrors(data interface{}) map[string]string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
