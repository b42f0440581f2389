package terraform

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dcm-project/terraform-service-provider/internal/constants"
)

// OutputQuerier reads a single named output. ok is false when the output
// is absent or null.
type OutputQuerier interface {
	QueryOutput(ctx context.Context, name string) (value string, ok bool, err error)
}

type OutputQuerierFunc func(ctx context.Context, name string) (string, bool, error)

func (f OutputQuerierFunc) QueryOutput(ctx context.Context, name string) (string, bool, error) {
	return f(ctx, name)
}

// ParseRawOutput normalizes what `terraform output -raw` printed. Whitespace
// and one level of surrounding quotes are stripped; empty, "" and null are
// reported as absent.
func ParseRawOutput(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = strings.TrimSpace(value[1 : len(value)-1])
		}
	}
	if value == "" || value == `""` || strings.EqualFold(value, "null") {
		return "", false
	}
	return value, true
}

// ExtractOutputs queries each name on its own. Absent outputs are left out
// of the map and a failing query only loses that key.
func ExtractOutputs(ctx context.Context, q OutputQuerier, names []string, logger *zap.SugaredLogger) map[string]string {
	outputs := make(map[string]string, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			logger.Warnw("output extraction interrupted", "remaining", name, "error", ctx.Err())
			break
		}
		value, ok, err := q.QueryOutput(ctx, name)
		if err != nil {
			logger.Warnw("skipping terraform output", "output", name, "error", err)
			continue
		}
		if !ok {
			logger.Debugw("terraform output absent", "output", name)
			continue
		}
		outputs[name] = value
	}
	return outputs
}

// DeriveIP returns the first output present in preference order, or
// constants.IPNotFound.
func DeriveIP(outputs map[string]string, preference []string) string {
	for _, name := range preference {
		if ip, ok := outputs[name]; ok && ip != "" {
			return ip
		}
	}
	return constants.IPNotFound
}
