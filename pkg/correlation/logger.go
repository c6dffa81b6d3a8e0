package correlation

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ContextFields returns the correlation fields stored in ctx
func ContextFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}

	info, ok := InfoFromContext(ctx)
	if !ok {
		return fields
	}
	if !info.CorrelationID.IsEmpty() {
		fields["correlation_id"] = info.CorrelationID.String()
	}
	if info.ClientIP != "" {
		fields["client_ip"] = info.ClientIP
	}
	if info.Method != "" {
		fields["method"] = info.Method
	}
	if info.Path != "" {
		fields["path"] = info.Path
	}
	return fields
}

// LoggerFromContext returns an entry carrying the correlation fields of ctx
func LoggerFromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(ContextFields(ctx))
}
