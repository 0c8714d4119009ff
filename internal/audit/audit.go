// Package audit records who did what across the pipeline. Entries go to the
// structured log and, best effort, to the store's audit table.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
)

// Logger writes audit entries. A failed store write never fails the caller;
// the entry still lands in the zap log.
type Logger struct {
	store store.Store
	user  string
}

// New creates a Logger writing entries as the given user. An empty user
// defaults to "system".
func New(s store.Store, user string) *Logger {
	if user == "" {
		user = "system"
	}
	return &Logger{store: s, user: user}
}

// Log records an entry at the given severity.
func (l *Logger) Log(ctx context.Context, severity model.AuditSeverity, module, action, entitySlug string, detail map[string]any) {
	fields := []zap.Field{
		zap.String("module", module),
		zap.String("action", action),
	}
	if entitySlug != "" {
		fields = append(fields, zap.String("entity", entitySlug))
	}
	if detail != nil {
		fields = append(fields, zap.Any("detail", detail))
	}

	switch severity {
	case model.SeverityError:
		zap.L().Error("audit", fields...)
	case model.SeverityWarning:
		zap.L().Warn("audit", fields...)
	default:
		zap.L().Info("audit", fields...)
	}

	if l.store == nil {
		return
	}
	entry := model.AuditEntry{
		Timestamp:  time.Now().UTC(),
		EntitySlug: entitySlug,
		Module:     module,
		Action:     action,
		Detail:     detail,
		User:       l.user,
		Severity:   severity,
	}
	if err := l.store.AppendAudit(ctx, entry); err != nil {
		zap.L().Warn("audit: store write failed",
			zap.String("module", module),
			zap.String("action", action),
			zap.Error(err))
	}
}

// Info records an info-level entry.
func (l *Logger) Info(ctx context.Context, module, action, entitySlug string, detail map[string]any) {
	l.Log(ctx, model.SeverityInfo, module, action, entitySlug, detail)
}

// Warning records a warning-level entry.
func (l *Logger) Warning(ctx context.Context, module, action, entitySlug string, detail map[string]any) {
	l.Log(ctx, model.SeverityWarning, module, action, entitySlug, detail)
}

// Error records an error-level entry.
func (l *Logger) Error(ctx context.Context, module, action, entitySlug string, detail map[string]any) {
	l.Log(ctx, model.SeverityError, module, action, entitySlug, detail)
}
