// Package oplog adapts wallet operation callbacks onto a zap logger.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	"go.uber.org/zap"
)

// Logger emits one structured line per wallet operation.
type Logger struct {
	base *zap.Logger
}

// New wires a Logger over the given zap logger.
func New(base *zap.Logger) *Logger {
	return &Logger{base: base}
}

// LogOperation implements wallet.OperationLogger.
func (logger *Logger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("amount", entry.Amount.String()),
	}
	if entry.Document.String() != "" {
		fields = append(fields, zap.String("document", entry.Document.String()))
	}
	if entry.SessionID.String() != "" {
		fields = append(fields, zap.String("session_id", entry.SessionID.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		logger.base.Warn("wallet operation failed", fields...)
		return
	}
	logger.base.Info("wallet operation", fields...)
}
