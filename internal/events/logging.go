package events

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"go.uber.org/zap"
)

// ZapOperationLogger adapts a zap logger to creditline.OperationLogger.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps logger for operation logging.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured line per completed operation.
func (operationLogger *ZapOperationLogger) LogOperation(ctx context.Context, entry creditline.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("caller", entry.Caller.String()),
		zap.String("borrower", entry.Borrower.String()),
		zap.String("credit_hash", entry.CreditHash.String()),
		zap.String("status", entry.Status),
	}
	if entry.ReceivableID.String() != "" {
		fields = append(fields, zap.String("receivable_id", entry.ReceivableID.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount.Int64()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("credit operation failed", fields...)
		return
	}
	operationLogger.logger.Info("credit operation", fields...)
}
