package shared

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	sql  string
	args []any
}

func (e *execRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = sql
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &execRecorder{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{
		Action:   "depreciation.post",
		Entity:   "depreciation_period",
		EntityID: "company:1:period:2024-01",
		Meta:     map[string]any{"assets": 2},
	})
	require.NoError(t, err)
	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Len(t, db.args, 6)
	require.Nil(t, db.args[0].(*int64))
	require.JSONEq(t, `{"assets":2}`, string(db.args[4].([]byte)))
}

func TestAuditLoggerRequiresFields(t *testing.T) {
	logger := NewAuditLogger(&execRecorder{})
	err := logger.Record(context.Background(), AuditLog{Action: "x"})
	require.Error(t, err)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}
