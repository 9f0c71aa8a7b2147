// Package audit persists the authorization audit trail: condition
// faults observed during evaluation and administrative mutations to
// groups, delegations and ACL entries. Only the audit trail lets an
// operator tell an internal fault apart from a legitimate deny.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian/internal/authz"
)

// Execer is the slice of pgxpool.Pool the recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes audit rows to authz_audit_logs. Writes are
// best-effort: a failed insert is logged and never surfaces into the
// decision path.
type Recorder struct {
	db     Execer
	logger *slog.Logger
	clock  func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(db Execer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger, clock: time.Now}
}

const insertLog = `INSERT INTO authz_audit_logs (kind, actor_id, action, entity, entity_id, detail, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// RecordFault stores one condition fault. Implements authz.FaultRecorder.
func (r *Recorder) RecordFault(ctx context.Context, fault authz.ConditionFault) {
	if r == nil {
		return
	}
	at := fault.At
	if at.IsZero() {
		at = r.clock()
	}
	detail, _ := json.Marshal(map[string]any{
		"role":     fault.Role,
		"resource": fault.Resource,
		"detail":   fault.Detail,
	})
	r.insert(ctx, "fault", fault.UserID, fault.Action, "permission", fault.Role, detail, at)
}

// RecordMutation stores one administrative mutation. Implements
// authz.MutationRecorder. The acting administrator is taken from the
// request context when resolved upstream.
func (r *Recorder) RecordMutation(ctx context.Context, op, entity, entityID string, detail map[string]any) {
	if r == nil {
		return
	}
	var actorID string
	if actor, ok := authz.UserFromContext(ctx); ok {
		actorID = actor.ID
	}
	payload, _ := json.Marshal(detail)
	r.insert(ctx, "mutation", actorID, op, entity, entityID, payload, r.clock())
}

func (r *Recorder) insert(ctx context.Context, kind, actorID, action, entity, entityID string, detail []byte, at time.Time) {
	if r == nil || r.db == nil {
		return
	}
	if _, err := r.db.Exec(ctx, insertLog, kind, actorID, action, entity, entityID, detail, at); err != nil {
		r.logger.Warn("audit insert", slog.String("kind", kind), slog.Any("error", err))
	}
}
