package database

import (
	"context"
	"fmt"
	"time"

	"github.com/snarg/cel-logd/internal/generator"
)

// InsertCallLog persists a call log with its participants and recordings
// in one transaction and returns the new id.
func (db *DB) InsertCallLog(ctx context.Context, cl *generator.CallLog) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert call log: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO call_logs (
			tenant_uuid, date, date_answer, date_end,
			source_name, source_exten, source_line, source_user_uuid,
			destination_name, destination_exten, destination_line, destination_user_uuid,
			requested_name, requested_exten, requested_context,
			source_internal_exten, source_internal_context,
			destination_internal_exten, destination_internal_context,
			requested_internal_exten, requested_internal_context,
			direction
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22
		) RETURNING id`,
		cl.TenantUUID, cl.Date, cl.DateAnswer, cl.DateEnd,
		cl.SourceName, cl.SourceExten, cl.SourceLine, cl.SourceUserUUID,
		cl.DestinationName, cl.DestinationExten, cl.DestinationLine, cl.DestinationUserUUID,
		cl.RequestedName, cl.RequestedExten, cl.RequestedContext,
		cl.SourceInternalExten, cl.SourceInternalContext,
		cl.DestinationInternalExten, cl.DestinationInternalContext,
		cl.RequestedInternalExten, cl.RequestedInternalContext,
		string(cl.Direction),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert call log: %w", err)
	}

	for _, p := range cl.Participants {
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO call_log_participants (call_log_id, user_uuid, line_id, role, tags, answered)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, p.UserUUID, p.LineID, string(p.Role), tags, p.Answered,
		)
		if err != nil {
			return 0, fmt.Errorf("insert participant %s: %w", p.UserUUID, err)
		}
	}

	for _, rec := range cl.Recordings {
		_, err = tx.Exec(ctx, `
			INSERT INTO call_log_recordings (call_log_id, start_time, end_time, path)
			VALUES ($1, $2, $3, $4)`,
			id, rec.StartTime, rec.EndTime, rec.Path,
		)
		if err != nil {
			return 0, fmt.Errorf("insert recording %q: %w", rec.Path, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert call log: %w", err)
	}
	return id, nil
}

// DeleteCallLogsByIDs removes superseded call logs and unstamps their
// CELs. Participants and recordings cascade.
func (db *DB) DeleteCallLogsByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete call logs: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE cel SET call_log_id = NULL WHERE call_log_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("unstamp cels: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM call_logs WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete call logs: %w", err)
	}
	return tx.Commit(ctx)
}

// CallLogFilter narrows ListCallLogs results.
type CallLogFilter struct {
	TenantUUID string
	UserUUID   string
	From       *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// ListCallLogs returns call logs newest first, with participants attached.
func (db *DB) ListCallLogs(ctx context.Context, f CallLogFilter) ([]*generator.CallLog, error) {
	query := `
		SELECT DISTINCT cl.id, cl.tenant_uuid, cl.date, cl.date_answer, cl.date_end,
		       cl.source_name, cl.source_exten, cl.source_line, cl.source_user_uuid,
		       cl.destination_name, cl.destination_exten, cl.destination_line, cl.destination_user_uuid,
		       cl.requested_name, cl.requested_exten, cl.requested_context,
		       cl.source_internal_exten, cl.source_internal_context,
		       cl.destination_internal_exten, cl.destination_internal_context,
		       cl.requested_internal_exten, cl.requested_internal_context,
		       cl.direction
		FROM call_logs cl`
	var (
		args  []any
		where []string
	)
	if f.UserUUID != "" {
		query += ` JOIN call_log_participants p ON p.call_log_id = cl.id`
		args = append(args, f.UserUUID)
		where = append(where, fmt.Sprintf("p.user_uuid = $%d", len(args)))
	}
	if f.TenantUUID != "" {
		args = append(args, f.TenantUUID)
		where = append(where, fmt.Sprintf("cl.tenant_uuid = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("cl.date >= $%d", len(args)))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		where = append(where, fmt.Sprintf("cl.date < $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY cl.date DESC, cl.id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	defer rows.Close()

	var result []*generator.CallLog
	byID := make(map[int64]*generator.CallLog)
	for rows.Next() {
		cl := &generator.CallLog{}
		var direction string
		if err := rows.Scan(
			&cl.ID, &cl.TenantUUID, &cl.Date, &cl.DateAnswer, &cl.DateEnd,
			&cl.SourceName, &cl.SourceExten, &cl.SourceLine, &cl.SourceUserUUID,
			&cl.DestinationName, &cl.DestinationExten, &cl.DestinationLine, &cl.DestinationUserUUID,
			&cl.RequestedName, &cl.RequestedExten, &cl.RequestedContext,
			&cl.SourceInternalExten, &cl.SourceInternalContext,
			&cl.DestinationInternalExten, &cl.DestinationInternalContext,
			&cl.RequestedInternalExten, &cl.RequestedInternalContext,
			&direction,
		); err != nil {
			return nil, fmt.Errorf("scan call log: %w", err)
		}
		cl.Direction = generator.Direction(direction)
		result = append(result, cl)
		byID[cl.ID] = cl
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byID) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	prows, err := db.Pool.Query(ctx, `
		SELECT call_log_id, user_uuid, line_id, role, tags, answered
		FROM call_log_participants
		WHERE call_log_id = ANY($1)
		ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var (
			callLogID int64
			p         generator.Participant
			lineID    *int
			role      string
		)
		if err := prows.Scan(&callLogID, &p.UserUUID, &lineID, &role, &p.Tags, &p.Answered); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if lineID != nil {
			p.LineID = *lineID
		}
		p.Role = generator.Role(role)
		if cl := byID[callLogID]; cl != nil {
			cl.Participants = append(cl.Participants, &p)
		}
	}
	return result, prows.Err()
}

// CountCallLogs returns the total matching a filter, ignoring paging.
func (db *DB) CountCallLogs(ctx context.Context, f CallLogFilter) (int64, error) {
	f.Limit = 0
	f.Offset = 0
	query := `SELECT count(DISTINCT cl.id) FROM call_logs cl`
	var (
		args  []any
		where []string
	)
	if f.UserUUID != "" {
		query += ` JOIN call_log_participants p ON p.call_log_id = cl.id`
		args = append(args, f.UserUUID)
		where = append(where, fmt.Sprintf("p.user_uuid = $%d", len(args)))
	}
	if f.TenantUUID != "" {
		args = append(args, f.TenantUUID)
		where = append(where, fmt.Sprintf("cl.tenant_uuid = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("cl.date >= $%d", len(args)))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		where = append(where, fmt.Sprintf("cl.date < $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}

	var count int64
	if err := db.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count call logs: %w", err)
	}
	return count, nil
}
