package database

import (
	"context"
	"fmt"

	"github.com/snarg/cel-logd/internal/cel"
)

// FetchCELsByLinkedID returns all CELs of one logical call, ordered the
// way the engine wrote them.
func (db *DB) FetchCELsByLinkedID(ctx context.Context, linkedID string) ([]cel.CEL, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, eventtype, eventtime, channame, uniqueid, linkedid,
		       cid_name, cid_num, exten, context, appname, appdata, userfield,
		       call_log_id
		FROM cel
		WHERE linkedid = $1
		ORDER BY eventtime, id`,
		linkedID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch cels for linkedid %q: %w", linkedID, err)
	}
	defer rows.Close()

	var cels []cel.CEL
	for rows.Next() {
		var c cel.CEL
		var eventType string
		if err := rows.Scan(
			&c.ID, &eventType, &c.EventTime, &c.ChannelName, &c.UniqueID, &c.LinkedID,
			&c.CIDName, &c.CIDNum, &c.Exten, &c.Context, &c.AppName, &c.AppData, &c.UserField,
			&c.CallLogID,
		); err != nil {
			return nil, fmt.Errorf("scan cel: %w", err)
		}
		c.EventType = cel.EventType(eventType)
		cels = append(cels, c)
	}
	return cels, rows.Err()
}

// StampCELsCallLogID marks CELs as attributed to a call log, so a later
// regeneration knows which record it supersedes.
func (db *DB) StampCELsCallLogID(ctx context.Context, celIDs []int64, callLogID int64) error {
	if len(celIDs) == 0 {
		return nil
	}
	_, err := db.Pool.Exec(ctx,
		`UPDATE cel SET call_log_id = $1 WHERE id = ANY($2)`,
		callLogID, celIDs,
	)
	if err != nil {
		return fmt.Errorf("stamp cels with call log %d: %w", callLogID, err)
	}
	return nil
}
