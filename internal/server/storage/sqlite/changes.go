package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
)

const changeColumns = `c.seq, c.id, c.entity_type, c.entity_id, c.operation, c.payload,
	c.checksum, c.timestamp, c.origin_device`

// SaveChange appends the change to the user's log and moves the entity state
// when the change is newer than the current one.
func (s *Storage) SaveChange(ctx context.Context, userID string, rec *models.ChangeRecord) (storage.SaveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.SaveResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Повторная отправка того же изменения не меняет журнал
	existing, seq, err := scanChange(tx.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM changes c WHERE c.user_id = ? AND c.id = ?`, userID, rec.ID))
	switch {
	case err == nil:
		if existing.Key() != rec.Key() || existing.Checksum != rec.Checksum || existing.Operation != rec.Operation {
			return storage.SaveResult{}, fmt.Errorf("%w: %s", storage.ErrChangeConflict, rec.ID)
		}
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT change_id FROM entities WHERE user_id = ? AND entity_type = ? AND entity_id = ?`,
			userID, rec.EntityType, rec.EntityID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return storage.SaveResult{}, fmt.Errorf("failed to get entity state: %w", err)
		}
		return storage.SaveResult{Seq: seq, Duplicate: true, Current: current == rec.ID}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return storage.SaveResult{}, fmt.Errorf("failed to check existing change: %w", err)
	}

	var payload []byte
	if len(rec.Payload) > 0 {
		payload = rec.Payload
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (
			id, user_id, entity_type, entity_id, operation, payload,
			checksum, timestamp, origin_device, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		userID,
		rec.EntityType,
		rec.EntityID,
		string(rec.Operation),
		payload,
		rec.Checksum,
		rec.Timestamp,
		rec.OriginDevice,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return storage.SaveResult{}, fmt.Errorf("failed to insert change: %w", err)
	}

	seq, err = res.LastInsertId()
	if err != nil {
		return storage.SaveResult{}, fmt.Errorf("failed to get change seq: %w", err)
	}

	current, err := currentEntity(ctx, tx, userID, rec.EntityType, rec.EntityID)
	if err != nil {
		return storage.SaveResult{}, err
	}

	result := storage.SaveResult{Seq: seq}
	if current == nil || rec.IsNewerThan(current) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (
				user_id, entity_type, entity_id, change_seq, operation,
				checksum, timestamp, origin_device, change_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, entity_type, entity_id) DO UPDATE SET
				change_seq = excluded.change_seq,
				operation = excluded.operation,
				checksum = excluded.checksum,
				timestamp = excluded.timestamp,
				origin_device = excluded.origin_device,
				change_id = excluded.change_id
		`,
			userID,
			rec.EntityType,
			rec.EntityID,
			seq,
			string(rec.Operation),
			rec.Checksum,
			rec.Timestamp,
			rec.OriginDevice,
			rec.ID,
		)
		if err != nil {
			return storage.SaveResult{}, fmt.Errorf("failed to update entity state: %w", err)
		}
		result.Current = true
	}

	if err := tx.Commit(); err != nil {
		return storage.SaveResult{}, fmt.Errorf("failed to commit change: %w", err)
	}

	return result, nil
}

// LatestChange returns the change the entity state currently points to
func (s *Storage) LatestChange(ctx context.Context, userID, entityType, entityID string) (*models.ChangeRecord, error) {
	rec, _, err := scanChange(s.db.QueryRowContext(ctx, `
		SELECT `+changeColumns+`
		FROM entities e
		JOIN changes c ON c.seq = e.change_seq
		WHERE e.user_id = ? AND e.entity_type = ? AND e.entity_id = ?
	`, userID, entityType, entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get latest change: %w", err)
	}

	return rec, nil
}

// ChangesSince returns changes of one type with seq greater than since
func (s *Storage) ChangesSince(ctx context.Context, userID, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+changeColumns+`
		FROM changes c
		WHERE c.user_id = ? AND c.entity_type = ? AND c.seq > ?
		ORDER BY c.seq ASC
	`, userID, entityType, since)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query changes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	changes := make([]*models.ChangeRecord, 0)
	cursor := since
	for rows.Next() {
		rec, seq, err := scanChange(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, rec)
		cursor = seq
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating changes: %w", err)
	}

	return changes, cursor, nil
}

// EntityChecksums returns checksums of live entities of one type
func (s *Storage) EntityChecksums(ctx context.Context, userID, entityType string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, checksum
		FROM entities
		WHERE user_id = ? AND entity_type = ? AND operation != ?
	`, userID, entityType, string(models.OperationDelete))
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	checksums := make(map[string]string)
	for rows.Next() {
		var id, checksum string
		if err := rows.Scan(&id, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		checksums[id] = checksum
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return checksums, nil
}

// currentEntity возвращает текущее состояние сущности в виде записи без payload,
// достаточной для сравнения по правилу newest
func currentEntity(ctx context.Context, tx *sql.Tx, userID, entityType, entityID string) (*models.ChangeRecord, error) {
	current := &models.ChangeRecord{EntityType: entityType, EntityID: entityID}
	var op string

	err := tx.QueryRowContext(ctx, `
		SELECT change_id, operation, checksum, timestamp, origin_device
		FROM entities
		WHERE user_id = ? AND entity_type = ? AND entity_id = ?
	`, userID, entityType, entityID).Scan(
		&current.ID,
		&op,
		&current.Checksum,
		&current.Timestamp,
		&current.OriginDevice,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity state: %w", err)
	}

	current.Operation = models.Operation(op)
	return current, nil
}

// rowScanner общий интерфейс для *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (*models.ChangeRecord, int64, error) {
	rec := &models.ChangeRecord{}
	var (
		seq     int64
		op      string
		payload []byte
	)

	err := row.Scan(
		&seq,
		&rec.ID,
		&rec.EntityType,
		&rec.EntityID,
		&op,
		&payload,
		&rec.Checksum,
		&rec.Timestamp,
		&rec.OriginDevice,
	)
	if err != nil {
		return nil, 0, err
	}

	rec.Operation = models.Operation(op)
	if len(payload) > 0 {
		rec.Payload = json.RawMessage(payload)
	}

	return rec, seq, nil
}
