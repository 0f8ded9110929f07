package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/entities"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/postgres"
	apperrors "github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/errors"
)

const queueEntriesTable = "queue_entries"

// pqUniqueViolation is the SQLSTATE for unique_violation
const pqUniqueViolation = "23505"

var queueEntryColumns = []interface{}{
	"id", "facility_id", "patient_id", "priority_tier", "specialty", "status",
	"check_in_time", "start_time", "end_time", "position", "estimated_wait_minutes",
	"notes", "created_at", "updated_at",
}

// executor is satisfied by both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// QueueEntryAdapter implements the QueueRepository interface on PostgreSQL
type QueueEntryAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	exec   executor
	tx     *sql.Tx
}

// NewQueueEntryAdapter creates a new queue entry adapter
func NewQueueEntryAdapter(client *postgres.Client) *QueueEntryAdapter {
	return &QueueEntryAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		exec:   client.DB(),
	}
}

// WithinTransaction runs fn with a repository bound to a single transaction
func (a *QueueEntryAdapter) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repo repositories.QueueRepository) error) error {
	if a.tx != nil {
		return fn(ctx, a)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewStoreUnavailableError("failed to begin transaction", err)
	}

	txAdapter := &QueueEntryAdapter{client: a.client, db: a.db, exec: tx, tx: tx}
	if err := fn(ctx, txAdapter); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreUnavailableError("failed to commit transaction", err)
	}
	return nil
}

// Create creates a new queue entry
func (a *QueueEntryAdapter) Create(ctx context.Context, entry *entities.QueueEntry) error {
	record := goqu.Record{
		"id":                     entry.ID,
		"facility_id":            entry.FacilityID,
		"patient_id":             entry.PatientID,
		"priority_tier":          string(entry.PriorityTier),
		"specialty":              nullString(entry.Specialty),
		"status":                 string(entry.Status),
		"check_in_time":          entry.CheckInTime,
		"start_time":             nullTime(entry.StartTime),
		"end_time":               nullTime(entry.EndTime),
		"position":               entry.Position,
		"estimated_wait_minutes": entry.EstimatedWaitMinutes,
		"notes":                  nullString(entry.Notes),
		"created_at":             entry.CreatedAt,
		"updated_at":             entry.UpdatedAt,
	}

	query, args, err := a.db.Insert(queueEntriesTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.exec.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return apperrors.NewConflictError(fmt.Sprintf("queue entry with id %s already exists", entry.ID), err)
		}
		return apperrors.NewStoreUnavailableError("failed to create queue entry", err)
	}

	return nil
}

// GetByID retrieves a queue entry by ID
func (a *QueueEntryAdapter) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	query, args, err := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanQueueEntry(a.exec.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("failed to get queue entry", err)
	}

	return entry, nil
}

// ListWaiting retrieves every waiting entry of a facility
func (a *QueueEntryAdapter) ListWaiting(ctx context.Context, facilityID string) ([]*entities.QueueEntry, error) {
	ds := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(goqu.Ex{
			"facility_id": facilityID,
			"status":      string(entities.QueueStatusWaiting),
		})
	if a.tx != nil {
		ds = ds.ForUpdate(goqu.Wait)
	}
	return a.list(ctx, ds, "failed to list waiting entries")
}

// ListCompletedToday retrieves completed entries whose end time falls on asOf's day
func (a *QueueEntryAdapter) ListCompletedToday(ctx context.Context, facilityID string, asOf time.Time) ([]*entities.QueueEntry, error) {
	start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	end := start.AddDate(0, 0, 1)

	ds := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(
			goqu.Ex{
				"facility_id": facilityID,
				"status":      string(entities.QueueStatusCompleted),
			},
			goqu.C("end_time").Gte(start),
			goqu.C("end_time").Lt(end),
		)
	return a.list(ctx, ds, "failed to list completed entries")
}

// ListActiveByPatients retrieves waiting and in-progress entries for the given patients
func (a *QueueEntryAdapter) ListActiveByPatients(ctx context.Context, patientIDs []string) ([]*entities.QueueEntry, error) {
	if len(patientIDs) == 0 {
		return []*entities.QueueEntry{}, nil
	}

	ds := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(goqu.Ex{
			"patient_id": patientIDs,
			"status": []string{
				string(entities.QueueStatusWaiting),
				string(entities.QueueStatusInProgress),
			},
		})
	return a.list(ctx, ds, "failed to list active entries")
}

// ListWaitingCheckedInBefore retrieves waiting entries that checked in before cutoff
func (a *QueueEntryAdapter) ListWaitingCheckedInBefore(ctx context.Context, cutoff time.Time) ([]*entities.QueueEntry, error) {
	ds := a.db.Select(queueEntryColumns...).
		From(queueEntriesTable).
		Where(
			goqu.Ex{"status": string(entities.QueueStatusWaiting)},
			goqu.C("check_in_time").Lt(cutoff),
		).
		Order(goqu.C("check_in_time").Asc())
	return a.list(ctx, ds, "failed to list overdue entries")
}

func (a *QueueEntryAdapter) list(ctx context.Context, ds *goqu.SelectDataset, failure string) ([]*entities.QueueEntry, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(failure, err)
	}
	defer rows.Close()

	entries := make([]*entities.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError("failed to scan queue entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(failure, err)
	}

	return entries, nil
}

// Update updates a queue entry
func (a *QueueEntryAdapter) Update(ctx context.Context, entry *entities.QueueEntry) error {
	record := goqu.Record{
		"priority_tier":          string(entry.PriorityTier),
		"specialty":              nullString(entry.Specialty),
		"status":                 string(entry.Status),
		"start_time":             nullTime(entry.StartTime),
		"end_time":               nullTime(entry.EndTime),
		"position":               entry.Position,
		"estimated_wait_minutes": entry.EstimatedWaitMinutes,
		"notes":                  nullString(entry.Notes),
		"updated_at":             entry.UpdatedAt,
	}
	return a.update(ctx, a.exec, entry.ID, record, "failed to update queue entry")
}

// BatchUpdate persists positions, estimated waits and timestamps of all entries
// in one transaction
func (a *QueueEntryAdapter) BatchUpdate(ctx context.Context, entries []*entities.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if a.tx != nil {
		return a.batchUpdate(ctx, a.tx, entries)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewStoreUnavailableError("failed to begin transaction", err)
	}
	if err := a.batchUpdate(ctx, tx, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreUnavailableError("failed to commit batch update", err)
	}
	return nil
}

func (a *QueueEntryAdapter) batchUpdate(ctx context.Context, exec executor, entries []*entities.QueueEntry) error {
	for _, entry := range entries {
		record := goqu.Record{
			"position":               entry.Position,
			"estimated_wait_minutes": entry.EstimatedWaitMinutes,
			"start_time":             nullTime(entry.StartTime),
			"end_time":               nullTime(entry.EndTime),
			"updated_at":             entry.UpdatedAt,
		}
		if err := a.update(ctx, exec, entry.ID, record, "failed to batch update queue entries"); err != nil {
			return err
		}
	}
	return nil
}

func (a *QueueEntryAdapter) update(ctx context.Context, exec executor, id string, record goqu.Record, failure string) error {
	query, args, err := a.db.Update(queueEntriesTable).
		Set(record).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStoreUnavailableError(failure, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewStoreUnavailableError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("queue entry with id %s not found", id))
	}

	return nil
}

// Delete hard-deletes a queue entry
func (a *QueueEntryAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := a.db.Delete(queueEntriesTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStoreUnavailableError("failed to delete queue entry", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewStoreUnavailableError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("queue entry with id %s not found", id))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueEntry(row rowScanner) (*entities.QueueEntry, error) {
	entry := &entities.QueueEntry{}
	var specialty, notes sql.NullString
	var startTime, endTime sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.FacilityID,
		&entry.PatientID,
		&entry.PriorityTier,
		&specialty,
		&entry.Status,
		&entry.CheckInTime,
		&startTime,
		&endTime,
		&entry.Position,
		&entry.EstimatedWaitMinutes,
		&notes,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Specialty = specialty.String
	entry.Notes = notes.String
	if startTime.Valid {
		entry.StartTime = &startTime.Time
	}
	if endTime.Valid {
		entry.EndTime = &endTime.Time
	}

	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
