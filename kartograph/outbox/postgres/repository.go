package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/outbox"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
)

const maxSQLIdentifierLength = 63

// DefaultTableName and DefaultChannel name the outbox table and its notify
// channel when no override is configured. The embedded migrations create
// exactly these objects.
const (
	DefaultTableName = "outbox_entries"
	DefaultChannel   = "outbox_appended"
)

var (
	ErrCodecRequired            = errors.New("outbox codec is required")
	ErrQuerierRequired          = errors.New("postgres querier is required")
	ErrRepositoryNotInitialized = errors.New("outbox repository not initialized")
	ErrIDRequired               = errors.New("id is required")
	ErrAggregateTypeRequired    = errors.New("aggregate type is required")
	ErrAggregateIDRequired      = errors.New("aggregate id is required")
	ErrCauseRequired            = errors.New("failure cause is required")
	ErrCutoffRequired           = errors.New("cutoff time is required")
	ErrLimitMustBePositive      = errors.New("limit must be greater than zero")
	ErrMaxRetriesMustBePositive = errors.New("maxRetries must be greater than zero")
	ErrStateTransitionConflict  = errors.New("outbox entry state transition conflict")
	ErrInvalidIdentifier        = errors.New("invalid sql identifier")

	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	outboxColumns = "id, aggregate_type, aggregate_id, event_type, payload, occurred_at, created_at, processed_at, retry_count, last_error, failed_at"
)

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for sanitized failure logging.
func WithLogger(logger log.Logger) Option {
	return func(repo *Repository) {
		if nilcheck.Interface(logger) {
			return
		}

		repo.logger = logger
	}
}

// WithTableName overrides the outbox table. Schema-qualified names are
// accepted ("relay.outbox_entries"); each segment is validated.
func WithTableName(tableName string) Option {
	return func(repo *Repository) {
		repo.tableName = tableName
	}
}

// Repository persists outbox entries in PostgreSQL. It satisfies
// outbox.Repository and runs every statement on the Querier it is handed.
type Repository struct {
	codec     *outbox.Codec
	logger    log.Logger
	tableName string
}

var _ outbox.Repository = (*Repository)(nil)

// NewRepository creates a PostgreSQL outbox repository. The codec serializes
// events on Append and is required.
func NewRepository(codec *outbox.Codec, opts ...Option) (*Repository, error) {
	if codec == nil {
		return nil, ErrCodecRequired
	}

	repo := &Repository{
		codec:     codec,
		logger:    log.NewNop(),
		tableName: DefaultTableName,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	if nilcheck.Interface(repo.logger) {
		repo.logger = log.NewNop()
	}

	repo.tableName = strings.TrimSpace(repo.tableName)
	if repo.tableName == "" {
		repo.tableName = DefaultTableName
	}

	if err := validateIdentifierPath(repo.tableName); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	return repo, nil
}

// Append serializes the event through the codec and inserts a pending entry
// on the caller's Querier. It never commits: the insert becomes visible when
// the surrounding transaction does.
func (repo *Repository) Append(
	ctx context.Context,
	q outbox.Querier,
	event outbox.Event,
	aggregateType, aggregateID string,
) (*outbox.Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return nil, ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return nil, ErrQuerierRequired
	}

	if nilcheck.Interface(event) {
		return nil, outbox.ErrEventRequired
	}

	aggregateType = strings.TrimSpace(aggregateType)
	if aggregateType == "" {
		return nil, ErrAggregateTypeRequired
	}

	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, ErrAggregateIDRequired
	}

	payload, err := repo.codec.Encode(event)
	if err != nil {
		return nil, fmt.Errorf("encoding outbox payload: %w", err)
	}

	id, err := kartograph.GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("generating outbox entry id: %w", err)
	}

	entry := &outbox.Entry{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     strings.TrimSpace(event.EventType()),
		Payload:       payload,
		OccurredAt:    normalizedOccurredAt(event, time.Now().UTC()),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.append_outbox_entry")
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "INSERT INTO " + table +
		" (id, aggregate_type, aggregate_id, event_type, payload, occurred_at)" +
		" VALUES ($1, $2, $3, $4, $5, $6) RETURNING " + outboxColumns

	row := q.QueryRowContext(ctx, query,
		entry.ID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		[]byte(entry.Payload),
		entry.OccurredAt,
	)

	stored, err := scanEntry(row)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to append outbox entry", err)
		logSanitizedError(repo.logger, ctx, "failed to append outbox entry", err)

		return nil, fmt.Errorf("appending outbox entry: %w", err)
	}

	return stored, nil
}

// FetchUnprocessed returns pending entries oldest-first, locking each
// returned row with FOR UPDATE SKIP LOCKED. The caller must pass an open
// transaction; the locks release when it ends.
func (repo *Repository) FetchUnprocessed(ctx context.Context, q outbox.Querier, limit int) ([]*outbox.Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return nil, ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return nil, ErrQuerierRequired
	}

	if limit <= 0 {
		return nil, ErrLimitMustBePositive
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.fetch_outbox_unprocessed")
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "SELECT " + outboxColumns + " FROM " + table +
		" WHERE processed_at IS NULL AND failed_at IS NULL" +
		" ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED"

	entries, err := queryEntries(ctx, q, query, []any{limit}, limit)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to fetch unprocessed outbox entries", err)
		logSanitizedError(repo.logger, ctx, "failed to fetch unprocessed outbox entries", err)

		return nil, fmt.Errorf("fetching unprocessed outbox entries: %w", err)
	}

	return entries, nil
}

// MarkProcessed stamps processed_at on a pending entry. A second call for
// the same id affects no rows and returns no error.
func (repo *Repository) MarkProcessed(ctx context.Context, q outbox.Querier, id uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return ErrQuerierRequired
	}

	if id == uuid.Nil {
		return ErrIDRequired
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.mark_outbox_processed")
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "UPDATE " + table + " SET processed_at = now()" +
		" WHERE id = $1 AND processed_at IS NULL AND failed_at IS NULL"

	if _, err := q.ExecContext(ctx, query, id); err != nil {
		telemetry.HandleSpanError(&span, "failed to mark outbox entry processed", err)
		logSanitizedError(repo.logger, ctx, "failed to mark outbox entry processed", err)

		return fmt.Errorf("marking outbox entry processed: %w", err)
	}

	return nil
}

// RecordFailure increments retry_count and stores the sanitized cause. When
// the new count reaches maxRetries the same statement sets failed_at,
// dead-lettering the entry; dlq reports that transition. Recording a failure
// against an entry that is no longer pending returns
// ErrStateTransitionConflict.
func (repo *Repository) RecordFailure(
	ctx context.Context,
	q outbox.Querier,
	id uuid.UUID,
	cause error,
	maxRetries int,
) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return false, ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return false, ErrQuerierRequired
	}

	if id == uuid.Nil {
		return false, ErrIDRequired
	}

	if cause == nil {
		return false, ErrCauseRequired
	}

	if maxRetries <= 0 {
		return false, ErrMaxRetriesMustBePositive
	}

	lastError := outbox.SanitizeErrorMessage(cause.Error())

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.record_outbox_failure")
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "UPDATE " + table + " SET" +
		" retry_count = retry_count + 1," +
		" last_error = $1," +
		" failed_at = CASE WHEN retry_count + 1 >= $2 THEN now() ELSE NULL END" +
		" WHERE id = $3 AND processed_at IS NULL AND failed_at IS NULL" +
		" RETURNING failed_at IS NOT NULL"

	var deadLettered bool

	err := q.QueryRowContext(ctx, query, lastError, maxRetries, id).Scan(&deadLettered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrStateTransitionConflict
		}

		telemetry.HandleSpanError(&span, "failed to record outbox entry failure", err)
		logSanitizedError(repo.logger, ctx, "failed to record outbox entry failure", err)

		return false, fmt.Errorf("recording outbox entry failure: %w", err)
	}

	return deadLettered, nil
}

// ReplayFailed clears the dead-letter state so the entry becomes pending
// again. Replaying an entry that is not dead-lettered returns
// ErrStateTransitionConflict.
func (repo *Repository) ReplayFailed(ctx context.Context, q outbox.Querier, id uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return ErrQuerierRequired
	}

	if id == uuid.Nil {
		return ErrIDRequired
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.replay_outbox_failed")
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "UPDATE " + table + " SET" +
		" failed_at = NULL, last_error = NULL, retry_count = 0" +
		" WHERE id = $1 AND failed_at IS NOT NULL"

	result, err := q.ExecContext(ctx, query, id)
	if err == nil {
		err = ensureRowsAffected(result)
	}

	if err != nil {
		telemetry.HandleSpanError(&span, "failed to replay outbox entry", err)
		logSanitizedError(repo.logger, ctx, "failed to replay outbox entry", err)

		return fmt.Errorf("replaying outbox entry: %w", err)
	}

	return nil
}

// CountPending reports how many entries await processing.
func (repo *Repository) CountPending(ctx context.Context, q outbox.Querier) (int64, error) {
	return repo.countWhere(ctx, q,
		"processed_at IS NULL AND failed_at IS NULL",
		"postgres.count_outbox_pending",
		"counting pending outbox entries")
}

// CountDeadLettered reports how many entries sit in the dead-letter state.
func (repo *Repository) CountDeadLettered(ctx context.Context, q outbox.Querier) (int64, error) {
	return repo.countWhere(ctx, q,
		"failed_at IS NOT NULL",
		"postgres.count_outbox_dead_lettered",
		"counting dead-lettered outbox entries")
}

func (repo *Repository) countWhere(
	ctx context.Context,
	q outbox.Querier,
	predicate, spanName, action string,
) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return 0, ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return 0, ErrQuerierRequired
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "SELECT COUNT(*) FROM " + table + " WHERE " + predicate

	var count int64

	if err := q.QueryRowContext(ctx, query).Scan(&count); err != nil {
		telemetry.HandleSpanError(&span, "failed "+action, err)
		logSanitizedError(repo.logger, ctx, "failed "+action, err)

		return 0, fmt.Errorf("%s: %w", action, err)
	}

	return count, nil
}

// PurgeProcessedBefore deletes processed entries older than cutoff and
// reports how many rows were removed. Pending and dead-lettered entries are
// never purged.
func (repo *Repository) PurgeProcessedBefore(ctx context.Context, q outbox.Querier, cutoff time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !repo.initialized() {
		return 0, ErrRepositoryNotInitialized
	}

	if nilcheck.Interface(q) {
		return 0, ErrQuerierRequired
	}

	if cutoff.IsZero() {
		return 0, ErrCutoffRequired
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.purge_outbox_processed")
	defer span.End()

	table := quoteIdentifierPath(repo.tableName)
	query := "DELETE FROM " + table +
		" WHERE processed_at IS NOT NULL AND processed_at < $1"

	result, err := q.ExecContext(ctx, query, cutoff)
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to purge processed outbox entries", err)
		logSanitizedError(repo.logger, ctx, "failed to purge processed outbox entries", err)

		return 0, fmt.Errorf("purging processed outbox entries: %w", err)
	}

	purged, err := rowsAffected(result)
	if err != nil {
		return 0, fmt.Errorf("purging processed outbox entries: %w", err)
	}

	return purged, nil
}

// TableName reports the validated table this repository operates on.
func (repo *Repository) TableName() string {
	if repo == nil {
		return ""
	}

	return repo.tableName
}

func (repo *Repository) initialized() bool {
	return repo != nil && repo.codec != nil
}

func normalizedOccurredAt(event outbox.Event, now time.Time) time.Time {
	occurredAt := event.EventOccurredAt()
	if occurredAt.IsZero() {
		return now
	}

	return occurredAt.UTC()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*outbox.Entry, error) {
	var entry outbox.Entry

	var payload []byte

	var processedAt, failedAt sql.NullTime

	var lastError sql.NullString

	if err := scanner.Scan(
		&entry.ID,
		&entry.AggregateType,
		&entry.AggregateID,
		&entry.EventType,
		&payload,
		&entry.OccurredAt,
		&entry.CreatedAt,
		&processedAt,
		&entry.RetryCount,
		&lastError,
		&failedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning outbox entry: %w", err)
	}

	entry.Payload = json.RawMessage(payload)

	if processedAt.Valid {
		stamp := processedAt.Time
		entry.ProcessedAt = &stamp
	}

	if lastError.Valid {
		entry.LastError = lastError.String
	}

	if failedAt.Valid {
		stamp := failedAt.Time
		entry.FailedAt = &stamp
	}

	return &entry, nil
}

func queryEntries(ctx context.Context, q outbox.Querier, query string, args []any, capacity int) ([]*outbox.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	if capacity < 0 {
		capacity = 0
	}

	entries := make([]*outbox.Entry, 0, capacity)

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return entries, nil
}

func validateIdentifier(identifier string) error {
	if len(identifier) > maxSQLIdentifierLength {
		return ErrInvalidIdentifier
	}

	if !identifierPattern.MatchString(identifier) {
		return ErrInvalidIdentifier
	}

	return nil
}

func validateIdentifierPath(path string) error {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return ErrInvalidIdentifier
	}

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if err := validateIdentifier(trimmed); err != nil {
			return err
		}
	}

	return nil
}

func quoteIdentifierPath(path string) string {
	parts := strings.Split(path, ".")
	quoted := make([]string, 0, len(parts))

	for _, part := range parts {
		quoted = append(quoted, quoteIdentifier(strings.TrimSpace(part)))
	}

	return strings.Join(quoted, ".")
}

func quoteIdentifier(identifier string) string {
	identifier = strings.ReplaceAll(identifier, "\x00", "")

	return "\"" + strings.ReplaceAll(identifier, "\"", "\"\"") + "\""
}

func logSanitizedError(logger log.Logger, ctx context.Context, message string, err error) {
	if nilcheck.Interface(logger) || err == nil {
		return
	}

	logger.Log(ctx, log.LevelError, message, log.String("error", outbox.SanitizeErrorMessage(err.Error())))
}

func ensureRowsAffected(result sql.Result) error {
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrStateTransitionConflict
	}

	return nil
}

func rowsAffected(result sql.Result) (int64, error) {
	if result == nil {
		return 0, ErrStateTransitionConflict
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return rows, nil
}
