package dkaudit

import "context"

// AuditRecordStore abstracts the four logical audit tables. The engines only
// read and upsert through this interface and hold no cross-row locks; every
// write keyed by audit identifier must be an upsert so overlapping runs stay
// idempotent.
//
// Implementations: internal/storage/sqlite for persistence, MemoryStore in
// this package for tests.
type AuditRecordStore interface {
	// InsertCalculateRecord appends one initial episode submission.
	InsertCalculateRecord(ctx context.Context, rec CalculateRecord) error

	// InsertUpdateRecord appends one follow-up submission and returns its
	// insertion-ordered identifier.
	InsertUpdateRecord(ctx context.Context, rec UpdateRecord) (int64, error)

	// FetchCalculateRecords returns every calculate row matching the filter.
	FetchCalculateRecords(ctx context.Context, filter Filter) ([]CalculateRecord, error)

	// FetchLatestUpdates returns, for each audit identifier matching the
	// filter that has at least one update, the update with the maximum
	// server timestamp; ties break by insertion order (highest ID).
	FetchLatestUpdates(ctx context.Context, filter Filter) ([]UpdateRecord, error)

	// UpsertDecryptedRecord writes one working-table row keyed by auditID.
	UpsertDecryptedRecord(ctx context.Context, rec DecryptedRecord) error

	// FetchDecryptedRecords returns the working table, excluding test
	// episodes unless includeTests is set.
	FetchDecryptedRecords(ctx context.Context, includeTests bool) ([]DecryptedRecord, error)

	// AppendStreamlinedRecord writes one export row, upserting on auditID.
	AppendStreamlinedRecord(ctx context.Context, rec StreamlinedRecord) error

	// FetchStreamlinedRecords returns the export table.
	FetchStreamlinedRecords(ctx context.Context) ([]StreamlinedRecord, error)

	// ResetStreamlined clears the export table so a full streamlining run
	// converges even when a previously emitted row has since been
	// deduplicated away.
	ResetStreamlined(ctx context.Context) error
}
