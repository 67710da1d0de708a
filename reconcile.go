package dkaudit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
)

// ReconciliationEngine rebuilds the plaintext working table from the two
// encrypted record streams. Phase 1 decrypts calculate rows and assigns
// patient numbers; phase 2 merges the latest update per audit identifier.
// Decryption failures skip the affected row only; store failures abort the
// run.
type ReconciliationEngine struct {
	store    AuditRecordStore
	cipher   *EnvelopeCipher
	assigner *PatientNumberAssigner
	logger   *slog.Logger
}

// NewReconciliationEngine wires an engine for one run. The patient-number
// assignment is run-scoped, so a fresh engine (or ResetAssigner) is needed
// per run. A nil logger falls back to slog.Default.
func NewReconciliationEngine(store AuditRecordStore, cipher *EnvelopeCipher, logger *slog.Logger) *ReconciliationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationEngine{
		store:    store,
		cipher:   cipher,
		assigner: NewPatientNumberAssigner(),
		logger:   logger.With("component", "reconcile"),
	}
}

// ResetAssigner discards the patient-number mapping so the engine can serve
// another run with fresh numbering.
func (e *ReconciliationEngine) ResetAssigner() {
	e.assigner = NewPatientNumberAssigner()
}

// ReconcileReport summarizes one reconciliation run. Failures holds the
// per-record skip reasons keyed by audit identifier; a populated map with a
// nil run error means the run completed with skips.
type ReconcileReport struct {
	RunID     string
	Processed int
	Skipped   int
	Merged    int
	Patients  int
	Failures  errsx.Map
}

// Run executes phase 1 then phase 2 over records admitted by the filter.
func (e *ReconciliationEngine) Run(ctx context.Context, filter Filter) (*ReconcileReport, error) {
	report := &ReconcileReport{RunID: uuid.NewString()}

	rows, err := e.reconcilePhase1(ctx, filter, report)
	if err != nil {
		return nil, err
	}
	if err := e.reconcilePhase2(ctx, filter, rows, report); err != nil {
		return nil, err
	}
	report.Patients = e.assigner.Count()

	e.logger.Info("reconciliation complete",
		"run_id", report.RunID,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"merged", report.Merged,
		"patients", report.Patients,
	)
	return report, nil
}

// reconcilePhase1 decrypts every matching calculate record into the working
// table and returns the rows it wrote, keyed by audit identifier, for phase 2
// to merge into.
func (e *ReconciliationEngine) reconcilePhase1(ctx context.Context, filter Filter, report *ReconcileReport) (map[string]*DecryptedRecord, error) {
	records, err := e.store.FetchCalculateRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch calculate records: %w", err)
	}

	rows := make(map[string]*DecryptedRecord, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var payload CalculatePayload
		if err := e.cipher.DecryptPayload(rec.Payload, &payload); err != nil {
			e.logger.Warn("skipping calculate record",
				"audit_id", rec.AuditID, "reason", err)
			report.Failures.Set(rec.AuditID, NewDecryptError(rec.AuditID, err))
			report.Skipped++
			continue
		}

		row := &DecryptedRecord{
			AuditID:        rec.AuditID,
			PatientNumber:  e.assigner.Assign(rec.PatientHash),
			EpisodeType:    rec.EpisodeType,
			Region:         rec.Region,
			Centre:         rec.Centre,
			ServerDatetime: rec.ServerDatetime,
			Calculate:      payload,
		}
		if err := e.store.UpsertDecryptedRecord(ctx, *row); err != nil {
			return nil, fmt.Errorf("upsert decrypted record %s: %w", rec.AuditID, err)
		}
		rows[rec.AuditID] = row
		report.Processed++
	}
	return rows, nil
}

// reconcilePhase2 decrypts the latest update per audit identifier and merges
// its fields into the matching working-table row. Updates for audit
// identifiers with no decryptable calculate row are left for a later run.
func (e *ReconciliationEngine) reconcilePhase2(ctx context.Context, filter Filter, rows map[string]*DecryptedRecord, report *ReconcileReport) error {
	updates, err := e.store.FetchLatestUpdates(ctx, filter)
	if err != nil {
		return fmt.Errorf("fetch latest updates: %w", err)
	}

	for _, upd := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, ok := rows[upd.AuditID]
		if !ok {
			continue
		}
		var payload UpdatePayload
		if err := e.cipher.DecryptPayload(upd.Payload, &payload); err != nil {
			e.logger.Warn("skipping update record",
				"audit_id", upd.AuditID, "update_id", upd.ID, "reason", err)
			report.Failures.Set(fmt.Sprintf("%s/update", upd.AuditID), NewDecryptError(upd.AuditID, err))
			report.Skipped++
			continue
		}

		mergeUpdate(row, upd, payload)
		if err := e.store.UpsertDecryptedRecord(ctx, *row); err != nil {
			return fmt.Errorf("upsert merged record %s: %w", upd.AuditID, err)
		}
		report.Merged++
	}
	return nil
}

// mergeUpdate folds the latest follow-up into the working row. An update
// carrying no end timestamp confirms the episode ended as recorded at the
// start, so the start timestamp stands in for it.
func mergeUpdate(row *DecryptedRecord, rec UpdateRecord, payload UpdatePayload) {
	payload.ProtocolEndDatetime = pick(payload.ProtocolEndDatetime, row.Calculate.ProtocolStartDatetime)
	row.Update = payload

	id := rec.ID
	row.AuditTableID = &id
	serverDatetime := rec.ServerDatetime
	row.UpdateDatetime = &serverDatetime
	row.UpdateUserAgent = optionalString(rec.ClientUserAgent)
	row.UpdateClientIP = optionalString(rec.ClientIP)
	row.UpdateAppVersion = optionalString(rec.AppVersion)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
