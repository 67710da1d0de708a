package dkaudit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// dedupWindow is the span within which multiple episodes for one patient are
// treated as the same clinical event recorded more than once (device retry,
// staff correction). Episodes further apart are distinct presentations and
// must not be collapsed. The boundary is inclusive.
const dedupWindow = 24 * time.Hour

// StreamliningEngine turns the plaintext working table into the deduplicated
// export table. It consumes reconciliation's output and touches no envelopes.
type StreamliningEngine struct {
	store  AuditRecordStore
	logger *slog.Logger
}

// NewStreamliningEngine wires an engine. A nil logger falls back to
// slog.Default.
func NewStreamliningEngine(store AuditRecordStore, logger *slog.Logger) *StreamliningEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamliningEngine{
		store:  store,
		logger: logger.With("component", "streamline"),
	}
}

// StreamlineReport summarizes one streamlining run.
type StreamlineReport struct {
	RunID        string
	Emitted      int
	Deduplicated int
	Groups       int
}

// Run reads the working table, deduplicates multi-episode patients and writes
// the export table. includeTests admits non-production episodes into the
// export; by default they are filtered at the store.
func (e *StreamliningEngine) Run(ctx context.Context, includeTests bool) (*StreamlineReport, error) {
	report := &StreamlineReport{RunID: uuid.NewString()}

	records, err := e.store.FetchDecryptedRecords(ctx, includeTests)
	if err != nil {
		return nil, fmt.Errorf("fetch decrypted records: %w", err)
	}
	if err := e.store.ResetStreamlined(ctx); err != nil {
		return nil, fmt.Errorf("reset streamlined table: %w", err)
	}

	grouped := make(map[int][]DecryptedRecord)
	var ungroupable []DecryptedRecord
	for _, r := range records {
		if r.PatientNumber == nil {
			ungroupable = append(ungroupable, r)
			continue
		}
		grouped[*r.PatientNumber] = append(grouped[*r.PatientNumber], r)
	}
	report.Groups = len(grouped)

	numbers := make([]int, 0, len(grouped))
	for n := range grouped {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.emitGroup(ctx, grouped[n], report); err != nil {
			return nil, err
		}
	}
	for _, r := range ungroupable {
		if err := e.emit(ctx, toStreamlined(r, nil), report); err != nil {
			return nil, err
		}
	}

	e.logger.Info("streamlining complete",
		"run_id", report.RunID,
		"emitted", report.Emitted,
		"deduplicated", report.Deduplicated,
		"groups", report.Groups,
	)
	return report, nil
}

// emitGroup writes the export rows for one patient's episodes. Episodes
// within the deduplication window collapse to the top-ranked record; episodes
// spanning more than the window are genuinely distinct and all emitted.
func (e *StreamliningEngine) emitGroup(ctx context.Context, group []DecryptedRecord, report *StreamlineReport) error {
	if len(group) == 1 || !withinWindow(group) {
		for _, r := range group {
			if err := e.emit(ctx, toStreamlined(r, nil), report); err != nil {
				return err
			}
		}
		return nil
	}

	sort.SliceStable(group, func(i, j int) bool {
		return episodeRank(group[i]).outranks(episodeRank(group[j]))
	})
	winner := group[0]
	absorbed := make([]string, 0, len(group)-1)
	for _, r := range group[1:] {
		absorbed = append(absorbed, r.AuditID)
	}
	report.Deduplicated += len(absorbed)
	return e.emit(ctx, toStreamlined(winner, absorbed), report)
}

func (e *StreamliningEngine) emit(ctx context.Context, rec StreamlinedRecord, report *StreamlineReport) error {
	if err := e.store.AppendStreamlinedRecord(ctx, rec); err != nil {
		return fmt.Errorf("append streamlined record %s: %w", rec.AuditID, err)
	}
	report.Emitted++
	return nil
}

// withinWindow reports whether every episode start in the group falls inside
// the deduplication window. Groups with fewer than two parseable start
// timestamps count as within the window; that fallback mirrors the upstream
// audit behaviour and stands as a policy choice awaiting confirmation from
// the clinical data owners.
func withinWindow(group []DecryptedRecord) bool {
	var earliest, latest time.Time
	parsed := 0
	for _, r := range group {
		t, ok := parseClientTime(r.Calculate.ProtocolStartDatetime)
		if !ok {
			continue
		}
		if parsed == 0 || t.Before(earliest) {
			earliest = t
		}
		if parsed == 0 || t.After(latest) {
			latest = t
		}
		parsed++
	}
	if parsed < 2 {
		return true
	}
	return latest.Sub(earliest) <= dedupWindow
}

// parseClientTime parses a browser-supplied RFC 3339 timestamp.
func parseClientTime(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// gradeOf applies the provenance grading policy to one working-table row.
func gradeOf(r DecryptedRecord) string {
	switch {
	case r.PatientNumber == nil:
		return GradeC
	case r.AuditTableID != nil:
		return GradeA
	default:
		return GradeB
	}
}

// toStreamlined builds the export row for one record, applying update-wins
// field precedence via the shared merge.
func toStreamlined(r DecryptedRecord, absorbed []string) StreamlinedRecord {
	merged := mergeClinicalFields(r.Calculate, r.Update)
	return StreamlinedRecord{
		DataGrade:     gradeOf(r),
		PatientNumber: r.PatientNumber,
		AuditID:       r.AuditID,

		ProtocolStartDatetime: merged.ProtocolStartDatetime,
		ProtocolEndDatetime:   r.Update.ProtocolEndDatetime,
		PatientAge:            merged.PatientAge,
		PatientSex:            merged.PatientSex,
		PH:                    merged.PH,
		Bicarbonate:           merged.Bicarbonate,
		Glucose:               merged.Glucose,
		Ketones:               merged.Ketones,
		ShockPresent:          merged.ShockPresent,
		InsulinRate:           merged.InsulinRate,
		PreExistingDiabetes:   merged.PreExistingDiabetes,
		InsulinDeliveryMethod: merged.InsulinDeliveryMethod,
		EthnicGroup:           merged.EthnicGroup,
		EthnicSubgroup:        merged.EthnicSubgroup,
		PreventableFactors:    merged.PreventableFactors,
		IMDDecile:             merged.IMDDecile,

		CerebralOedemaConcern:   r.Update.CerebralOedemaConcern,
		CerebralOedemaImaging:   r.Update.CerebralOedemaImaging,
		CerebralOedemaTreatment: r.Update.CerebralOedemaTreatment,

		Region:       r.Region,
		Centre:       r.Centre,
		Calculations: merged.Calculations,

		DeduplicatedAuditIDs: absorbed,
	}
}
