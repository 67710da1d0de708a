// Package sqlite implements the AuditRecordStore on SQLite. One store
// instance is bound to a table set (live or development); all writes keyed by
// audit identifier are upserts so repeated runs converge.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openclinical/dkaudit"
)

// Store is a SQLite-backed AuditRecordStore.
type Store struct {
	db     *sql.DB
	tables TableSet
}

// Open opens (creating if needed) the audit database at path and ensures the
// schema for the given table set.
func Open(path string, tables TableSet) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", dkaudit.ErrStoreUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", dkaudit.ErrStoreUnavailable, err)
	}
	s := &Store{db: db, tables: tables}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	for _, stmt := range schemaStatements(s.tables) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", dkaudit.ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *Store) InsertCalculateRecord(ctx context.Context, rec dkaudit.CalculateRecord) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			audit_id, episode_type, region, centre,
			client_datetime, server_datetime,
			client_useragent, client_ip, app_version,
			patient_hash, retrospective,
			retrospective_audit_data, retrospective_patient_hash,
			cipher_text, wrapped_key, iv, auth_tag
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.Calculate),
		rec.AuditID, rec.EpisodeType, rec.Region, rec.Centre,
		nullTime(rec.ClientDatetime), formatTime(rec.ServerDatetime),
		rec.ClientUserAgent, rec.ClientIP, rec.AppVersion,
		nullString(rec.PatientHash), rec.Retrospective,
		nullTime(rec.RetrospectiveAuditData), nullTime(rec.RetrospectivePatientHash),
		rec.Payload.CipherText, rec.Payload.WrappedKey, rec.Payload.IV, rec.Payload.AuthTag,
	)
	if err != nil {
		return fmt.Errorf("insert calculate record %s: %w", rec.AuditID, err)
	}
	return nil
}

func (s *Store) FetchCalculateRecords(ctx context.Context, filter dkaudit.Filter) ([]dkaudit.CalculateRecord, error) {
	query := fmt.Sprintf(`
		SELECT audit_id, episode_type, region, centre,
			client_datetime, server_datetime,
			client_useragent, client_ip, app_version,
			patient_hash, retrospective,
			retrospective_audit_data, retrospective_patient_hash,
			cipher_text, wrapped_key, iv, auth_tag
		FROM %s WHERE 1=1`, s.tables.Calculate)
	var args []any
	if filter.AuditID != "" {
		query += " AND audit_id = ?"
		args = append(args, filter.AuditID)
	}
	if filter.Centre != "" {
		query += " AND centre = ?"
		args = append(args, filter.Centre)
	}
	query += " ORDER BY server_datetime, audit_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch calculate records: %w", err)
	}
	defer rows.Close()

	var out []dkaudit.CalculateRecord
	for rows.Next() {
		var (
			rec                        dkaudit.CalculateRecord
			serverDatetime             string
			clientDatetime             sql.NullString
			patientHash                sql.NullString
			retroAuditData, retroPHash sql.NullString
		)
		if err := rows.Scan(
			&rec.AuditID, &rec.EpisodeType, &rec.Region, &rec.Centre,
			&clientDatetime, &serverDatetime,
			&rec.ClientUserAgent, &rec.ClientIP, &rec.AppVersion,
			&patientHash, &rec.Retrospective,
			&retroAuditData, &retroPHash,
			&rec.Payload.CipherText, &rec.Payload.WrappedKey, &rec.Payload.IV, &rec.Payload.AuthTag,
		); err != nil {
			return nil, fmt.Errorf("scan calculate record: %w", err)
		}
		if rec.ServerDatetime, err = parseTime(serverDatetime); err != nil {
			return nil, fmt.Errorf("calculate record %s: %w", rec.AuditID, err)
		}
		if rec.ClientDatetime, err = scanNullTime(clientDatetime); err != nil {
			return nil, fmt.Errorf("calculate record %s: %w", rec.AuditID, err)
		}
		if rec.RetrospectiveAuditData, err = scanNullTime(retroAuditData); err != nil {
			return nil, fmt.Errorf("calculate record %s: %w", rec.AuditID, err)
		}
		if rec.RetrospectivePatientHash, err = scanNullTime(retroPHash); err != nil {
			return nil, fmt.Errorf("calculate record %s: %w", rec.AuditID, err)
		}
		rec.PatientHash = scanNullString(patientHash)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) InsertUpdateRecord(ctx context.Context, rec dkaudit.UpdateRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			audit_id, server_datetime,
			client_useragent, client_ip, app_version,
			cipher_text, wrapped_key, iv, auth_tag
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.Update),
		rec.AuditID, formatTime(rec.ServerDatetime),
		rec.ClientUserAgent, rec.ClientIP, rec.AppVersion,
		rec.Payload.CipherText, rec.Payload.WrappedKey, rec.Payload.IV, rec.Payload.AuthTag,
	)
	if err != nil {
		return 0, fmt.Errorf("insert update record %s: %w", rec.AuditID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert update record %s: %w", rec.AuditID, err)
	}
	return id, nil
}

func (s *Store) FetchLatestUpdates(ctx context.Context, filter dkaudit.Filter) ([]dkaudit.UpdateRecord, error) {
	// One row per audit identifier: the update with the maximum server
	// timestamp, ties broken by insertion order.
	query := fmt.Sprintf(`
		SELECT u.id, u.audit_id, u.server_datetime,
			u.client_useragent, u.client_ip, u.app_version,
			u.cipher_text, u.wrapped_key, u.iv, u.auth_tag
		FROM %[1]s u
		WHERE u.id = (
			SELECT u2.id FROM %[1]s u2
			WHERE u2.audit_id = u.audit_id
			ORDER BY u2.server_datetime DESC, u2.id DESC
			LIMIT 1
		)`, s.tables.Update)
	var args []any
	if filter.AuditID != "" {
		query += " AND u.audit_id = ?"
		args = append(args, filter.AuditID)
	}
	if filter.Centre != "" {
		query += fmt.Sprintf(
			" AND EXISTS (SELECT 1 FROM %s c WHERE c.audit_id = u.audit_id AND c.centre = ?)",
			s.tables.Calculate)
		args = append(args, filter.Centre)
	}
	query += " ORDER BY u.audit_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch latest updates: %w", err)
	}
	defer rows.Close()

	var out []dkaudit.UpdateRecord
	for rows.Next() {
		var (
			rec            dkaudit.UpdateRecord
			serverDatetime string
		)
		if err := rows.Scan(
			&rec.ID, &rec.AuditID, &serverDatetime,
			&rec.ClientUserAgent, &rec.ClientIP, &rec.AppVersion,
			&rec.Payload.CipherText, &rec.Payload.WrappedKey, &rec.Payload.IV, &rec.Payload.AuthTag,
		); err != nil {
			return nil, fmt.Errorf("scan update record: %w", err)
		}
		if rec.ServerDatetime, err = parseTime(serverDatetime); err != nil {
			return nil, fmt.Errorf("update record %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpsertDecryptedRecord(ctx context.Context, rec dkaudit.DecryptedRecord) error {
	calcPayload, err := json.Marshal(rec.Calculate)
	if err != nil {
		return fmt.Errorf("marshal calculate payload %s: %w", rec.AuditID, err)
	}
	updatePayload, err := json.Marshal(rec.Update)
	if err != nil {
		return fmt.Errorf("marshal update payload %s: %w", rec.AuditID, err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (
			audit_id, patient_number, audit_table_id,
			episode_type, region, centre, server_datetime,
			calc_payload, update_payload,
			update_datetime, update_useragent, update_client_ip, update_app_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.Decrypt),
		rec.AuditID, nullInt(rec.PatientNumber), nullInt64(rec.AuditTableID),
		rec.EpisodeType, rec.Region, rec.Centre, formatTime(rec.ServerDatetime),
		string(calcPayload), string(updatePayload),
		nullTime(rec.UpdateDatetime), nullString(rec.UpdateUserAgent),
		nullString(rec.UpdateClientIP), nullString(rec.UpdateAppVersion),
	)
	if err != nil {
		return fmt.Errorf("upsert decrypted record %s: %w", rec.AuditID, err)
	}
	return nil
}

func (s *Store) FetchDecryptedRecords(ctx context.Context, includeTests bool) ([]dkaudit.DecryptedRecord, error) {
	query := fmt.Sprintf(`
		SELECT audit_id, patient_number, audit_table_id,
			episode_type, region, centre, server_datetime,
			calc_payload, update_payload,
			update_datetime, update_useragent, update_client_ip, update_app_version
		FROM %s`, s.tables.Decrypt)
	var args []any
	if !includeTests {
		query += " WHERE episode_type != ?"
		args = append(args, dkaudit.EpisodeTest)
	}
	query += " ORDER BY audit_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch decrypted records: %w", err)
	}
	defer rows.Close()

	var out []dkaudit.DecryptedRecord
	for rows.Next() {
		var (
			rec                          dkaudit.DecryptedRecord
			patientNumber                sql.NullInt64
			auditTableID                 sql.NullInt64
			serverDatetime               string
			calcPayload, updatePayload   string
			updateDatetime               sql.NullString
			updateUA, updateIP, updateAV sql.NullString
		)
		if err := rows.Scan(
			&rec.AuditID, &patientNumber, &auditTableID,
			&rec.EpisodeType, &rec.Region, &rec.Centre, &serverDatetime,
			&calcPayload, &updatePayload,
			&updateDatetime, &updateUA, &updateIP, &updateAV,
		); err != nil {
			return nil, fmt.Errorf("scan decrypted record: %w", err)
		}
		if rec.ServerDatetime, err = parseTime(serverDatetime); err != nil {
			return nil, fmt.Errorf("decrypted record %s: %w", rec.AuditID, err)
		}
		if rec.UpdateDatetime, err = scanNullTime(updateDatetime); err != nil {
			return nil, fmt.Errorf("decrypted record %s: %w", rec.AuditID, err)
		}
		if err := json.Unmarshal([]byte(calcPayload), &rec.Calculate); err != nil {
			return nil, fmt.Errorf("decrypted record %s: calculate payload: %w", rec.AuditID, err)
		}
		if err := json.Unmarshal([]byte(updatePayload), &rec.Update); err != nil {
			return nil, fmt.Errorf("decrypted record %s: update payload: %w", rec.AuditID, err)
		}
		rec.PatientNumber = scanNullInt(patientNumber)
		rec.AuditTableID = scanNullInt64(auditTableID)
		rec.UpdateUserAgent = scanNullString(updateUA)
		rec.UpdateClientIP = scanNullString(updateIP)
		rec.UpdateAppVersion = scanNullString(updateAV)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) AppendStreamlinedRecord(ctx context.Context, rec dkaudit.StreamlinedRecord) error {
	preventable, err := jsonNullSlice(rec.PreventableFactors)
	if err != nil {
		return fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
	}
	treatment, err := jsonNullSlice(rec.CerebralOedemaTreatment)
	if err != nil {
		return fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
	}
	dedup, err := jsonNullSlice(rec.DeduplicatedAuditIDs)
	if err != nil {
		return fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
	}
	calculations, err := jsonNullMap(rec.Calculations)
	if err != nil {
		return fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (
			audit_id, data_grade, patient_number,
			protocol_start_datetime, protocol_end_datetime,
			patient_age, patient_sex,
			ph, bicarbonate, glucose, ketones,
			shock_present, insulin_rate,
			pre_existing_diabetes, insulin_delivery_method,
			ethnic_group, ethnic_subgroup,
			preventable_factors, imd_decile,
			cerebral_oedema_concern, cerebral_oedema_imaging, cerebral_oedema_treatment,
			region, centre, calculations, deduplicated_audit_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.tables.Streamlined),
		rec.AuditID, rec.DataGrade, nullInt(rec.PatientNumber),
		nullString(rec.ProtocolStartDatetime), nullString(rec.ProtocolEndDatetime),
		nullFloat(rec.PatientAge), nullString(rec.PatientSex),
		nullFloat(rec.PH), nullFloat(rec.Bicarbonate), nullFloat(rec.Glucose), nullFloat(rec.Ketones),
		nullBool(rec.ShockPresent), nullFloat(rec.InsulinRate),
		nullBool(rec.PreExistingDiabetes), nullString(rec.InsulinDeliveryMethod),
		nullString(rec.EthnicGroup), nullString(rec.EthnicSubgroup),
		preventable, nullInt(rec.IMDDecile),
		nullBool(rec.CerebralOedemaConcern), nullString(rec.CerebralOedemaImaging), treatment,
		rec.Region, rec.Centre, calculations, dedup,
	)
	if err != nil {
		return fmt.Errorf("append streamlined record %s: %w", rec.AuditID, err)
	}
	return nil
}

func (s *Store) FetchStreamlinedRecords(ctx context.Context) ([]dkaudit.StreamlinedRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT audit_id, data_grade, patient_number,
			protocol_start_datetime, protocol_end_datetime,
			patient_age, patient_sex,
			ph, bicarbonate, glucose, ketones,
			shock_present, insulin_rate,
			pre_existing_diabetes, insulin_delivery_method,
			ethnic_group, ethnic_subgroup,
			preventable_factors, imd_decile,
			cerebral_oedema_concern, cerebral_oedema_imaging, cerebral_oedema_treatment,
			region, centre, calculations, deduplicated_audit_ids
		FROM %s ORDER BY audit_id`, s.tables.Streamlined))
	if err != nil {
		return nil, fmt.Errorf("fetch streamlined records: %w", err)
	}
	defer rows.Close()

	var out []dkaudit.StreamlinedRecord
	for rows.Next() {
		var (
			rec                            dkaudit.StreamlinedRecord
			patientNumber, imdDecile       sql.NullInt64
			startDT, endDT                 sql.NullString
			patientSex                     sql.NullString
			age, ph, bicarb, gluc, ket     sql.NullFloat64
			insulinRate                    sql.NullFloat64
			shock, diabetes, oedemaConcern sql.NullInt64
			delivery, group, subgroup      sql.NullString
			preventable, treatment         sql.NullString
			imaging                        sql.NullString
			calculations, dedup            sql.NullString
		)
		if err := rows.Scan(
			&rec.AuditID, &rec.DataGrade, &patientNumber,
			&startDT, &endDT,
			&age, &patientSex,
			&ph, &bicarb, &gluc, &ket,
			&shock, &insulinRate,
			&diabetes, &delivery,
			&group, &subgroup,
			&preventable, &imdDecile,
			&oedemaConcern, &imaging, &treatment,
			&rec.Region, &rec.Centre, &calculations, &dedup,
		); err != nil {
			return nil, fmt.Errorf("scan streamlined record: %w", err)
		}
		rec.PatientNumber = scanNullInt(patientNumber)
		rec.ProtocolStartDatetime = scanNullString(startDT)
		rec.ProtocolEndDatetime = scanNullString(endDT)
		rec.PatientAge = scanNullFloat(age)
		rec.PatientSex = scanNullString(patientSex)
		rec.PH = scanNullFloat(ph)
		rec.Bicarbonate = scanNullFloat(bicarb)
		rec.Glucose = scanNullFloat(gluc)
		rec.Ketones = scanNullFloat(ket)
		rec.ShockPresent = scanNullBool(shock)
		rec.InsulinRate = scanNullFloat(insulinRate)
		rec.PreExistingDiabetes = scanNullBool(diabetes)
		rec.InsulinDeliveryMethod = scanNullString(delivery)
		rec.EthnicGroup = scanNullString(group)
		rec.EthnicSubgroup = scanNullString(subgroup)
		rec.IMDDecile = scanNullInt(imdDecile)
		rec.CerebralOedemaConcern = scanNullBool(oedemaConcern)
		rec.CerebralOedemaImaging = scanNullString(imaging)
		if err := unmarshalNullSlice(preventable, &rec.PreventableFactors); err != nil {
			return nil, fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
		}
		if err := unmarshalNullSlice(treatment, &rec.CerebralOedemaTreatment); err != nil {
			return nil, fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
		}
		if err := unmarshalNullSlice(dedup, &rec.DeduplicatedAuditIDs); err != nil {
			return nil, fmt.Errorf("streamlined record %s: %w", rec.AuditID, err)
		}
		if calculations.Valid {
			if err := json.Unmarshal([]byte(calculations.String), &rec.Calculations); err != nil {
				return nil, fmt.Errorf("streamlined record %s: calculations: %w", rec.AuditID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ResetStreamlined(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.tables.Streamlined)); err != nil {
		return fmt.Errorf("reset streamlined table: %w", err)
	}
	return nil
}

// Timestamps are stored as RFC 3339 strings in UTC.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func scanNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func scanNullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func scanNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	v := int64(0)
	if *b {
		v = 1
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func scanNullBool(ni sql.NullInt64) *bool {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64 != 0
	return &v
}

func jsonNullSlice(v []string) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalNullSlice(ns sql.NullString, target *[]string) error {
	if !ns.Valid {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

func jsonNullMap(v map[string]float64) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
