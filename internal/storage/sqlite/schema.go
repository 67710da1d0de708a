package sqlite

import "fmt"

// TableSet names the four audit tables one store instance operates on. Live
// and development sets share a database file but never a table.
type TableSet struct {
	Calculate   string
	Update      string
	Decrypt     string
	Streamlined string
}

// LiveTables returns the production table set.
func LiveTables() TableSet {
	return TableSet{
		Calculate:   "audit_calculate",
		Update:      "audit_update",
		Decrypt:     "audit_decrypt",
		Streamlined: "audit_streamlined",
	}
}

// DevTables returns the development table set.
func DevTables() TableSet {
	return TableSet{
		Calculate:   "dev_audit_calculate",
		Update:      "dev_audit_update",
		Decrypt:     "dev_audit_decrypt",
		Streamlined: "dev_audit_streamlined",
	}
}

// TablesFor selects the table set; live overrides the environment-derived
// default of development tables.
func TablesFor(live bool) TableSet {
	if live {
		return LiveTables()
	}
	return DevTables()
}

func schemaStatements(t TableSet) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			audit_id TEXT PRIMARY KEY,
			episode_type TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			centre TEXT NOT NULL DEFAULT '',
			client_datetime TEXT,
			server_datetime TEXT NOT NULL,
			client_useragent TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			app_version TEXT NOT NULL DEFAULT '',
			patient_hash TEXT,
			retrospective INTEGER NOT NULL DEFAULT 0,
			retrospective_audit_data TEXT,
			retrospective_patient_hash TEXT,
			cipher_text TEXT NOT NULL,
			wrapped_key TEXT NOT NULL,
			iv TEXT NOT NULL,
			auth_tag TEXT NOT NULL
		)`, t.Calculate),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id TEXT NOT NULL,
			server_datetime TEXT NOT NULL,
			client_useragent TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			app_version TEXT NOT NULL DEFAULT '',
			cipher_text TEXT NOT NULL,
			wrapped_key TEXT NOT NULL,
			iv TEXT NOT NULL,
			auth_tag TEXT NOT NULL
		)`, t.Update),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_audit_id ON %s (audit_id)`,
			t.Update, t.Update),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			audit_id TEXT PRIMARY KEY,
			patient_number INTEGER,
			audit_table_id INTEGER,
			episode_type TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			centre TEXT NOT NULL DEFAULT '',
			server_datetime TEXT NOT NULL,
			calc_payload TEXT NOT NULL,
			update_payload TEXT NOT NULL,
			update_datetime TEXT,
			update_useragent TEXT,
			update_client_ip TEXT,
			update_app_version TEXT
		)`, t.Decrypt),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			audit_id TEXT PRIMARY KEY,
			data_grade TEXT NOT NULL,
			patient_number INTEGER,
			protocol_start_datetime TEXT,
			protocol_end_datetime TEXT,
			patient_age REAL,
			patient_sex TEXT,
			ph REAL,
			bicarbonate REAL,
			glucose REAL,
			ketones REAL,
			shock_present INTEGER,
			insulin_rate REAL,
			pre_existing_diabetes INTEGER,
			insulin_delivery_method TEXT,
			ethnic_group TEXT,
			ethnic_subgroup TEXT,
			preventable_factors TEXT,
			imd_decile INTEGER,
			cerebral_oedema_concern INTEGER,
			cerebral_oedema_imaging TEXT,
			cerebral_oedema_treatment TEXT,
			region TEXT NOT NULL DEFAULT '',
			centre TEXT NOT NULL DEFAULT '',
			calculations TEXT,
			deduplicated_audit_ids TEXT
		)`, t.Streamlined),
	}
}
