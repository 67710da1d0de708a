package dkaudit

import "time"

// Episode types recorded by the calculator client.
const (
	EpisodeReal = "real"
	EpisodeTest = "test"
)

// Data grades attached to exported rows.
const (
	GradeA = "A" // corroborated by follow-up audit data
	GradeB = "B" // initial submission only
	GradeC = "C" // no patient key, ungroupable
)

// Envelope is one encrypted clinical payload at rest. All four fields are
// standard base64. CipherText is AES-256-GCM over the JSON serialization of
// the payload, WrappedKey is the per-record symmetric key encrypted with
// RSA-OAEP(SHA-256), IV is the 16-byte GCM nonce and AuthTag the detached GCM
// tag. Corruption of any field makes the envelope undecryptable.
type Envelope struct {
	CipherText string `json:"cipherText"`
	WrappedKey string `json:"wrappedKey"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// Filter restricts a reconciliation run to a single audit identifier and/or
// submitting centre. Zero values match everything.
type Filter struct {
	AuditID string
	Centre  string
}

// MatchesAuditID reports whether the filter admits the given audit identifier.
func (f Filter) MatchesAuditID(id string) bool {
	return f.AuditID == "" || f.AuditID == id
}

// MatchesCentre reports whether the filter admits the given centre.
func (f Filter) MatchesCentre(centre string) bool {
	return f.Centre == "" || f.Centre == centre
}

// CalculateRecord is the initial encrypted episode plus its plaintext routing
// metadata, created once at submission. The two retrospective markers are the
// only fields mutated after insert, and never by the engines in this package.
type CalculateRecord struct {
	AuditID         string
	EpisodeType     string
	Region          string
	Centre          string
	ClientDatetime  *time.Time
	ServerDatetime  time.Time
	ClientUserAgent string
	ClientIP        string
	AppVersion      string
	PatientHash     *string
	Retrospective   bool

	RetrospectiveAuditData   *time.Time
	RetrospectivePatientHash *time.Time

	Payload Envelope
}

// UpdateRecord is one follow-up submission for an episode. Rows are
// append-only; ID is the store's insertion-ordered identifier and breaks ties
// between updates sharing a server timestamp.
type UpdateRecord struct {
	ID              int64
	AuditID         string
	ServerDatetime  time.Time
	ClientUserAgent string
	ClientIP        string
	AppVersion      string
	Payload         Envelope
}

// CalculatePayload is the clinical payload sealed inside a calculate
// envelope. Client-sourced timestamps stay RFC 3339 strings: they come from
// the browser and are not guaranteed to parse.
type CalculatePayload struct {
	ProtocolStartDatetime *string            `json:"protocolStartDatetime,omitempty"`
	PatientAge            *float64           `json:"patientAge,omitempty"`
	PatientSex            *string            `json:"patientSex,omitempty"`
	PH                    *float64           `json:"pH,omitempty"`
	Bicarbonate           *float64           `json:"bicarbonate,omitempty"`
	Glucose               *float64           `json:"glucose,omitempty"`
	Ketones               *float64           `json:"ketones,omitempty"`
	ShockPresent          *bool              `json:"shockPresent,omitempty"`
	InsulinRate           *float64           `json:"insulinRate,omitempty"`
	PreExistingDiabetes   *bool              `json:"preExistingDiabetes,omitempty"`
	InsulinDeliveryMethod *string            `json:"insulinDeliveryMethod,omitempty"`
	EthnicGroup           *string            `json:"ethnicGroup,omitempty"`
	EthnicSubgroup        *string            `json:"ethnicSubgroup,omitempty"`
	PreventableFactors    []string           `json:"preventableFactors,omitempty"`
	IMDDecile             *int               `json:"imdDecile,omitempty"`
	Calculations          map[string]float64 `json:"calculations,omitempty"`
}

// UpdatePayload is the clinical payload sealed inside an update envelope.
type UpdatePayload struct {
	ProtocolEndDatetime     *string  `json:"protocolEndDatetime,omitempty"`
	CerebralOedemaConcern   *bool    `json:"cerebralOedemaConcern,omitempty"`
	CerebralOedemaImaging   *string  `json:"cerebralOedemaImaging,omitempty"`
	CerebralOedemaTreatment []string `json:"cerebralOedemaTreatment,omitempty"`
	PreExistingDiabetes     *bool    `json:"preExistingDiabetes,omitempty"`
	InsulinDeliveryMethod   *string  `json:"insulinDeliveryMethod,omitempty"`
	EthnicGroup             *string  `json:"ethnicGroup,omitempty"`
	EthnicSubgroup          *string  `json:"ethnicSubgroup,omitempty"`
	PreventableFactors      []string `json:"preventableFactors,omitempty"`
	IMDDecile               *int     `json:"imdDecile,omitempty"`
}

// DecryptedRecord is one row of the plaintext working table, keyed by audit
// identifier. AuditTableID references the update row merged in by phase 2;
// nil means no follow-up has arrived yet, which is the normal state for
// episodes still awaiting review.
type DecryptedRecord struct {
	AuditID       string
	PatientNumber *int
	AuditTableID  *int64

	EpisodeType    string
	Region         string
	Centre         string
	ServerDatetime time.Time

	Calculate CalculatePayload
	Update    UpdatePayload

	// Provenance of the merged update, nil until phase 2 matches one.
	UpdateDatetime   *time.Time
	UpdateUserAgent  *string
	UpdateClientIP   *string
	UpdateAppVersion *string
}

// StreamlinedRecord is one deduplicated export row. DeduplicatedAuditIDs
// lists the audit identifiers this row absorbed, ordered by rank.
type StreamlinedRecord struct {
	DataGrade     string
	PatientNumber *int
	AuditID       string

	ProtocolStartDatetime *string
	ProtocolEndDatetime   *string
	PatientAge            *float64
	PatientSex            *string
	PH                    *float64
	Bicarbonate           *float64
	Glucose               *float64
	Ketones               *float64
	ShockPresent          *bool
	InsulinRate           *float64
	PreExistingDiabetes   *bool
	InsulinDeliveryMethod *string
	EthnicGroup           *string
	EthnicSubgroup        *string
	PreventableFactors    []string
	IMDDecile             *int

	CerebralOedemaConcern   *bool
	CerebralOedemaImaging   *string
	CerebralOedemaTreatment []string

	Region       string
	Centre       string
	Calculations map[string]float64

	DeduplicatedAuditIDs []string
}
