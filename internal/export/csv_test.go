package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinical/dkaudit"
)

func ptr[T any](v T) *T { return &v }

func parseCSV(t *testing.T, raw []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSVHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows := parseCSV(t, buf.Bytes())
	require.Len(t, rows, 1)
	assert.Equal(t, Columns, rows[0])
}

func TestWriteCSVFullRecord(t *testing.T) {
	rec := dkaudit.StreamlinedRecord{
		DataGrade:               dkaudit.GradeA,
		PatientNumber:           ptr(3),
		AuditID:                 "AB12CD",
		ProtocolStartDatetime:   ptr("2025-05-01T09:00:00Z"),
		ProtocolEndDatetime:     ptr("2025-05-02T11:00:00Z"),
		PatientAge:              ptr(9.5),
		PatientSex:              ptr("F"),
		PH:                      ptr(7.02),
		ShockPresent:            ptr(false),
		InsulinRate:             ptr(2.5),
		PreExistingDiabetes:     ptr(true),
		InsulinDeliveryMethod:   ptr("pump"),
		EthnicGroup:             ptr("White"),
		PreventableFactors:      []string{"missed education", "pump failure"},
		IMDDecile:               ptr(4),
		CerebralOedemaConcern:   ptr(true),
		CerebralOedemaTreatment: []string{"hypertonic saline", "mannitol"},
		Region:                  "North",
		Centre:                  "RGN01",
		Calculations:            map[string]float64{"insulinRate": 2.5},
		DeduplicatedAuditIDs:    []string{"EF34GH", "IJ56KL"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []dkaudit.StreamlinedRecord{rec}))

	rows := parseCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	require.Len(t, rows[1], len(Columns))

	cells := make(map[string]string, len(Columns))
	for i, name := range Columns {
		cells[name] = rows[1][i]
	}

	assert.Equal(t, "A", cells["dataGrade"])
	assert.Equal(t, "3", cells["patientNumber"])
	assert.Equal(t, "AB12CD", cells["auditID"])
	assert.Equal(t, "9.5", cells["patientAge"])
	assert.Equal(t, "7.02", cells["pH"])
	assert.Equal(t, "false", cells["shockPresent"])
	assert.Equal(t, "true", cells["preExistingDiabetes"])
	assert.Equal(t, "missed education;pump failure", cells["preventableFactors"])
	assert.Equal(t, "hypertonic saline;mannitol", cells["cerebralOedemaTreatment"])
	assert.Equal(t, `{"insulinRate":2.5}`, cells["calculations"])
	assert.Equal(t, "EF34GH;IJ56KL", cells["deduplicatedAuditIDs"])
}

func TestWriteCSVNullsRenderEmpty(t *testing.T) {
	rec := dkaudit.StreamlinedRecord{
		DataGrade: dkaudit.GradeC,
		AuditID:   "ZZ0001",
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []dkaudit.StreamlinedRecord{rec}))

	rows := parseCSV(t, buf.Bytes())
	require.Len(t, rows, 2)

	for i, name := range Columns {
		switch name {
		case "dataGrade":
			assert.Equal(t, "C", rows[1][i])
		case "auditID":
			assert.Equal(t, "ZZ0001", rows[1][i])
		default:
			assert.Empty(t, rows[1][i], "column %s should be empty", name)
		}
	}
}

func TestWriteCSVEscapesDelimiters(t *testing.T) {
	rec := dkaudit.StreamlinedRecord{
		DataGrade:             dkaudit.GradeB,
		AuditID:               "AB12CD",
		InsulinDeliveryMethod: ptr(`pump, "closed loop"`),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []dkaudit.StreamlinedRecord{rec}))

	rows := parseCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	for i, name := range Columns {
		if name == "insulinDeliveryMethod" {
			assert.Equal(t, `pump, "closed loop"`, rows[1][i])
		}
	}
}
