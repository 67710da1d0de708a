// Package export renders the streamlined audit table as the published
// research CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openclinical/dkaudit"
)

// Columns is the published research dataset header, in order.
var Columns = []string{
	"dataGrade",
	"patientNumber",
	"auditID",
	"protocolStartDatetime",
	"protocolEndDatetime",
	"patientAge",
	"patientSex",
	"pH",
	"bicarbonate",
	"glucose",
	"ketones",
	"shockPresent",
	"insulinRate",
	"preExistingDiabetes",
	"insulinDeliveryMethod",
	"ethnicGroup",
	"ethnicSubgroup",
	"preventableFactors",
	"imdDecile",
	"cerebralOedemaConcern",
	"cerebralOedemaImaging",
	"cerebralOedemaTreatment",
	"region",
	"centre",
	"calculations",
	"deduplicatedAuditIDs",
}

// WriteCSV writes the header and one row per streamlined record. Null fields
// render as empty cells; list fields join with semicolons; calculations
// render as compact JSON.
func WriteCSV(w io.Writer, records []dkaudit.StreamlinedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row, err := recordRow(rec)
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.AuditID, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", rec.AuditID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordRow(rec dkaudit.StreamlinedRecord) ([]string, error) {
	calculations := ""
	if len(rec.Calculations) > 0 {
		raw, err := json.Marshal(rec.Calculations)
		if err != nil {
			return nil, fmt.Errorf("marshal calculations: %w", err)
		}
		calculations = string(raw)
	}

	return []string{
		rec.DataGrade,
		cellInt(rec.PatientNumber),
		rec.AuditID,
		cellString(rec.ProtocolStartDatetime),
		cellString(rec.ProtocolEndDatetime),
		cellFloat(rec.PatientAge),
		cellString(rec.PatientSex),
		cellFloat(rec.PH),
		cellFloat(rec.Bicarbonate),
		cellFloat(rec.Glucose),
		cellFloat(rec.Ketones),
		cellBool(rec.ShockPresent),
		cellFloat(rec.InsulinRate),
		cellBool(rec.PreExistingDiabetes),
		cellString(rec.InsulinDeliveryMethod),
		cellString(rec.EthnicGroup),
		cellString(rec.EthnicSubgroup),
		strings.Join(rec.PreventableFactors, ";"),
		cellInt(rec.IMDDecile),
		cellBool(rec.CerebralOedemaConcern),
		cellString(rec.CerebralOedemaImaging),
		strings.Join(rec.CerebralOedemaTreatment, ";"),
		rec.Region,
		rec.Centre,
		calculations,
		strings.Join(rec.DeduplicatedAuditIDs, ";"),
	}, nil
}

func cellString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cellInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func cellFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func cellBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
