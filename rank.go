package dkaudit

import "time"

// rankKey is the total order used to pick the surviving record in a
// within-window deduplication group, compared lexicographically descending:
// a record corroborated by follow-up data always outranks one without, and
// between equals the later submission wins.
type rankKey struct {
	hasAuditData   bool
	serverDatetime time.Time
}

// episodeRank computes the ranking key for one working-table row.
func episodeRank(r DecryptedRecord) rankKey {
	return rankKey{
		hasAuditData:   r.AuditTableID != nil,
		serverDatetime: r.ServerDatetime,
	}
}

// outranks reports whether k sorts ahead of other.
func (k rankKey) outranks(other rankKey) bool {
	if k.hasAuditData != other.hasAuditData {
		return k.hasAuditData
	}
	return k.serverDatetime.After(other.serverDatetime)
}
