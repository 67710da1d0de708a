package dkaudit

import (
	"context"
	"sort"
	"sync"
	"testing"
)

// NewTestCipher returns an EnvelopeCipher backed by a throwaway RSA keypair.
// For tests only; key generation is slow enough that callers should reuse the
// cipher across subtests.
func NewTestCipher(t *testing.T) *EnvelopeCipher {
	t.Helper()
	keys, err := GenerateKeyMaterial(2048)
	if err != nil {
		t.Fatalf("failed to generate test key material: %v", err)
	}
	cipher, err := NewEnvelopeCipher(keys)
	if err != nil {
		t.Fatalf("failed to create test cipher: %v", err)
	}
	return cipher
}

// MemoryStore is an in-memory AuditRecordStore for tests and examples. It
// mirrors the SQLite store's semantics: upserts keyed by audit identifier,
// insertion-ordered update IDs, and deterministic fetch ordering.
type MemoryStore struct {
	mu           sync.Mutex
	calculates   []CalculateRecord
	updates      []UpdateRecord
	nextUpdateID int64
	decrypted    map[string]DecryptedRecord
	streamlined  map[string]StreamlinedRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextUpdateID: 1,
		decrypted:    make(map[string]DecryptedRecord),
		streamlined:  make(map[string]StreamlinedRecord),
	}
}

func (s *MemoryStore) InsertCalculateRecord(_ context.Context, rec CalculateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculates = append(s.calculates, rec)
	return nil
}

func (s *MemoryStore) InsertUpdateRecord(_ context.Context, rec UpdateRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextUpdateID
	s.nextUpdateID++
	s.updates = append(s.updates, rec)
	return rec.ID, nil
}

func (s *MemoryStore) FetchCalculateRecords(_ context.Context, filter Filter) ([]CalculateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CalculateRecord
	for _, rec := range s.calculates {
		if filter.MatchesAuditID(rec.AuditID) && filter.MatchesCentre(rec.Centre) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) FetchLatestUpdates(_ context.Context, filter Filter) ([]UpdateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	centres := make(map[string]string, len(s.calculates))
	for _, rec := range s.calculates {
		centres[rec.AuditID] = rec.Centre
	}

	latest := make(map[string]UpdateRecord)
	for _, upd := range s.updates {
		if !filter.MatchesAuditID(upd.AuditID) || !filter.MatchesCentre(centres[upd.AuditID]) {
			continue
		}
		cur, ok := latest[upd.AuditID]
		if !ok || upd.ServerDatetime.After(cur.ServerDatetime) ||
			(upd.ServerDatetime.Equal(cur.ServerDatetime) && upd.ID > cur.ID) {
			latest[upd.AuditID] = upd
		}
	}

	out := make([]UpdateRecord, 0, len(latest))
	for _, upd := range latest {
		out = append(out, upd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuditID < out[j].AuditID })
	return out, nil
}

func (s *MemoryStore) UpsertDecryptedRecord(_ context.Context, rec DecryptedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrypted[rec.AuditID] = rec
	return nil
}

func (s *MemoryStore) FetchDecryptedRecords(_ context.Context, includeTests bool) ([]DecryptedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DecryptedRecord, 0, len(s.decrypted))
	for _, rec := range s.decrypted {
		if !includeTests && rec.EpisodeType == EpisodeTest {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuditID < out[j].AuditID })
	return out, nil
}

func (s *MemoryStore) AppendStreamlinedRecord(_ context.Context, rec StreamlinedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamlined[rec.AuditID] = rec
	return nil
}

func (s *MemoryStore) FetchStreamlinedRecords(_ context.Context) ([]StreamlinedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamlinedRecord, 0, len(s.streamlined))
	for _, rec := range s.streamlined {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuditID < out[j].AuditID })
	return out, nil
}

func (s *MemoryStore) ResetStreamlined(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamlined = make(map[string]StreamlinedRecord)
	return nil
}
