package dkaudit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// PatientNumberAssigner maps one-way patient hashes to run-scoped
// pseudonymous integers. The same non-empty hash always receives the same
// number within a run, distinct hashes never collide, and numbering starts at
// 1 in first-seen order. Safe for concurrent use.
type PatientNumberAssigner struct {
	mu      sync.Mutex
	numbers map[string]int
	next    int
}

// NewPatientNumberAssigner returns an empty assigner for one run.
func NewPatientNumberAssigner() *PatientNumberAssigner {
	return &PatientNumberAssigner{
		numbers: make(map[string]int),
		next:    1,
	}
}

// Assign returns the patient number for the given hash, allocating the next
// integer on first sight. A nil or empty hash means an anonymous episode and
// maps to nil: those records are never groupable.
func (a *PatientNumberAssigner) Assign(patientHash *string) *int {
	if patientHash == nil || *patientHash == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.numbers[*patientHash]
	if !ok {
		n = a.next
		a.next++
		a.numbers[*patientHash] = n
	}
	return &n
}

// Count returns how many distinct patients have been numbered so far.
func (a *PatientNumberAssigner) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.numbers)
}

// Argon2 parameters for SecurePatientHash.
const (
	patientHashTime    = 3
	patientHashMemory  = 64 * 1024
	patientHashThreads = 2
	patientHashLength  = 32
)

// BasicPatientHash derives the one-way patient hash from a stable identifier
// (NHS number or equivalent) and a deployment pepper. Identifiers are
// lowercased so formatting differences between submitting clients cannot
// split a patient.
func BasicPatientHash(identifier string, pepper []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(identifier)))
	h.Write(pepper)
	return hex.EncodeToString(h.Sum(nil))
}

// SecurePatientHash is the argon2id variant used where the identifier space
// is small enough to brute-force a plain hash.
func SecurePatientHash(identifier string, pepper []byte) string {
	sum := argon2.IDKey(
		[]byte(strings.ToLower(identifier)),
		pepper,
		patientHashTime,
		patientHashMemory,
		patientHashThreads,
		patientHashLength,
	)
	return hex.EncodeToString(sum)
}
