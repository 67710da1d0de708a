// Package dkaudit reassembles encrypted clinical audit records into a
// research-grade dataset.
//
// The paediatric DKA calculator submits one encrypted "calculate" record per
// episode at the point of care, followed by zero or more encrypted "update"
// records carrying follow-up findings. Sensitive fields are protected at rest
// with envelope encryption: a fresh AES-256-GCM key per record, wrapped under
// a long-lived RSA keypair with OAEP(SHA-256).
//
// Two batch engines turn those streams into an export table:
//
//   - ReconciliationEngine decrypts calculate records into a plaintext working
//     table, assigns pseudonymous patient numbers, then merges the latest
//     update per audit identifier into the matching row.
//   - StreamliningEngine groups the working table by patient number,
//     collapses episodes resubmitted within a 24 hour window, grades each
//     exported row by provenance (A/B/C), and writes the streamlined table.
//
// Persistence is abstracted behind AuditRecordStore; a SQLite implementation
// lives in internal/storage/sqlite. Key material can be loaded from PEM files
// or fetched from HashiCorp Vault or AWS Secrets Manager (see providers/).
//
// Both engines are idempotent: rerunning over an unchanged input set upserts
// identical rows.
package dkaudit
