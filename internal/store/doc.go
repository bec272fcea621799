// Package store provides SQLite-backed durable storage for campaign ledgers.
//
// The store holds two append-only tables:
//   - events: hash-chained event envelopes, one chain per campaign
//   - import_log: provenance rows written alongside importer seed events
//
// # Ledger invariants
//
// The database enforces these, not only Go code:
//   - UNIQUE(campaign_id, replay_ordinal) and a BEFORE INSERT trigger that
//     rejects any ordinal other than max+1 (0 for an empty campaign)
//   - UNIQUE(campaign_id, idempotency_key)
//   - replay_ordinal NOT NULL
//   - UPDATE and DELETE are rejected on both tables
//   - import_log sequence_no dense from 0 per campaign (same trigger shape)
//
// Append derives prev_event_hash from the predecessor's chain hash
// (ir.ChainHash), so editing any stored payload or hash breaks the link to its
// successor. VerifyChain walks a campaign and reports the first broken link.
//
// # Concurrency
//
// Writers for the same campaign serialize on a per-campaign lock taken
// before the transaction opens. Writes share one connection because SQLite
// allows a single writer per file: an append to campaign B waits while an
// import into campaign A holds its transaction. Constraints and triggers
// are the last line of defense.
//
// Store-level reads (ReadEvents, ReadImportLog, Head, ListCampaigns,
// VerifyCampaign) use a separate query-only pool and see the last committed
// state, so they never wait on a writer. In-memory databases have a single
// pool for both.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All queries order by replay_ordinal or sequence_no so results are
// deterministic.
package store
