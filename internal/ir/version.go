package ir

// Version constants for the ledger and engine contract.
const (
	// EventSchemaVersion is the envelope schema version stamped on new events.
	EventSchemaVersion = 1

	// EngineVersion is checked against a package manifest's
	// engine_contract_range.
	EngineVersion = "1.4.0"
)
