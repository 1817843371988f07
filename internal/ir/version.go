package ir

// Version constants stamped on journal records.
const (
	// FormatVersion is the payload encoding version.
	FormatVersion = "1"

	// EngineVersion is the fluxgear engine version.
	EngineVersion = "0.3.0"
)
