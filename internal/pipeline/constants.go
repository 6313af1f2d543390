package pipeline

// Defaults for building drafts from extractor output.
const (
	// DefaultTimeZone is where "now" is taken when a message carries no date.
	DefaultTimeZone = "America/Bogota"

	// FallbackInstitution tags the account used when the bank account cannot
	// be identified and resolution is not strict.
	FallbackInstitution = "cash"

	// SourceAPI marks messages received through the generic HTTP endpoint.
	SourceAPI = "api"

	// SourceBancolombiaEmail marks forwarded Bancolombia notification emails.
	SourceBancolombiaEmail = "bancolombia_email"

	// InstitutionBancolombia is the institution tag of Bancolombia accounts.
	InstitutionBancolombia = "bancolombia"
)
