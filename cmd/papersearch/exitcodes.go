package main

// Process exit codes.
const (
	ExitSuccess      = 0 // Success
	ExitError        = 1 // Runtime failure
	ExitConfigError  = 2 // Configuration could not be loaded or is invalid
	ExitUsageError   = 3 // Invalid query or flags
	ExitUnclearQuery = 4 // Query analysis failed or the query was rejected
	ExitNoPapers     = 5 // Search succeeded but returned nothing usable
	ExitInvalidPDF   = 6 // Downloaded file is not a readable PDF
)
