package constants

// Reason is the canonical outcome code for one extraction request.
type Reason string

// Stable values (store these exact strings in the ledger and API responses).
const (
	ReasonOK                   Reason = "OK"                     // validated line items produced
	ReasonVendorUnknown        Reason = "VENDOR_UNKNOWN"         // non-fatal: generic profile used
	ReasonTierNoMatch          Reason = "TIER_NO_MATCH"          // non-fatal: tier yielded nothing, fallback advanced
	ReasonTierTransientFailure Reason = "TIER_TRANSIENT_FAILURE" // retried, then treated as no-match
	ReasonValidationDegraded   Reason = "VALIDATION_DEGRADED"    // batch rejected by the output validator
	ReasonBudgetExceeded       Reason = "BUDGET_EXCEEDED"        // terminal: wall-clock ceiling reached
	ReasonAllTiersExhausted    Reason = "ALL_TIERS_EXHAUSTED"    // terminal: every enabled tier failed
)

// Terminal reports whether the reason ends processing for the document.
// Terminal reasons propagate to the caller; everything else is handled
// inside the orchestrator.
func (r Reason) Terminal() bool {
	switch r {
	case ReasonBudgetExceeded, ReasonAllTiersExhausted:
		return true
	}
	return false
}
