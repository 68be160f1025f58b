package domain

import "time"

// EvidenceKind identifies the type of evidence submitted for analysis.
type EvidenceKind string

const (
	// KindTranscript is free text: call transcripts, complaint narratives.
	KindTranscript EvidenceKind = "transcript"

	// KindBilling is a batch of numeric billing records.
	KindBilling EvidenceKind = "billing"

	// KindEnrollment is a set of enrollment events.
	KindEnrollment EvidenceKind = "enrollment"
)

// Evidence is the input to one analysis pass. Exactly the fields for
// the declared Kind are consulted; the rest are ignored.
type Evidence struct {
	// Ref is the caller-supplied identity of the evidence (call id,
	// batch id). Used as the analysis cache key. Optional; when empty
	// a content hash is derived.
	Ref  string       `json:"ref,omitempty"`
	Kind EvidenceKind `json:"kind"`

	// Transcript text (KindTranscript).
	Transcript string `json:"transcript,omitempty"`

	// Billing records (KindBilling).
	Billing []BillingRecord `json:"billing,omitempty"`

	// Enrollment events (KindEnrollment).
	Enrollment []EnrollmentEvent `json:"enrollment,omitempty"`

	// Optional source metadata carried through to the result.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BillingRecord is one item of a billing batch.
type BillingRecord struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrollmentEvent is one enrollment action under review.
type EnrollmentEvent struct {
	ID string `json:"id"`

	// ConsentScope is the scope the enrollment was executed under.
	ConsentScope string `json:"consentScope"`

	// AuthorizedScopes are the scopes the beneficiary actually consented
	// to. An executed scope outside this set is a violation.
	AuthorizedScopes []string `json:"authorizedScopes,omitempty"`

	// IdentityVerified reports whether identity verification completed.
	IdentityVerified bool `json:"identityVerified"`

	// Text is free-form agent notes attached to the event.
	Text string `json:"text,omitempty"`
}

// Validate rejects malformed evidence before any extractor runs.
func (e *Evidence) Validate() error {
	switch e.Kind {
	case KindTranscript:
		if e.Transcript == "" {
			return &ValidationError{Field: "transcript", Reason: "transcript text is required"}
		}
	case KindBilling:
		if len(e.Billing) == 0 {
			return &ValidationError{Field: "billing", Reason: "at least one billing record is required"}
		}
		for _, rec := range e.Billing {
			if rec.ID == "" {
				return &ValidationError{Field: "billing.id", Reason: "billing record id is required"}
			}
			if rec.Amount < 0 {
				return &ValidationError{Field: "billing.amount", Reason: "billing amount must be non-negative"}
			}
		}
	case KindEnrollment:
		if len(e.Enrollment) == 0 {
			return &ValidationError{Field: "enrollment", Reason: "at least one enrollment event is required"}
		}
		for _, ev := range e.Enrollment {
			if ev.ID == "" {
				return &ValidationError{Field: "enrollment.id", Reason: "enrollment event id is required"}
			}
		}
	default:
		return &ValidationError{Field: "kind", Reason: "unknown evidence kind: " + string(e.Kind)}
	}
	return nil
}
