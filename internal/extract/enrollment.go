package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// Base confidences per enrollment indicator. Repeated occurrences of
// the same indicator across the batch add to the confidence (capped)
// rather than multiplying it away.
const (
	scopeViolationConfidence = 0.8
	identityGapConfidence    = 0.6
	suspiciousTextConfidence = 0.75
	enrollmentRepeatStep     = 0.05
	enrollmentConfidenceCap  = 0.95
)

// suspiciousEnrollmentPhrases are known manipulation cues in agent
// notes attached to enrollment events.
var suspiciousEnrollmentPhrases = []string{
	"beneficiary unaware",
	"did not speak to member",
	"plan changed per agent",
	"verbal consent only",
	"signature on file",
	"third party requested",
}

// EnrollmentExtractor flags consent-scope violations, identity
// verification gaps, and suspicious note patterns across a batch of
// enrollment events. Each indicator type yields at most one finding
// whose confidence grows additively with the number of offending
// events.
type EnrollmentExtractor struct{}

// NewEnrollmentExtractor creates the enrollment activity extractor.
func NewEnrollmentExtractor() *EnrollmentExtractor {
	return &EnrollmentExtractor{}
}

func (e *EnrollmentExtractor) Name() string { return domain.DetectorEnrollment }

func (e *EnrollmentExtractor) Handles(kind domain.EvidenceKind) bool {
	return kind == domain.KindEnrollment
}

func (e *EnrollmentExtractor) Detect(_ context.Context, ev *domain.Evidence) ([]domain.Finding, error) {
	var scopeRefs, identityRefs, textRefs []string

	for _, event := range ev.Enrollment {
		if violatesScope(event) {
			scopeRefs = append(scopeRefs, event.ID)
		}
		if !event.IdentityVerified {
			identityRefs = append(identityRefs, event.ID)
		}
		if hasSuspiciousText(event.Text) {
			textRefs = append(textRefs, event.ID)
		}
	}

	var findings []domain.Finding
	if f, ok := indicatorFinding("consent_scope_violation", scopeViolationConfidence, scopeRefs); ok {
		findings = append(findings, f)
	}
	if f, ok := indicatorFinding("identity_verification_gap", identityGapConfidence, identityRefs); ok {
		findings = append(findings, f)
	}
	if f, ok := indicatorFinding("suspicious_enrollment_pattern", suspiciousTextConfidence, textRefs); ok {
		findings = append(findings, f)
	}

	return findings, nil
}

// violatesScope reports whether the executed consent scope lies
// outside the scopes the beneficiary authorized. Events with no
// recorded authorizations are not violations; they surface through
// the identity gap indicator if unverified.
func violatesScope(event domain.EnrollmentEvent) bool {
	if event.ConsentScope == "" || len(event.AuthorizedScopes) == 0 {
		return false
	}
	for _, scope := range event.AuthorizedScopes {
		if strings.EqualFold(scope, event.ConsentScope) {
			return false
		}
	}
	return true
}

func hasSuspiciousText(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range suspiciousEnrollmentPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// indicatorFinding builds one finding per indicator: base confidence
// for the first offending event, plus a step per additional event,
// capped.
func indicatorFinding(indicator string, base float64, refs []string) (domain.Finding, bool) {
	if len(refs) == 0 {
		return domain.Finding{}, false
	}

	conf := base + enrollmentRepeatStep*float64(len(refs)-1)
	if conf > enrollmentConfidenceCap {
		conf = enrollmentConfidenceCap
	}

	return domain.Finding{
		Category:    domain.CategoryEnrollment,
		Detector:    domain.DetectorEnrollment,
		Indicator:   indicator,
		Confidence:  conf,
		EvidenceRef: refs[0],
		Detail:      fmt.Sprintf("%d event(s): %s", len(refs), strings.Join(refs, ",")),
	}, true
}
