package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// Per-match base confidence for phrase patterns, and the cap for
// keyword-density findings.
const (
	phraseConfidence   = 0.85
	densityCap         = 0.9
	densityBase        = 0.3
	densityPerKeyword  = 0.15
	densityMinKeywords = 2
)

// billingPhrases are category-tagged phrase patterns for billing
// schemes. Matched case-insensitively as substrings.
var billingPhrases = []string{
	"ghost patient",
	"phantom billing",
	"duplicate claims",
	"double billing",
	"billing for services not rendered",
	"upcoding",
	"unbundling",
	"kickback",
	"bill for the full visit anyway",
}

var enrollmentPhrases = []string{
	"enrolled without consent",
	"switched your plan",
	"switch the plan without",
	"unauthorized enrollment",
	"signed up without",
	"forged signature",
	"did not agree to enroll",
}

var benefitsPhrases = []string{
	"completely free",
	"no cost to you ever",
	"guaranteed approval",
	"covers everything",
	"cash back for enrolling",
	"gift card for signing up",
}

// Keyword lists for density scoring. A single keyword is noise; two or
// more in the same text raise a finding that scales with count.
var billingKeywords = []string{
	"overbill", "inflate", "falsify", "fabricate", "resubmit",
	"unnecessary", "miscode", "invoice",
}

var enrollmentKeywords = []string{
	"enroll", "consent", "signature", "authorize", "disenroll", "switch",
}

var benefitsKeywords = []string{
	"free", "guarantee", "promise", "bonus", "reward", "premium",
}

// PatternExtractor scans transcript text for category-tagged phrase
// patterns and keyword density. Pure function of the input text.
type PatternExtractor struct{}

// NewPatternExtractor creates the phrase/keyword pattern extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

func (e *PatternExtractor) Name() string { return domain.DetectorPattern }

func (e *PatternExtractor) Handles(kind domain.EvidenceKind) bool {
	return kind == domain.KindTranscript
}

// Detect scans for phrase matches (fixed per-category base confidence)
// and keyword density (confidence scales with match count, capped).
func (e *PatternExtractor) Detect(_ context.Context, ev *domain.Evidence) ([]domain.Finding, error) {
	text := strings.ToLower(ev.Transcript)

	var findings []domain.Finding

	findings = append(findings, e.scanPhrases(text, ev.Ref, domain.CategoryBilling, billingPhrases)...)
	findings = append(findings, e.scanPhrases(text, ev.Ref, domain.CategoryEnrollment, enrollmentPhrases)...)
	findings = append(findings, e.scanPhrases(text, ev.Ref, domain.CategoryBenefits, benefitsPhrases)...)

	if f, ok := e.scanDensity(text, ev.Ref, domain.CategoryBilling, billingKeywords); ok {
		findings = append(findings, f)
	}
	if f, ok := e.scanDensity(text, ev.Ref, domain.CategoryEnrollment, enrollmentKeywords); ok {
		findings = append(findings, f)
	}
	if f, ok := e.scanDensity(text, ev.Ref, domain.CategoryBenefits, benefitsKeywords); ok {
		findings = append(findings, f)
	}

	return findings, nil
}

func (e *PatternExtractor) scanPhrases(text, ref string, category domain.FindingCategory, phrases []string) []domain.Finding {
	var findings []domain.Finding
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			findings = append(findings, domain.Finding{
				Category:    category,
				Detector:    domain.DetectorPattern,
				Indicator:   "phrase_match",
				Confidence:  phraseConfidence,
				EvidenceRef: ref,
				Detail:      phrase,
			})
		}
	}
	return findings
}

func (e *PatternExtractor) scanDensity(text, ref string, category domain.FindingCategory, keywords []string) (domain.Finding, bool) {
	count := 0
	for _, kw := range keywords {
		count += strings.Count(text, kw)
	}
	if count < densityMinKeywords {
		return domain.Finding{}, false
	}

	conf := densityBase + densityPerKeyword*float64(count)
	if conf > densityCap {
		conf = densityCap
	}

	return domain.Finding{
		Category:    category,
		Detector:    domain.DetectorPattern,
		Indicator:   "keyword_density",
		Confidence:  conf,
		EvidenceRef: ref,
		Detail:      fmt.Sprintf("%d keyword hits", count),
	}, true
}
