package extract

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// Outlier severity scales from outlierBaseConfidence at |z| just over
// the threshold up to outlierMaxConfidence at |z| >= 4.
const (
	outlierZThreshold     = 3.0
	outlierBaseConfidence = 0.7
	outlierMaxConfidence  = 0.9
	duplicateConfidence   = 0.8
)

// BillingAnomalyExtractor flags statistical outliers and exact-amount
// duplicates in a billing batch. The aggregate statistics are order
// independent; flagged items are keyed by record id, not position.
type BillingAnomalyExtractor struct{}

// NewBillingAnomalyExtractor creates the statistical billing extractor.
func NewBillingAnomalyExtractor() *BillingAnomalyExtractor {
	return &BillingAnomalyExtractor{}
}

func (e *BillingAnomalyExtractor) Name() string { return domain.DetectorAnomaly }

func (e *BillingAnomalyExtractor) Handles(kind domain.EvidenceKind) bool {
	return kind == domain.KindBilling
}

// Detect flags z-score outliers and exact-amount duplicates. Each
// item's z-score is computed against the mean and variance of the
// rest of the batch, so a single extreme value cannot mask itself by
// inflating the dispersion it is measured against.
func (e *BillingAnomalyExtractor) Detect(_ context.Context, ev *domain.Evidence) ([]domain.Finding, error) {
	batch := ev.Billing
	if len(batch) < 3 {
		return e.duplicates(batch), nil
	}

	var sum, sumSq float64
	for _, rec := range batch {
		sum += rec.Amount
		sumSq += rec.Amount * rec.Amount
	}
	n := float64(len(batch))

	var findings []domain.Finding

	for _, rec := range batch {
		restMean := (sum - rec.Amount) / (n - 1)
		restVar := (sumSq-rec.Amount*rec.Amount)/(n-1) - restMean*restMean
		if restVar < 0 {
			restVar = 0 // numeric noise
		}

		dev := math.Abs(rec.Amount - restMean)
		var z float64
		switch {
		case restVar > 0:
			z = dev / math.Sqrt(restVar)
		case dev > 0:
			z = math.Inf(1) // rest of batch is constant
		default:
			z = 0
		}

		if z <= outlierZThreshold {
			continue
		}

		findings = append(findings, domain.Finding{
			Category:    domain.CategoryBilling,
			Detector:    domain.DetectorAnomaly,
			Indicator:   "amount_outlier",
			Confidence:  outlierConfidence(z),
			EvidenceRef: rec.ID,
			Detail:      fmt.Sprintf("amount %.2f deviates %.1f sigma from batch mean %.2f", rec.Amount, z, restMean),
		})
	}

	findings = append(findings, e.duplicates(batch)...)

	return findings, nil
}

// outlierConfidence maps |z| in (3,4] linearly onto (0.7,0.9],
// saturating above 4.
func outlierConfidence(z float64) float64 {
	if z >= outlierZThreshold+1 {
		return outlierMaxConfidence
	}
	return outlierBaseConfidence + (z-outlierZThreshold)*(outlierMaxConfidence-outlierBaseConfidence)
}

// duplicates flags every record whose exact amount appears more than
// once in the batch.
func (e *BillingAnomalyExtractor) duplicates(batch []domain.BillingRecord) []domain.Finding {
	if len(batch) < 2 {
		return nil
	}

	counts := make(map[string]int, len(batch))
	for _, rec := range batch {
		counts[amountKey(rec.Amount)]++
	}

	var findings []domain.Finding
	for _, rec := range batch {
		if counts[amountKey(rec.Amount)] < 2 {
			continue
		}
		findings = append(findings, domain.Finding{
			Category:    domain.CategoryBilling,
			Detector:    domain.DetectorAnomaly,
			Indicator:   "duplicate_amount",
			Confidence:  duplicateConfidence,
			EvidenceRef: rec.ID,
			Detail:      fmt.Sprintf("amount %.2f appears %d times in batch", rec.Amount, counts[amountKey(rec.Amount)]),
		})
	}
	return findings
}

// amountKey normalizes an amount to cents so float representation
// noise cannot split exact duplicates.
func amountKey(amount float64) string {
	return strconv.FormatInt(int64(math.Round(amount*100)), 10)
}
