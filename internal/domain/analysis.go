package domain

import "time"

// FindingCategory tags a finding with the scheme area it implicates.
// Categories drive incident type inference after fusion.
type FindingCategory string

const (
	CategoryBilling    FindingCategory = "BILLING"
	CategoryEnrollment FindingCategory = "ENROLLMENT"
	CategoryBenefits   FindingCategory = "BENEFITS"
	CategoryGeneral    FindingCategory = "GENERAL"
)

// Detector names for findings. The classifier detector is weighted
// separately during fusion; everything else counts as a pattern signal.
const (
	DetectorPattern    = "pattern"
	DetectorClassifier = "classifier"
	DetectorAnomaly    = "anomaly"
	DetectorEnrollment = "enrollment"
)

// Finding is one signal emitted by one extractor. Findings are
// transient: consumed immediately by fusion, persisted only as part
// of the AnalysisResult they contributed to.
type Finding struct {
	Category    FindingCategory `json:"category"`
	Detector    string          `json:"detector"`
	Indicator   string          `json:"indicator"`
	Confidence  float64         `json:"confidence"` // [0,1]
	EvidenceRef string          `json:"evidenceRef,omitempty"`
	Detail      string          `json:"detail,omitempty"`
}

// Classification is the output contract of the pluggable text
// classifier. Any conforming implementation (rule engine, trained
// model, remote service) may be substituted.
type Classification struct {
	Class      string  `json:"class"`      // NORMAL, FRAUD, WASTE, ABUSE
	Confidence float64 `json:"confidence"` // calibrated [0,1]
}

// Classifier class labels.
const (
	ClassNormal = "NORMAL"
	ClassFraud  = "FRAUD"
	ClassWaste  = "WASTE"
	ClassAbuse  = "ABUSE"
)

// RiskLevel is the discrete classification of fused confidence.
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE" // below the reporting floor
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Recommendation is one suggested action derived from an analysis.
type Recommendation struct {
	Action    string `json:"action"`
	Priority  int    `json:"priority"` // 1 = most urgent
	Rationale string `json:"rationale,omitempty"`
}

// AnalysisResult is the immutable output of one fusion pass.
type AnalysisResult struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	EvidenceRef  string       `json:"evidenceRef"`
	EvidenceKind EvidenceKind `json:"evidenceKind"`

	OverallConfidence float64      `json:"overallConfidence"` // [0,1]
	RiskLevel         RiskLevel    `json:"riskLevel"`
	IncidentType      IncidentType `json:"incidentType"`

	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`

	// Sentiment of the transcript in [-1,1]; zero for non-text evidence.
	Sentiment float64 `json:"sentiment"`

	AnalyzedAt     time.Time        `json:"analyzedAt"`
	SourceMetadata map[string]any   `json:"sourceMetadata,omitempty"`
	Metadata       AnalysisMetadata `json:"metadata"`
}

// AnalysisMetadata records processing information for one pass.
type AnalysisMetadata struct {
	TraceID          string   `json:"traceId,omitempty"`
	ExtractorsRun    int      `json:"extractorsRun"`
	ExtractorsFailed []string `json:"extractorsFailed,omitempty"`
	ProcessMs        int64    `json:"processMs"`
	EngineVersion    string   `json:"engineVersion"`
	CacheHit         bool     `json:"cacheHit,omitempty"`
}

// Reportable reports whether the result clears the reporting floor.
// Below-floor results are logged for monitoring but never become
// incidents.
func (r *AnalysisResult) Reportable() bool {
	return r.RiskLevel != RiskNone
}
