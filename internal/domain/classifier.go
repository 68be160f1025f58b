package domain

// ClassifierRule configures one expression of the rule-based text
// classifier. Rules are CEL expressions over extracted text features;
// the highest-confidence matching rule determines the classification.
type ClassifierRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Class assigned when the rule matches: FRAUD, WASTE, or ABUSE.
	Class string `json:"class"`

	// Expression is CEL over the text feature variables. It must
	// return bool (match at the fixed Confidence) or double (match
	// with that value as confidence, clamped to [0,1]).
	Expression string `json:"expression"`

	// Confidence used when Expression returns bool true.
	Confidence float64 `json:"confidence"`

	// Whether the rule is active.
	Enabled bool `json:"enabled"`
}
