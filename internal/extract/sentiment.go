package extract

import "strings"

// Sentiment scores transcript text in [-1,1] with a small polarity
// lexicon. Strongly negative sentiment models agent hostility or
// deception cues; it biases fusion but never stands alone as a
// finding.
type Sentiment struct{}

// NewSentiment creates the lexicon sentiment scorer.
func NewSentiment() *Sentiment {
	return &Sentiment{}
}

var negativeWords = map[string]struct{}{
	"angry": {}, "furious": {}, "scam": {}, "fraud": {}, "lie": {},
	"lied": {}, "lying": {}, "cheat": {}, "cheated": {}, "steal": {},
	"stole": {}, "threatened": {}, "refuse": {}, "refused": {},
	"terrible": {}, "awful": {}, "worst": {}, "complaint": {},
	"hostile": {}, "yelled": {}, "hung": {}, "deny": {}, "denied": {},
}

var positiveWords = map[string]struct{}{
	"thanks": {}, "thank": {}, "great": {}, "helpful": {}, "resolved": {},
	"happy": {}, "satisfied": {}, "appreciate": {}, "pleased": {},
	"wonderful": {}, "excellent": {}, "polite": {},
}

// Score returns the polarity of the text: (positive - negative) over
// total polar tokens. Empty or neutral text scores 0.
func (s *Sentiment) Score(text string) float64 {
	var pos, neg int
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if _, ok := negativeWords[tok]; ok {
			neg++
			continue
		}
		if _, ok := positiveWords[tok]; ok {
			pos++
		}
	}

	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
