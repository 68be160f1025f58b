package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// Classifier is the pluggable text classifier contract. Confidence
// must be calibrated to [0,1]; class is one of NORMAL, FRAUD, WASTE,
// ABUSE. Any conforming implementation (rule engine, trained model,
// remote service) can be substituted.
type Classifier interface {
	Classify(ctx context.Context, text string) (*domain.Classification, error)
}

// CELClassifier classifies text with configurable CEL expressions
// over extracted text features. Rules are tenant-configurable and
// hot-reloadable.
type CELClassifier struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledClassifierRule
}

type compiledClassifierRule struct {
	config  *domain.ClassifierRule
	program cel.Program
}

// NewCELClassifier creates a classifier with an empty rule set.
func NewCELClassifier() (*CELClassifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("word_count", cel.IntType),
		cel.Variable("billing_hits", cel.IntType),
		cel.Variable("enrollment_hits", cel.IntType),
		cel.Variable("benefits_hits", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELClassifier{
		env:      env,
		compiled: make(map[string]*compiledClassifierRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (c *CELClassifier) ValidateRule(cfg *domain.ClassifierRule) error {
	if cfg == nil {
		return fmt.Errorf("classifier rule is required")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := c.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule.
func (c *CELClassifier) LoadRule(cfg *domain.ClassifierRule) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	compiled, err := c.compileRule(cfg)
	if err != nil {
		return err
	}

	c.compiled[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (c *CELClassifier) LoadRules(configs []*domain.ClassifierRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := c.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules swaps the full rule set (hot reload from the database).
func (c *CELClassifier) ReloadRules(configs []*domain.ClassifierRule) error {
	newRules := make(map[string]*compiledClassifierRule)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := c.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	c.compiled = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (c *CELClassifier) RulesCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}

// LoadedRules returns the currently loaded rule configurations.
func (c *CELClassifier) LoadedRules() []*domain.ClassifierRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rules := make([]*domain.ClassifierRule, 0, len(c.compiled))
	for _, r := range c.compiled {
		rules = append(rules, r.config)
	}
	return rules
}

// Classify evaluates every loaded rule and returns the class of the
// highest-confidence match. No match classifies as NORMAL with zero
// confidence.
func (c *CELClassifier) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	c.mu.RLock()
	rules := make([]*compiledClassifierRule, 0, len(c.compiled))
	for _, r := range c.compiled {
		rules = append(rules, r)
	}
	c.mu.RUnlock()

	best := &domain.Classification{Class: domain.ClassNormal, Confidence: 0}
	if len(rules) == 0 {
		return best, nil
	}

	activation := featureActivation(text)

	for _, rule := range rules {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, _, err := rule.program.Eval(activation)
		if err != nil {
			// One bad rule does not fail the classification.
			continue
		}

		conf := ruleConfidence(out, rule.config.Confidence)
		if conf > best.Confidence {
			best = &domain.Classification{
				Class:      rule.config.Class,
				Confidence: conf,
			}
		}
	}

	return best, nil
}

// featureActivation extracts the CEL variables from raw text.
func featureActivation(text string) map[string]any {
	lower := strings.ToLower(text)

	countHits := func(terms []string) int64 {
		var n int64
		for _, t := range terms {
			n += int64(strings.Count(lower, t))
		}
		return n
	}

	return map[string]any{
		"text":            lower,
		"word_count":      int64(len(strings.Fields(lower))),
		"billing_hits":    countHits(billingKeywords),
		"enrollment_hits": countHits(enrollmentKeywords),
		"benefits_hits":   countHits(benefitsKeywords),
	}
}

// ruleConfidence converts a CEL result to a calibrated confidence.
func ruleConfidence(val ref.Val, fixed float64) float64 {
	var conf float64
	switch v := val.(type) {
	case types.Bool:
		if !v {
			return 0
		}
		conf = fixed
	case types.Double:
		conf = float64(v)
	case types.Int:
		conf = float64(v)
	default:
		return 0
	}

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

func (c *CELClassifier) compileRule(cfg *domain.ClassifierRule) (*compiledClassifierRule, error) {
	switch cfg.Class {
	case domain.ClassFraud, domain.ClassWaste, domain.ClassAbuse:
	default:
		return nil, fmt.Errorf("rule %s: class must be FRAUD, WASTE, or ABUSE, got %q", cfg.ID, cfg.Class)
	}

	ast, issues := c.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledClassifierRule{
		config:  cfg,
		program: program,
	}, nil
}

// ClassifierExtractor adapts a Classifier to the Extractor interface.
// The classification surfaces as a single finding whose detector
// fusion weighs separately from pattern signals.
type ClassifierExtractor struct {
	classifier Classifier
}

// NewClassifierExtractor wraps a classifier for the runner.
func NewClassifierExtractor(c Classifier) *ClassifierExtractor {
	return &ClassifierExtractor{classifier: c}
}

func (e *ClassifierExtractor) Name() string { return domain.DetectorClassifier }

func (e *ClassifierExtractor) Handles(kind domain.EvidenceKind) bool {
	return kind == domain.KindTranscript
}

func (e *ClassifierExtractor) Detect(ctx context.Context, ev *domain.Evidence) ([]domain.Finding, error) {
	cls, err := e.classifier.Classify(ctx, ev.Transcript)
	if err != nil {
		return nil, err
	}
	if cls == nil || cls.Class == domain.ClassNormal || cls.Confidence <= 0 {
		return nil, nil
	}

	return []domain.Finding{{
		Category:    domain.CategoryGeneral,
		Detector:    domain.DetectorClassifier,
		Indicator:   cls.Class,
		Confidence:  cls.Confidence,
		EvidenceRef: ev.Ref,
	}}, nil
}
