// Package classifier routes a question to the retrieval path that can
// answer it: structural traversal, semantic search, the hybrid of both, or
// claim verification. Misrouting degrades answer quality but never
// correctness, so the fallback is always hybrid.
package classifier

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
)

// Classifier decides the intent of a question.
type Classifier interface {
	Classify(ctx context.Context, question string) model.Intent
}

// RuleClassifier scores keyword signals per intent. It needs no model
// call, which keeps routing available when the generative service is
// down.
type RuleClassifier struct {
	logger *slog.Logger
}

// NewRuleClassifier creates the heuristic classifier.
func NewRuleClassifier(logger *slog.Logger) *RuleClassifier {
	return &RuleClassifier{logger: logger}
}

var (
	// Verification patterns dominate: "did X interview Y", "is it true",
	// "verify that".
	verificationSignals = []string{
		"is it true", "verify", "fact check", "fact-check", "confirm that",
		"true or false", "really say", "actually say",
	}
	verificationPrefixes = regexp.MustCompile(`^(did|was|were|has|have|is|are)\s`)

	structuralSignals = []string{
		"who appeared", "list all", "list the", "which guests", "which episodes",
		"how many", "common guests", "both", "appeared on", "recommended by",
		"all books", "all guests", "connections between", "first mention",
		"first mentioned", "when was", "count",
	}

	semanticSignals = []string{
		"what did", "what does", "say about", "find the quote", "quote about",
		"explain", "describe", "talk about", "opinion", "thoughts on",
	}

	hybridSignals = []string{
		"trace", "across", "over time", "compare", "sentiment", "changed",
		"evolved", "views of",
	}
)

func scoreSignals(question string, signals []string) int {
	score := 0
	for _, signal := range signals {
		if strings.Contains(question, signal) {
			score++
		}
	}
	return score
}

// Classify scores each intent's signals and returns the strongest one.
// Verification wins outright when present, ties fall through to hybrid.
func (c *RuleClassifier) Classify(ctx context.Context, question string) model.Intent {
	q := strings.ToLower(strings.TrimSpace(question))

	if scoreSignals(q, verificationSignals) > 0 {
		return model.IntentVerification
	}
	// Closed yes/no questions read as claims to check, unless another
	// signal claims them first.
	if verificationPrefixes.MatchString(q) &&
		scoreSignals(q, structuralSignals) == 0 && scoreSignals(q, semanticSignals) == 0 {
		return model.IntentVerification
	}

	structural := scoreSignals(q, structuralSignals)
	semantic := scoreSignals(q, semanticSignals)
	hybrid := scoreSignals(q, hybridSignals)

	intent := model.IntentHybrid
	switch {
	case structural > semantic && structural > hybrid:
		intent = model.IntentStructural
	case semantic > structural && semantic > hybrid:
		intent = model.IntentSemantic
	}

	c.logger.Debug("Classified question",
		slog.String("intent", string(intent)),
		slog.Int("structural", structural),
		slog.Int("semantic", semantic),
		slog.Int("hybrid", hybrid),
	)

	return intent
}

const classificationPromptTemplate = `Classify the following question about archived conversations into one category.
1. STRUCTURAL - relationships, lists, connections, counts ("Who appeared on show X?", "List all books recommended by Y", "Common guests between two shows")
2. SEMANTIC - finding specific content, quotes, explanations ("What did X say about Y?", "Find the quote about Z")
3. HYBRID - needs both structure and content ("Trace concept X across shows", "How has sentiment on X changed?")
4. VERIFICATION - checking whether something is true ("Did X interview Y?", "Is it true that...")

Question: "%s"

Respond with ONLY one word: STRUCTURAL, SEMANTIC, HYBRID, or VERIFICATION`

// ModelClassifier asks the generative service for the intent and falls
// back to the rule classifier when the call fails or the answer is not a
// known intent.
type ModelClassifier struct {
	generator llm.Generator
	fallback  Classifier
	logger    *slog.Logger
}

// NewModelClassifier creates a model-backed classifier with a rule-based
// fallback.
func NewModelClassifier(generator llm.Generator, logger *slog.Logger) *ModelClassifier {
	return &ModelClassifier{
		generator: generator,
		fallback:  NewRuleClassifier(logger),
		logger:    logger,
	}
}

// Classify asks the model for the intent.
func (c *ModelClassifier) Classify(ctx context.Context, question string) model.Intent {
	response, err := c.generator.Generate(ctx, strings.ReplaceAll(classificationPromptTemplate, "%s", question))
	if err != nil {
		c.logger.Warn("Intent classification failed, falling back to rules", slog.Any("error", err))
		return c.fallback.Classify(ctx, question)
	}

	switch strings.ToUpper(strings.TrimSpace(response)) {
	case "STRUCTURAL":
		return model.IntentStructural
	case "SEMANTIC":
		return model.IntentSemantic
	case "HYBRID":
		return model.IntentHybrid
	case "VERIFICATION":
		return model.IntentVerification
	default:
		return c.fallback.Classify(ctx, question)
	}
}
