package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/siherrmann/veritas/model"
	"github.com/stretchr/testify/assert"
)

func TestRuleClassifier(t *testing.T) {
	ctx := context.Background()
	c := NewRuleClassifier(slog.New(slog.DiscardHandler))

	t.Run("Relationship and list questions are structural", func(t *testing.T) {
		assert.Equal(t, model.IntentStructural, c.Classify(ctx, "Who appeared on The Daily Grind?"))
		assert.Equal(t, model.IntentStructural, c.Classify(ctx, "List all books recommended by Jane Doe"))
		assert.Equal(t, model.IntentStructural, c.Classify(ctx, "How many guests discussed stoicism?"))
	})

	t.Run("Content questions are semantic", func(t *testing.T) {
		assert.Equal(t, model.IntentSemantic, c.Classify(ctx, "What did Jane say about habit formation?"))
		assert.Equal(t, model.IntentSemantic, c.Classify(ctx, "Find the quote about compound interest"))
	})

	t.Run("Trace and sentiment questions are hybrid", func(t *testing.T) {
		assert.Equal(t, model.IntentHybrid, c.Classify(ctx, "Trace the concept of deep work across episodes"))
		assert.Equal(t, model.IntentHybrid, c.Classify(ctx, "How has sentiment on crypto changed over time?"))
	})

	t.Run("Claim checks are verification", func(t *testing.T) {
		assert.Equal(t, model.IntentVerification, c.Classify(ctx, "Is it true that Jane interviewed Alex?"))
		assert.Equal(t, model.IntentVerification, c.Classify(ctx, "Did Alex recommend Atomic Habits?"))
		assert.Equal(t, model.IntentVerification, c.Classify(ctx, "Verify that the book was discussed in episode 12"))
	})

	t.Run("Questions without signals fall back to hybrid", func(t *testing.T) {
		assert.Equal(t, model.IntentHybrid, c.Classify(ctx, "Tell me something interesting"))
	})
}

type scriptedGenerator struct {
	response string
	err      error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.response, g.err
}

func TestModelClassifier(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	t.Run("Uses the model answer when valid", func(t *testing.T) {
		c := NewModelClassifier(&scriptedGenerator{response: "SEMANTIC"}, logger)
		assert.Equal(t, model.IntentSemantic, c.Classify(ctx, "anything"))
	})

	t.Run("Tolerates whitespace and case in the model answer", func(t *testing.T) {
		c := NewModelClassifier(&scriptedGenerator{response: "  structural\n"}, logger)
		assert.Equal(t, model.IntentStructural, c.Classify(ctx, "anything"))
	})

	t.Run("Falls back to rules on model failure", func(t *testing.T) {
		c := NewModelClassifier(&scriptedGenerator{err: fmt.Errorf("unavailable")}, logger)
		assert.Equal(t, model.IntentStructural, c.Classify(ctx, "Who appeared on The Daily Grind?"))
	})

	t.Run("Falls back to rules on an unknown answer", func(t *testing.T) {
		c := NewModelClassifier(&scriptedGenerator{response: "MAYBE"}, logger)
		assert.Equal(t, model.IntentVerification, c.Classify(ctx, "Is it true that water is wet?"))
	})
}
