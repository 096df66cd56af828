// Package synthesizer produces the final answer text. Answers are
// restricted to the supplied evidence: when the evidence cannot support
// an answer the synthesizer says so instead of speculating.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// InsufficientEvidenceAnswer is returned whenever no evidence supports an
// answer.
const InsufficientEvidenceAnswer = "The available sources do not contain enough information to answer this question."

// Synthesizer writes answers from evidence. The generator is optional;
// without it the deterministic composition is used.
type Synthesizer struct {
	generator llm.Generator
	logger    *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(generator llm.Generator, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{generator: generator, logger: logger}
}

const synthesisPromptTemplate = `Answer the question using ONLY the numbered evidence below.
Cite evidence as [1], [2] after the statements it supports.
If the evidence does not contain the answer, reply exactly with:
%q

Question: %s

Evidence:
%s`

// Synthesize writes an answer for the question from the evidence. With no
// evidence the insufficiency statement is returned directly.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, evidence []model.Evidence) string {
	if len(evidence) == 0 {
		return InsufficientEvidenceAnswer
	}

	if s.generator != nil {
		answer, err := s.generator.Generate(ctx, fmt.Sprintf(
			synthesisPromptTemplate,
			InsufficientEvidenceAnswer,
			question,
			formatEvidence(evidence),
		))
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer)
		}
		if err != nil {
			s.logger.Warn("Answer generation failed, composing deterministically", slog.Any("error", err))
		}
	}

	return composeDeterministic(evidence)
}

func formatEvidence(evidence []model.Evidence) string {
	var b strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&b, "[%d] (%v", i+1, e.SourceID)
		if e.Speaker != "" {
			fmt.Fprintf(&b, ", %v", e.Speaker)
		}
		fmt.Fprintf(&b, ") %v\n", e.Text)
	}
	return b.String()
}

// composeDeterministic quotes the strongest evidence with its citations.
// It makes no inference beyond what the spans literally say.
func composeDeterministic(evidence []model.Evidence) string {
	limit := len(evidence)
	if limit > 3 {
		limit = 3
	}

	var b strings.Builder
	for i := 0; i < limit; i++ {
		e := evidence[i]
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "From %v", e.SourceID)
		if e.Speaker != "" {
			fmt.Fprintf(&b, " (%v", e.Speaker)
			if e.Offset > 0 {
				fmt.Fprintf(&b, " at %v", formatOffset(e.Offset))
			}
			b.WriteString(")")
		} else if e.Offset > 0 {
			fmt.Fprintf(&b, " (at %v)", formatOffset(e.Offset))
		}
		fmt.Fprintf(&b, ": %q [%d]", e.Text, i+1)
	}
	return b.String()
}

func formatOffset(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

// FormatRows writes a readable answer for structural query rows: entity
// rows list names, source rows list titles and dates.
func FormatRows(rows []store.Row) string {
	if len(rows) == 0 {
		return InsufficientEvidenceAnswer
	}

	var parts []string
	for _, row := range rows {
		if name, ok := row["entity_name"].(string); ok && name != "" {
			parts = append(parts, name)
			continue
		}
		if title, ok := row["title"].(string); ok && title != "" {
			entry := title
			if id, ok := row["source_id"].(string); ok && id != "" {
				entry = fmt.Sprintf("%v (%v)", title, id)
			}
			if date, ok := row["date"].(time.Time); ok && !date.IsZero() {
				entry = fmt.Sprintf("%v, %v", entry, date.Format("2006-01-02"))
			}
			parts = append(parts, entry)
		}
	}
	if len(parts) == 0 {
		return InsufficientEvidenceAnswer
	}
	return strings.Join(parts, "; ")
}
