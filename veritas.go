// Package veritas turns narrative source material (podcast transcripts,
// interviews, talks) into a queryable knowledge base. Ingestion extracts
// and deduplicates entity mentions into a graph plus a span index; Ask
// routes questions through intent classification into structural,
// semantic, hybrid or verification retrieval.
package veritas

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/siherrmann/veritas/core/classifier"
	"github.com/siherrmann/veritas/core/ingest"
	"github.com/siherrmann/veritas/core/planner"
	"github.com/siherrmann/veritas/core/resolver"
	"github.com/siherrmann/veritas/core/retrieval"
	"github.com/siherrmann/veritas/core/synthesizer"
	"github.com/siherrmann/veritas/core/verifier"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store"
)

// Config wires the engine. Graph, Vectors and Service are required; the
// component configs fall back to their Default*() values when zero.
type Config struct {
	Graph   store.GraphStore
	Vectors store.VectorStore
	Service llm.Service

	Resolver  resolver.Config
	Ingest    ingest.Config
	Retrieval retrieval.Config
	Verifier  verifier.Config

	// Logger overrides the default colored stdout logger.
	Logger *slog.Logger
	// LogLevel applies to the default logger only.
	LogLevel slog.Level
}

// Veritas provides a unified interface to ingestion, querying and claim
// verification over the knowledge base.
type Veritas struct {
	Graph    store.GraphStore
	Vectors  store.VectorStore
	Service  llm.Service
	Pipeline *ingest.Pipeline

	classifier  classifier.Classifier
	planner     *planner.Planner
	retriever   *retrieval.Retriever
	verifier    *verifier.Verifier
	synthesizer *synthesizer.Synthesizer
	// Logging
	log *slog.Logger
}

// New creates an engine over the configured stores and capability service.
func New(config *Config) (*Veritas, error) {
	if config == nil || config.Graph == nil || config.Vectors == nil || config.Service == nil {
		return nil, helper.NewError("create engine", fmt.Errorf("%w: graph store, vector store and llm service are required", helper.ErrValidation))
	}

	logger := config.Logger
	if logger == nil {
		opts := helper.PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{
				Level: config.LogLevel,
			},
		}
		logger = slog.New(helper.NewPrettyHandler(os.Stdout, opts))
	}

	if config.Resolver == (resolver.Config{}) {
		config.Resolver = resolver.DefaultConfig()
	}
	if config.Retrieval == (retrieval.Config{}) {
		config.Retrieval = retrieval.DefaultConfig()
	}
	if config.Verifier == (verifier.Config{}) {
		config.Verifier = verifier.DefaultConfig()
	}
	if config.Ingest.Workers == 0 {
		config.Ingest = ingest.DefaultConfig()
	}

	res := resolver.NewResolver(config.Resolver, logger)
	retriever := retrieval.NewRetriever(config.Vectors, config.Service, config.Retrieval, logger)

	return &Veritas{
		Graph:       config.Graph,
		Vectors:     config.Vectors,
		Service:     config.Service,
		Pipeline:    ingest.NewPipeline(config.Graph, config.Vectors, config.Service, res, config.Ingest, logger),
		classifier:  classifier.NewModelClassifier(config.Service, logger),
		planner:     planner.NewPlanner(config.Graph, config.Service, logger),
		retriever:   retriever,
		verifier:    verifier.NewVerifier(config.Graph, retriever, config.Service, config.Verifier, logger),
		synthesizer: synthesizer.NewSynthesizer(config.Service, logger),
		log:         logger,
	}, nil
}

// Ingest processes a batch of source units into the knowledge base. The
// batch report carries per-unit failures; only an empty batch errors.
func (v *Veritas) Ingest(ctx context.Context, units []*ingest.Unit) (*model.IngestReport, error) {
	return v.Pipeline.Run(ctx, units)
}

// Ask answers a question. The intent decides the retrieval path; a path
// failing mid-flight degrades to the other path and is noted in Degraded
// instead of failing the query.
func (v *Veritas) Ask(ctx context.Context, question string, filters *model.Filters) (*model.QueryResult, error) {
	start := time.Now()

	intent := v.classifier.Classify(ctx, question)
	result := &model.QueryResult{Question: question, Intent: intent}

	switch intent {
	case model.IntentVerification:
		verification, err := v.verifier.Verify(ctx, question)
		if err != nil {
			return nil, err
		}
		result.Verification = verification
		result.Evidence = verification.Evidence
		result.Confidence = verification.Confidence
		result.Answer = verdictAnswer(verification)

	case model.IntentStructural:
		v.answerStructural(ctx, result, question, filters)

	case model.IntentSemantic:
		v.answerSemantic(ctx, result, question, filters, nil)

	default: // hybrid
		v.answerHybrid(ctx, result, question, filters)
	}

	result.Latency = time.Since(start)
	v.log.Info("Answered question",
		slog.String("intent", string(intent)),
		slog.Int("evidence", len(result.Evidence)),
		slog.Any("degraded", result.Degraded),
		slog.Duration("latency", result.Latency),
	)
	return result, nil
}

// VerifyClaim checks a claim directly, bypassing intent classification.
func (v *Veritas) VerifyClaim(ctx context.Context, claim string) (*model.VerificationResult, error) {
	return v.verifier.Verify(ctx, claim)
}

// Stats counts the stored nodes and relationships by type.
func (v *Veritas) Stats(ctx context.Context) (map[string]int, error) {
	return v.Graph.Stats(ctx)
}

// Close releases whichever wired components hold external resources.
func (v *Veritas) Close() error {
	var firstErr error
	for _, component := range []interface{}{v.Service, v.Vectors, v.Graph} {
		if closer, ok := component.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// answerStructural plans and executes a typed graph query. Planning or
// execution failure degrades to the semantic path.
func (v *Veritas) answerStructural(ctx context.Context, result *model.QueryResult, question string, filters *model.Filters) {
	plan, err := v.planner.Plan(ctx, question, filters)
	if err != nil {
		v.log.Warn("Structural planning failed, degrading to semantic retrieval", slog.Any("error", err))
		result.Degraded = append(result.Degraded, "structural: "+err.Error())
		v.answerSemantic(ctx, result, question, filters, nil)
		return
	}
	result.StructuralQuery = plan.Query

	rows, err := v.Graph.Query(ctx, plan.Query)
	if err != nil {
		v.log.Warn("Structural query failed, degrading to semantic retrieval", slog.Any("error", err))
		result.Degraded = append(result.Degraded, "structural: "+err.Error())
		v.answerSemantic(ctx, result, question, filters, plan.ScopeEntityIDs)
		return
	}

	result.Answer = synthesizer.FormatRows(rows)
	result.Evidence = rowEvidence(rows)
	if len(rows) > 0 {
		result.Confidence = 0.9
	}
}

// answerSemantic retrieves evidence by similarity, optionally narrowed to
// an entity scope, and synthesizes the answer from it.
func (v *Veritas) answerSemantic(ctx context.Context, result *model.QueryResult, question string, filters *model.Filters, scope []string) {
	evidence, err := v.retriever.Search(ctx, &retrieval.Request{
		Question:       question,
		Filters:        filters,
		ScopeEntityIDs: scope,
	})
	if err != nil {
		result.Degraded = append(result.Degraded, "semantic: "+err.Error())
		if result.Answer == "" {
			result.Answer = synthesizer.InsufficientEvidenceAnswer
		}
		return
	}

	result.Evidence = append(result.Evidence, evidence...)
	result.Answer = v.synthesizer.Synthesize(ctx, question, evidence)
	for _, e := range evidence {
		if e.Similarity > result.Confidence {
			result.Confidence = e.Similarity
		}
	}
}

// answerHybrid narrows semantic retrieval to the entities a structural
// plan resolves. Either path failing leaves the other to answer alone.
func (v *Veritas) answerHybrid(ctx context.Context, result *model.QueryResult, question string, filters *model.Filters) {
	var scope []string
	plan, err := v.planner.Plan(ctx, question, filters)
	if err != nil {
		v.log.Warn("Hybrid planning failed, retrieving without scope", slog.Any("error", err))
		result.Degraded = append(result.Degraded, "structural: "+err.Error())
	} else {
		scope = plan.ScopeEntityIDs
		result.StructuralQuery = plan.Query
	}

	v.answerSemantic(ctx, result, question, filters, scope)

	// With no semantic evidence the structural rows still make an answer.
	if len(result.Evidence) == 0 && plan != nil {
		if rows, queryErr := v.Graph.Query(ctx, plan.Query); queryErr == nil && len(rows) > 0 {
			result.Answer = synthesizer.FormatRows(rows)
			result.Evidence = rowEvidence(rows)
			result.Confidence = 0.7
		}
	}
}

func verdictAnswer(verification *model.VerificationResult) string {
	switch verification.Verdict {
	case model.VerdictTrue:
		return fmt.Sprintf("True: %v.", verification.Reason)
	case model.VerdictFalse:
		return fmt.Sprintf("False: %v.", verification.Reason)
	default:
		return fmt.Sprintf("Undetermined: %v.", verification.Reason)
	}
}

// rowEvidence turns source rows of a structural result into graph-origin
// evidence so structural answers stay citable.
func rowEvidence(rows []store.Row) []model.Evidence {
	var evidence []model.Evidence
	for _, row := range rows {
		sourceID, ok := row["source_id"].(string)
		if !ok || sourceID == "" {
			continue
		}
		e := model.Evidence{SourceID: sourceID, Origin: model.OriginGraph}
		if offset, ok := row["offset"].(float64); ok {
			e.Offset = offset
		}
		if context, ok := row["context"].(string); ok {
			e.Text = context
		}
		evidence = append(evidence, e)
	}
	return evidence
}
