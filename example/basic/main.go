package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/veritas"
	"github.com/siherrmann/veritas/core/ingest"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store/memory"
)

// The basic example runs fully in process: in-memory stores and the fake
// capability service with scripted extractions. It shows the full
// ingest -> ask -> verify flow without any external dependency.
func main() {
	ctx := context.Background()

	fake := llm.NewFake()
	fake.Mentions["ep-001-s1"] = []*model.Mention{
		{EntityType: model.EntityTypePerson, RawValue: "Alex Roe", SourceID: "ep-001", SpanID: "ep-001-s1", Offset: 120, Speaker: "Jane Doe", Confidence: 0.9},
		{EntityType: model.EntityTypeCreativeWork, RawValue: "Atomic Habits", SourceID: "ep-001", SpanID: "ep-001-s1", Offset: 126, Speaker: "Alex Roe", Sentiment: model.SentimentPositive, Confidence: 0.9},
	}
	fake.Mentions["ep-002-s1"] = []*model.Mention{
		{EntityType: model.EntityTypeCreativeWork, RawValue: "atomic habits", SourceID: "ep-002", SpanID: "ep-002-s1", Offset: 310, Speaker: "Sam Lee", Confidence: 0.8},
	}

	engine, err := veritas.New(&veritas.Config{
		Graph:   memory.NewGraphStore(),
		Vectors: memory.NewVectorStore(),
		Service: fake,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	fmt.Println("=== Ingesting Episodes ===")
	report, err := engine.Ingest(ctx, []*ingest.Unit{
		{
			Source: &model.Source{
				ID:          "ep-001",
				Title:       "Deep Focus",
				Collection:  "deepwork",
				PublishDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				Participants: []model.Participant{
					{Name: "Jane Doe", Role: model.RoleHost},
					{Name: "Alex Roe", Role: model.RoleGuest},
				},
			},
			Spans: []*model.Span{
				{ID: "ep-001-s1", SourceID: "ep-001", Text: "Alex Roe swears by Atomic Habits for building routines", Speaker: "Jane Doe", Offset: 120},
			},
		},
		{
			Source: &model.Source{
				ID:          "ep-002",
				Title:       "Morning Routines",
				Collection:  "deepwork",
				PublishDate: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
				Participants: []model.Participant{
					{Name: "Jane Doe", Role: model.RoleHost},
					{Name: "Sam Lee", Role: model.RoleGuest},
				},
			},
			Spans: []*model.Span{
				{ID: "ep-002-s1", SourceID: "ep-002", Text: "the atomic habits framework shaped my mornings", Speaker: "Sam Lee", Offset: 310},
			},
		},
	})
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}
	fmt.Printf("Entities: %d, spans indexed: %d, failures: %d\n", report.Accepted, report.SpansIndexed, len(report.Failures))

	questions := []string{
		"Books recommended by Alex Roe",
		"What did Alex Roe say about building routines?",
		"How did sentiment about Atomic Habits change over time?",
	}
	for _, question := range questions {
		fmt.Printf("\n=== %s ===\n", question)
		result, err := engine.Ask(ctx, question, nil)
		if err != nil {
			log.Fatalf("Ask failed: %v", err)
		}
		fmt.Printf("[%s] %s\n", result.Intent, result.Answer)
		for _, e := range result.Evidence {
			fmt.Printf("  evidence: %s (%.2f)\n", e.SourceID, e.Similarity)
		}
	}

	fmt.Println("\n=== Verifying Claims ===")
	for _, claim := range []string{
		"Did Jane Doe interview Alex Roe?",
		"Did Alex Roe interview Sam Lee?",
	} {
		verification, err := engine.VerifyClaim(ctx, claim)
		if err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Printf("%s -> %s (%s)\n", claim, verification.Verdict, verification.Reason)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		log.Fatalf("Stats failed: %v", err)
	}
	fmt.Printf("\nGraph: %d entities, %d sources, %d relationships\n", stats["entities"], stats["sources"], stats["relationships"])
}
