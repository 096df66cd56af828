package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/siherrmann/veritas"
	"github.com/siherrmann/veritas/core/ingest"
	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/llm"
	"github.com/siherrmann/veritas/model"
	"github.com/siherrmann/veritas/store/postgres"
)

const transcript = `Jane Doe welcomes Alex Roe to the show. Alex Roe talks about
deep work and why Atomic Habits changed how he plans his mornings. He
recommends the book to every listener. Later they discuss cold exposure
and whether morning routines are overrated.`

// The advanced example runs against Postgres with pgvector for persistent
// graph and span storage. With GEMINI_API_KEY set, extraction and
// embeddings go through Gemini; without it the scripted fake service keeps
// the example runnable offline.
func main() {
	ctx := context.Background()
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))

	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}
	db := helper.NewDatabase("veritas", dbConfig, logger)
	defer db.Instance.Close()

	service, err := capabilityService(ctx, logger)
	if err != nil {
		log.Fatalf("Failed to create capability service: %v", err)
	}

	graph, err := postgres.NewGraphDBHandler(db)
	if err != nil {
		log.Fatalf("Failed to create graph handler: %v", err)
	}
	spans, err := postgres.NewSpansDBHandler(db, service.Dimensions())
	if err != nil {
		log.Fatalf("Failed to create spans handler: %v", err)
	}

	engine, err := veritas.New(&veritas.Config{
		Graph:   graph,
		Vectors: spans,
		Service: service,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	report, err := engine.Ingest(ctx, []*ingest.Unit{{
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
		Transcript: transcript,
	}})
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}
	fmt.Printf("Ingested: %d entities, %d spans, %d failures\n", report.Accepted, report.SpansIndexed, len(report.Failures))

	for _, question := range []string{
		"Who appeared on Deep Focus?",
		"What did Alex Roe say about morning routines?",
		"Did Jane Doe interview Alex Roe?",
	} {
		result, err := engine.Ask(ctx, question, &model.Filters{Collection: "deepwork"})
		if err != nil {
			log.Fatalf("Ask failed: %v", err)
		}
		fmt.Printf("\n[%s] %s\n%s\n", result.Intent, question, result.Answer)
	}
}

// capabilityService picks Gemini when credentials are present, otherwise
// the deterministic fake.
func capabilityService(ctx context.Context, logger *slog.Logger) (llm.Service, error) {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		return llm.NewGeminiService(ctx, llm.DefaultGeminiConfiguration(apiKey), logger)
	}
	logger.Info("GEMINI_API_KEY not set, using the scripted fake service")
	return llm.NewFake(), nil
}
