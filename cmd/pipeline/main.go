package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"expograph/internal/embed"
	"expograph/internal/graph"
	"expograph/internal/ingest"
	"expograph/internal/mapping"
	"expograph/internal/relate"
	"expograph/pkg/config"
	"expograph/pkg/logger"
)

// Input file names under INPUT_DIR. Columns are referenced by name, never
// by position.
const (
	fileStreams              = "streams.csv"
	fileSessionsCurrent      = "sessions_current.csv"
	fileSessionsLastYear     = "sessions_last_year.csv"
	fileVisitorsCurrent      = "visitors_current.csv"
	fileRegistrationLastYear = "registration_last_year.csv"
	fileRegistrationPrior    = "registration_prior_year.csv"
	fileScansCurrent         = "scans_current.csv"
	fileScansLastYear        = "scans_last_year.csv"
	fileReferenceCurrent     = "session_reference_current.csv"
	fileReferenceLastYear    = "session_reference_last_year.csv"
	fileRawToCanonical       = "specialization_categories.csv"
	fileStreamMatrix         = "specialization_streams.csv"

	fileEnrichedCurrent  = "enriched_scans_current.csv"
	fileEnrichedLastYear = "enriched_scans_last_year.csv"
)

func main() {
	schemaStage := flag.Bool("schema", false, "Ensure constraints and indexes")
	normalizeStage := flag.Bool("normalize", false, "Normalize scan extracts into enriched tables")
	loadStage := flag.Bool("load", false, "Load nodes and attendance edges from enriched tables")
	relationshipStage := flag.Bool("relationships", false, "Build specialization-to-stream relationships")
	embeddingStage := flag.Bool("embeddings", false, "Compute session embeddings")
	all := flag.Bool("all", false, "Run every stage")
	flag.Parse()

	if *all {
		*schemaStage, *normalizeStage, *loadStage, *relationshipStage, *embeddingStage = true, true, true, true, true
	}
	if !*schemaStage && !*normalizeStage && !*loadStage && !*relationshipStage && !*embeddingStage {
		fmt.Println("Usage: pipeline [-schema] [-normalize] [-load] [-relationships] [-embeddings] [-all]")
		os.Exit(1)
	}

	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	runID := uuid.New().String()
	log := logger.Get().With(zap.String("run_id", runID))
	log.Info("Starting ingestion pipeline")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	client, err := graph.NewClient(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		log.Fatal("Failed to connect to graph store", zap.Error(err))
	}
	defer client.Close(ctx)

	partial := false

	if *schemaStage {
		if err := runSchema(ctx, client, log); err != nil {
			log.Fatal("Schema stage failed", zap.Error(err))
		}
	}

	if *normalizeStage {
		if err := runNormalize(cfg, log); err != nil {
			log.Fatal("Normalize stage failed", zap.Error(err))
		}
	}

	if *loadStage {
		if err := runLoad(ctx, cfg, client, log); err != nil {
			log.Fatal("Load stage failed", zap.Error(err))
		}
	}

	if *relationshipStage {
		labelFailures, err := runRelationships(ctx, cfg, client, log)
		if err != nil {
			log.Fatal("Relationship stage failed", zap.Error(err))
		}
		if labelFailures > 0 {
			partial = true
		}
	}

	if *embeddingStage {
		batchErrors, err := runEmbeddings(ctx, cfg, client, log)
		if err != nil {
			log.Fatal("Embedding stage failed", zap.Error(err))
		}
		if batchErrors > 0 {
			partial = true
		}
	}

	outcome := "success"
	if partial {
		outcome = "partial-success"
	}
	log.Info("Pipeline run complete", zap.String("outcome", outcome))
}

func runSchema(ctx context.Context, client *graph.Client, log *zap.Logger) error {
	manager := graph.NewSchemaManager(client)
	if err := manager.EnsureConstraints(ctx, graph.DefaultConstraints()); err != nil {
		return err
	}
	// Missing indexes degrade performance, not correctness
	return manager.EnsureIndexes(ctx, graph.DefaultIndexes())
}

func runNormalize(cfg *config.Config, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	editions := []struct {
		scans     string
		reference string
		enriched  string
	}{
		{fileScansCurrent, fileReferenceCurrent, fileEnrichedCurrent},
		{fileScansLastYear, fileReferenceLastYear, fileEnrichedLastYear},
	}

	normalizer := ingest.NewNormalizer()
	for _, edition := range editions {
		scans, err := ingest.ReadCSV(filepath.Join(cfg.InputDir, edition.scans))
		if err != nil {
			return err
		}
		reference, err := ingest.ReadCSV(filepath.Join(cfg.InputDir, edition.reference))
		if err != nil {
			return err
		}
		registrationFile := fileVisitorsCurrent
		if edition.scans == fileScansLastYear {
			registrationFile = fileRegistrationLastYear
		}
		registrations, err := ingest.ReadCSV(filepath.Join(cfg.InputDir, registrationFile))
		if err != nil {
			return err
		}

		enriched, stats, err := normalizer.Normalize(scans, reference, registrations)
		if err != nil {
			return err
		}
		outPath := filepath.Join(cfg.OutputDir, edition.enriched)
		if err := enriched.WriteCSV(outPath); err != nil {
			return err
		}
		log.Info("Enriched scan table written",
			zap.String("path", outPath),
			zap.Int("rows", enriched.Len()),
			zap.Float64("registration_match_pct", stats.RegistrationMatchPct),
		)
	}
	return nil
}

func runLoad(ctx context.Context, cfg *config.Config, client *graph.Client, log *zap.Logger) error {
	loader := graph.NewLoader(client)

	streams, err := readStreams(filepath.Join(cfg.InputDir, fileStreams))
	if err != nil {
		return err
	}
	if _, err := loader.UpsertStreams(ctx, streams); err != nil {
		return err
	}

	sessionFiles := map[string]string{
		graph.LabelSession:         fileSessionsCurrent,
		graph.LabelSessionLastYear: fileSessionsLastYear,
	}
	for label, file := range sessionFiles {
		table, err := ingest.ReadCSV(filepath.Join(cfg.InputDir, file))
		if err != nil {
			return err
		}
		rows := sessionRows(table)
		merged, err := loader.UpsertSessions(ctx, label, rows)
		if err != nil {
			return err
		}
		log.Info("Sessions loaded", zap.String("label", label), zap.Int("merged", merged))
		if _, err := loader.LinkSessionStreams(ctx, label); err != nil {
			return err
		}
	}

	visitorFiles := map[string]string{
		graph.LabelVisitor:          fileVisitorsCurrent,
		graph.LabelVisitorLastYear:  fileRegistrationLastYear,
		graph.LabelVisitorPriorYear: fileRegistrationPrior,
	}
	for label, file := range visitorFiles {
		table, err := ingest.ReadCSV(filepath.Join(cfg.InputDir, file))
		if err != nil {
			return err
		}
		merged, err := loader.UpsertVisitors(ctx, label, visitorRows(table))
		if err != nil {
			return err
		}
		log.Info("Visitors loaded", zap.String("label", label), zap.Int("merged", merged))
	}

	attendance := []struct {
		enriched     string
		visitorLabel string
		sessionLabel string
	}{
		{fileEnrichedCurrent, graph.LabelVisitor, graph.LabelSession},
		{fileEnrichedLastYear, graph.LabelVisitorLastYear, graph.LabelSessionLastYear},
	}
	for _, a := range attendance {
		table, err := ingest.ReadCSV(filepath.Join(cfg.OutputDir, a.enriched))
		if err != nil {
			return err
		}
		linked, err := loader.LinkAttendance(ctx, a.visitorLabel, a.sessionLabel, attendanceRows(table))
		if err != nil {
			return err
		}
		log.Info("Attendance linked",
			zap.String("visitor_label", a.visitorLabel),
			zap.Int("linked", linked),
		)
	}

	for pastLabel, edition := range graph.PastVisitorEditions() {
		if _, err := loader.LinkSameVisitor(ctx, pastLabel, edition); err != nil {
			return err
		}
	}
	return nil
}

func runRelationships(ctx context.Context, cfg *config.Config, client *graph.Client, log *zap.Logger) (int, error) {
	specMapping, err := mapping.Load(
		filepath.Join(cfg.InputDir, fileRawToCanonical),
		filepath.Join(cfg.InputDir, fileStreamMatrix),
	)
	if err != nil {
		return 0, err
	}

	builder := relate.NewBuilder(client, specMapping)
	results := builder.BuildAll(ctx, graph.VisitorLabels(), "specialization", cfg.CreateOnlyNew)

	failures := 0
	for label, stats := range results {
		if stats.Err != nil {
			failures++
			continue
		}
		log.Info("Relationship stats",
			zap.String("label", label),
			zap.Int("processed", stats.Processed),
			zap.Int("created", stats.Created),
			zap.Int("skipped", stats.Skipped),
			zap.Int("potential", stats.Potential),
		)
	}
	return failures, nil
}

func runEmbeddings(ctx context.Context, cfg *config.Config, client *graph.Client, log *zap.Logger) (int, error) {
	embedder, err := embed.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingsModel)
	if err != nil {
		return 0, err
	}

	generator := embed.NewGenerator(client, embedder.Embed, cfg.EmbeddingsBatchSize, cfg.IncludeStreamDescriptions)
	stats, err := generator.ComputeEmbeddings(ctx, cfg.CreateOnlyNew)
	if err != nil {
		return 0, err
	}
	log.Info("Embedding stats",
		zap.Int("processed", stats.Processed),
		zap.Int("with_embeddings", stats.WithEmbeddings),
		zap.Int("with_stream_context", stats.WithStreamContext),
	)
	return stats.BatchErrors, nil
}

// readStreams loads the stream vocabulary (Name, Description)
func readStreams(path string) ([]graph.Stream, error) {
	table, err := ingest.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	streams := make([]graph.Stream, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		name := table.Get(i, "Name")
		if name == "" {
			continue
		}
		streams = append(streams, graph.Stream{
			Name:        name,
			Description: table.Get(i, "Description"),
		})
	}
	return streams, nil
}

// sessionRows projects a session catalog table onto node properties
func sessionRows(table *ingest.Table) []map[string]any {
	rows := make([]map[string]any, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		id := table.Get(i, "SessionId")
		title := table.Get(i, "Title")
		if id == "" {
			// Catalogs without stable ids fall back to the normalized key
			id = ingest.MatchKey(title)
		}
		if id == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"session_id": id,
			"title":      title,
			"key_text":   ingest.MatchKey(title),
			"synopsis":   table.Get(i, "Synopsis"),
			"streams":    table.Get(i, "Streams"),
			"venue":      table.Get(i, "Venue"),
			"start_time": table.Get(i, "StartTime"),
			"end_time":   table.Get(i, "EndTime"),
			"sponsored":  strings.EqualFold(table.Get(i, "Sponsored"), "YES"),
		})
	}
	return rows
}

// visitorRows projects a registration table onto node properties
func visitorRows(table *ingest.Table) []map[string]any {
	rows := make([]map[string]any, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		badge := table.Get(i, ingest.ColBadgeID)
		if badge == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"badge_id":          badge,
			"email":             table.Get(i, "Email"),
			"job_title":         table.Get(i, "JobTitle"),
			"specialization":    table.Get(i, "Specialization"),
			"organisation_type": table.Get(i, "OrganisationType"),
			"country":           table.Get(i, "Country"),
		})
	}
	return rows
}

// attendanceRows projects an enriched scan table onto edge parameters
func attendanceRows(table *ingest.Table) []map[string]any {
	rows := make([]map[string]any, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		badge := table.Get(i, ingest.ColBadgeID)
		key := table.Get(i, ingest.ColKeyText)
		if badge == "" || key == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"badge_id":  badge,
			"key_text":  key,
			"scan_time": table.Get(i, ingest.ColScanTime),
		})
	}
	return rows
}
