// Command kinship-import copies a static genealogy archive into a database
// chunk source, or exports a configured source back to the static layout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/session"
	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/internal/storage/filesource"
	"github.com/scrypster/kinship/internal/storage/postgres"
	"github.com/scrypster/kinship/internal/storage/sqlite"
	"github.com/scrypster/kinship/pkg/types"
)

var (
	archiveDir = flag.String("archive", "", "Static archive directory to import (default: configured data dir)")
	target     = flag.String("to", "sqlite", "Import target: sqlite or postgres")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	dsn        = flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	exportDir  = flag.String("export", "", "Export the configured source to this directory and exit")
	snapshot   = flag.String("snapshot", "", "Write a verified copy of the SQLite archive here before importing")
	configPath = flag.String("config", "", "Path to YAML config file (default: $KINSHIP_CONFIG_FILE)")
)

// importer is implemented by the database chunk sources.
type importer interface {
	Import(ctx context.Context, records []types.PersonRecord) (*storage.ImportReport, error)
	Close() error
}

// snapshotter is implemented by sources that can copy themselves.
type snapshotter interface {
	Snapshot(ctx context.Context, destPath string) error
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	ctx := context.Background()

	if *exportDir != "" {
		n, lineages, err := exportSource(ctx, cfg, *exportDir)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		fmt.Printf("Exported %d people in %d lineages to %s\n", n, lineages, *exportDir)
		return
	}

	dir := cfg.Source.Dir
	if *archiveDir != "" {
		dir = *archiveDir
	}
	sqlitePath := cfg.Source.SQLitePath
	if *dbPath != "" {
		sqlitePath = *dbPath
	}
	pgDSN := cfg.Source.PostgresDSN
	if *dsn != "" {
		pgDSN = *dsn
	}

	dst, err := openTarget(*target, sqlitePath, pgDSN)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *target, err)
	}

	if *snapshot != "" {
		if err := takeSnapshot(ctx, dst, *snapshot); err != nil {
			_ = dst.Close()
			log.Fatalf("Snapshot failed: %v", err)
		}
		fmt.Printf("Saved pre-import snapshot to %s\n", *snapshot)
	}

	report, err := importArchive(ctx, filesource.New(dir), dst)
	if closeErr := dst.Close(); closeErr != nil {
		log.Printf("Warning: failed to close %s: %v", *target, closeErr)
	}
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	fmt.Printf("Imported %d people from %s into %s\n", report.Imported, dir, *target)
	if len(report.Conflicts) > 0 {
		fmt.Printf("Skipped %d duplicate ids; see log for details\n", len(report.Conflicts))
	}
}

func openTarget(kind, sqlitePath, pgDSN string) (importer, error) {
	switch kind {
	case config.SourceSQLite:
		return sqlite.NewStore(sqlitePath)
	case config.SourcePostgres:
		if pgDSN == "" {
			return nil, errors.New("a DSN is required (-dsn or KINSHIP_POSTGRES_DSN)")
		}
		return postgres.NewStore(pgDSN)
	default:
		return nil, fmt.Errorf("unknown import target %q", kind)
	}
}

func takeSnapshot(ctx context.Context, dst importer, path string) error {
	s, ok := dst.(snapshotter)
	if !ok {
		return errors.New("snapshots are only supported for the sqlite target")
	}
	return s.Snapshot(ctx, path)
}

// importArchive loads every record of the archive into dst. An id found in
// more than one lineage keeps the record read first; each skipped record is
// logged and listed in the report.
func importArchive(ctx context.Context, src *filesource.Source, dst importer) (*storage.ImportReport, error) {
	records, err := readArchive(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("archive is empty: %w", storage.ErrNotFound)
	}
	report, err := dst.Import(ctx, records)
	if err != nil {
		return nil, err
	}
	for i := range report.Conflicts {
		log.Printf("import: %v", &report.Conflicts[i])
	}
	return report, nil
}

// readArchive prefers the per-lineage documents and falls back to the
// monolithic dataset when the archive has none.
func readArchive(ctx context.Context, src *filesource.Source) ([]types.PersonRecord, error) {
	lineages, err := src.Lineages()
	if err != nil {
		return nil, err
	}
	if len(lineages) == 0 {
		doc, err := src.FetchDataset(ctx)
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		return doc.People, nil
	}

	var records []types.PersonRecord
	for _, id := range lineages {
		doc, err := src.FetchChunk(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read lineage %s: %w", id, err)
		}
		for _, rec := range doc.People {
			if rec.LineageID == "" {
				rec.LineageID = id
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// exportSource writes the configured source's dataset as a static archive.
func exportSource(ctx context.Context, cfg *config.Config, dir string) (int, int, error) {
	src, err := session.OpenSource(cfg)
	if err != nil {
		return 0, 0, err
	}
	if c, ok := src.(storage.Closer); ok {
		defer c.Close()
	}

	doc, err := src.FetchDataset(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s dataset: %w", cfg.Source.Kind, err)
	}
	lineages, err := filesource.WriteArchive(dir, doc.People)
	if err != nil {
		return 0, 0, err
	}
	return len(doc.People), lineages, nil
}
