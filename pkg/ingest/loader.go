package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/db"
	"github.com/japaniel/meshdb/pkg/logging"
	"github.com/japaniel/meshdb/pkg/mesh"
)

// Stats counts the rows a load added. Rows that already existed are not counted.
type Stats struct {
	Descriptors int
	Concepts    int
	Terms       int
	Trees       int
	Qualifiers  int
	Parents     int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d descriptors, %d concepts, %d terms, %d trees, %d qualifiers, %d parent links",
		s.Descriptors, s.Concepts, s.Terms, s.Trees, s.Qualifiers, s.Parents)
}

// Loader writes extracted records to the store.
type Loader struct {
	DB     *sql.DB
	Logger *zap.Logger
	// OnProgress is called every ProgressEvery records and once at the end.
	OnProgress    func(current, total int)
	ProgressEvery int
}

// NewLoader creates a Loader.
func NewLoader(conn *sql.DB, logger *zap.Logger) *Loader {
	return &Loader{
		DB:            conn,
		Logger:        logging.OrNop(logger),
		ProgressEvery: 1000,
	}
}

// Load inserts records, their concepts, terms, tree numbers and qualifiers,
// then the parent edges, in one transaction. Rows are keyed by natural
// identifier so loading the same records twice adds nothing. Parents must
// already be built (see mesh.BuildParents).
func (l *Loader) Load(ctx context.Context, records []mesh.Record) (Stats, error) {
	var stats Stats
	start := time.Now()

	w, err := NewTxWriter(ctx, l.DB)
	if err != nil {
		return stats, err
	}
	defer w.Rollback()

	total := len(records)
	for i := range records {
		rec := records[i]
		err := w.Submit(func(ctx context.Context, tx *sql.Tx) error {
			return writeRecord(tx, rec, &stats)
		})
		if err != nil {
			return Stats{}, err
		}
		if l.OnProgress != nil && l.ProgressEvery > 0 && (i+1)%l.ProgressEvery == 0 {
			l.OnProgress(i+1, total)
		}
	}

	// Parents reference other records of the batch, so they go in after every
	// descriptor row exists.
	for i := range records {
		rec := records[i]
		if len(rec.Parents) == 0 {
			continue
		}
		err := w.Submit(func(ctx context.Context, tx *sql.Tx) error {
			for _, p := range rec.Parents {
				created, err := db.LinkParent(tx, rec.UI, p)
				if err != nil {
					return err
				}
				if created {
					stats.Parents++
				}
			}
			return nil
		})
		if err != nil {
			return Stats{}, err
		}
	}

	if err := w.Commit(); err != nil {
		return Stats{}, err
	}
	if l.OnProgress != nil {
		l.OnProgress(total, total)
	}

	logging.OrNop(l.Logger).Info("loaded mesh records",
		zap.Int("records", total),
		zap.Int("new_descriptors", stats.Descriptors),
		zap.Int("new_concepts", stats.Concepts),
		zap.Int("new_terms", stats.Terms),
		zap.Int("new_trees", stats.Trees),
		zap.Int("new_qualifiers", stats.Qualifiers),
		zap.Int("new_parents", stats.Parents),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}

func writeRecord(tx *sql.Tx, rec mesh.Record, stats *Stats) error {
	descID, created, err := db.CreateOrGetDescriptor(tx, rec)
	if err != nil {
		return err
	}
	if created {
		stats.Descriptors++
	}

	for _, tn := range rec.TreeNumbers {
		created, err := db.AddTreeNumber(tx, descID, tn)
		if err != nil {
			return err
		}
		if created {
			stats.Trees++
		}
	}

	for _, q := range rec.Qualifiers {
		created, err := db.AddQualifier(tx, descID, q)
		if err != nil {
			return err
		}
		if created {
			stats.Qualifiers++
		}
	}

	for _, c := range rec.Concepts {
		conceptID, created, err := db.CreateOrGetConcept(tx, descID, c)
		if err != nil {
			return err
		}
		if created {
			stats.Concepts++
		}
		for _, t := range c.Terms {
			created, err := db.CreateTerm(tx, conceptID, t)
			if err != nil {
				return fmt.Errorf("failed to persist term %s of %s: %w", t.UI, rec.UI, err)
			}
			if created {
				stats.Terms++
			}
		}
	}
	return nil
}
