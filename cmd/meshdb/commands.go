package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/db"
	"github.com/japaniel/meshdb/pkg/export"
	"github.com/japaniel/meshdb/pkg/ingest"
	"github.com/japaniel/meshdb/pkg/lookup"
	"github.com/japaniel/meshdb/pkg/mesh"
	"github.com/japaniel/meshdb/pkg/normalize"
	"github.com/japaniel/meshdb/pkg/source"
)

func (a *app) openDB() (*sql.DB, error) {
	path := a.cfg.DatabasePath()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return conn, nil
}

// writeOutput runs fn against path, or against stdout when path is empty. A
// failed write or close removes the partial file.
func writeOutput(cmd *cobra.Command, path string, fn func(io.Writer) error) (err error) {
	if path == "" {
		return fn(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	return fn(f)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPopulateCmd(a *app) *cobra.Command {
	var opts source.Options
	var supplements bool

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Download, parse and load the configured MeSH release",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Logger = a.logger

			records, err := source.Descriptors(ctx, a.cfg, opts)
			if err != nil {
				return err
			}
			if supplements {
				supp, err := source.Supplements(ctx, a.cfg, opts)
				if err != nil {
					return err
				}
				records = append(records, supp...)
			}

			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			loader := ingest.NewLoader(conn, a.logger)
			loader.OnProgress = func(cur, total int) {
				a.logger.Debug("load progress", zap.Int("current", cur), zap.Int("total", total))
			}
			stats, err := loader.Load(ctx, records)
			if err != nil {
				return fmt.Errorf("populate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d records: %s\n", len(records), stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&supplements, "supplements", false, "Also load supplemental concept records")
	cmd.Flags().BoolVar(&opts.ForceDownload, "force-download", false, "Download archives even if present")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "Ignore JSON caches and re-parse archives")
	return cmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the descriptor and supplemental archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := source.Download(cmd.Context(), a.cfg, source.Options{ForceDownload: force, Logger: a.logger})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", a.cfg.DescriptorPath(), a.cfg.SupplementPath())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Download even if the archives exist")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show row counts of the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			populated, err := db.IsPopulated(conn)
			if err != nil {
				return err
			}
			if !populated {
				fmt.Fprintln(cmd.OutOrStdout(), "Store is empty. Run `meshdb populate` first.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range []struct {
				label string
				fn    func(db.DBExecutor) (int, error)
			}{
				{"descriptors", db.CountDescriptors},
				{"concepts", db.CountConcepts},
				{"terms", db.CountTerms},
				{"trees", db.CountTrees},
			} {
				n, err := c.fn(conn)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\n", c.label, n)
			}
			return tw.Flush()
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	var asJSON, exact bool
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find terms whose name contains QUERY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			var terms []db.TermView
			if exact {
				v, err := db.GetTermByName(conn, args[0])
				if err != nil && !errors.Is(err, db.ErrNotFound) {
					return err
				}
				if v != nil {
					terms = append(terms, *v)
				}
			} else if terms, err = db.SearchTerms(conn, args[0], limit); err != nil {
				return err
			}
			if asJSON {
				if terms == nil {
					terms = []db.TermView{}
				}
				return writeJSON(cmd.OutOrStdout(), terms)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range terms {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.DescriptorUI, t.TermName, t.DescriptorName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&exact, "exact", false, "Match the whole term name exactly")
	return cmd
}

type lookupResult struct {
	lookup.Entry
	Parents  []lookup.Entry `json:"parents"`
	Children []lookup.Entry `json:"children"`
}

func entries(ds []db.Descriptor) []lookup.Entry {
	out := make([]lookup.Entry, 0, len(ds))
	for _, d := range ds {
		out = append(out, lookup.Entry{UI: d.DescriptorUI, Name: d.Name, TreeNumbers: d.TreeNumbers})
	}
	return out
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup IDENTIFIER|NAME",
		Short: "Resolve a record by identifier or name and show its neighbours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			r := lookup.NewStoreResolver(conn)
			var e lookup.Entry
			if mesh.IsIdentifier(args[0]) {
				e, err = r.ByUI(args[0])
			} else {
				e, err = r.ByName(args[0])
			}
			if errors.Is(err, lookup.ErrNotFound) {
				return fmt.Errorf("no MeSH record matches %q", args[0])
			}
			if err != nil {
				return err
			}

			parents, err := db.GetParents(conn, e.UI)
			if err != nil {
				return err
			}
			children, err := db.GetChildren(conn, e.UI)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), lookupResult{Entry: e, Parents: entries(parents), Children: entries(children)})
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	var fromCache bool
	cmd := &cobra.Command{
		Use:   "export KEYWORD",
		Short: "Write a BEL namespace (MESHA, MESHC, MESHE, MESHF or MESH<prefix>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := export.LookupPreset(args[0])
			if err != nil {
				return fmt.Errorf("%w (presets: %v)", err, export.PresetKeywords())
			}

			var values []export.Value
			if fromCache {
				recs, err := source.Descriptors(cmd.Context(), a.cfg, source.Options{Logger: a.logger})
				if err != nil {
					return err
				}
				values = export.Values(preset, recs)
			} else {
				conn, err := a.openDB()
				if err != nil {
					return err
				}
				defer conn.Close()
				if values, err = export.StoreValues(conn, preset); err != nil {
					return err
				}
			}

			err = writeOutput(cmd, out, func(w io.Writer) error {
				return export.Write(w, preset, export.DefaultHeader(a.cfg.Year), values)
			})
			if err != nil {
				return err
			}
			a.logger.Info("exported namespace",
				zap.String("keyword", preset.Keyword),
				zap.Int("values", len(values)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&fromCache, "from-cache", false, "Read descriptors from the JSON cache instead of the store")
	return cmd
}

func newNormalizeCmd(a *app) *cobra.Command {
	var out string
	var fromCache, supplements bool
	cmd := &cobra.Command{
		Use:   "normalize DOCUMENT",
		Short: "Rewrite MeSH references of a graph document to canonical identifiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			doc, err := normalize.ReadDocument(f)
			f.Close()
			if err != nil {
				return err
			}

			var resolver lookup.Resolver
			if fromCache {
				opts := source.Options{Logger: a.logger}
				recs, err := source.Descriptors(cmd.Context(), a.cfg, opts)
				if err != nil {
					return err
				}
				if supplements {
					supp, err := source.Supplements(cmd.Context(), a.cfg, opts)
					if err != nil {
						return err
					}
					recs = append(recs, supp...)
				}
				resolver = lookup.NewIndex(recs)
			} else {
				conn, err := a.openDB()
				if err != nil {
					return err
				}
				defer conn.Close()
				resolver = lookup.NewStoreResolver(conn)
			}

			n := &normalize.Normalizer{Resolver: resolver, Logger: a.logger}
			res, err := n.Normalize(doc)
			if err != nil {
				return err
			}

			err = writeOutput(cmd, out, func(w io.Writer) error {
				return normalize.WriteDocument(w, doc)
			})
			if err != nil {
				return err
			}
			for _, label := range res.Labels() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s\t%d\n", label, res.Rewritten[label])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&fromCache, "from-cache", false, "Resolve against the JSON caches instead of the store")
	cmd.Flags().BoolVar(&supplements, "supplements", false, "With --from-cache, also resolve supplemental records")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// The version command needs no config or logger.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), mesh.Version())
		},
	}
}
