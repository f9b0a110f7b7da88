// Command mercury is the CLI for the Mercury quad store: bulk loading,
// querying, plan explanation, statistics, reasoning, and the HTTP SPARQL
// endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/mercurydb/mercury/internal/config"
	"github.com/mercurydb/mercury/internal/obs"
	"github.com/mercurydb/mercury/internal/reasoner"
	"github.com/mercurydb/mercury/internal/sparql/parser"
	"github.com/mercurydb/mercury/pkg/mercury"
	"github.com/mercurydb/mercury/pkg/rdf"
	"github.com/mercurydb/mercury/pkg/server"
	"github.com/mercurydb/mercury/pkg/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	cfgPath string
	dataDir string
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mercury",
		Short:         "Embedded RDF quad store with SPARQL and temporal queries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to mercury.yaml")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")

	root.AddCommand(loadCmd(), queryCmd(), explainCmd(), serveCmd(), statsCmd(), reasonCmd())
	return root
}

// openDB loads config and opens the database with the CLI's logger.
func openDB(pretty bool) (*mercury.DB, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logger := obs.NewLogger(cfg.Log.Level, pretty || cfg.Log.Pretty)
	db, err := mercury.Open(mercury.Options{
		Dir:              cfg.DataDir,
		Service:          service.NewHTTPMaterializer(cfg.Service.Timeout),
		Logger:           logger,
		DisableTextIndex: cfg.Text.Disabled,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

// contentTypeFor maps a file extension to the RDF content type the parser
// registry understands.
func contentTypeFor(path, explicit string) string {
	if explicit != "" {
		return explicit
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nt":
		return "application/n-triples"
	case ".nq":
		return "application/n-quads"
	case ".trig":
		return "application/trig"
	case ".rdf", ".xml":
		return "application/rdf+xml"
	case ".jsonld":
		return "application/ld+json"
	default:
		return "text/turtle"
	}
}

func loadCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "load <file>...",
		Short: "Load RDF files into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			total := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				n, err := db.Load(f, contentTypeFor(path, format))
				f.Close()
				if err != nil {
					return fmt.Errorf("load %s: %w", path, err)
				}
				total += n
				color.Green.Printf("loaded %s (%s quads)\n", path, humanize.Comma(int64(n)))
			}
			color.Green.Printf("done: %s quads total\n", humanize.Comma(int64(total)))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "RDF content type (default from file extension)")
	return cmd
}

// readQueryArg returns the query text: a literal argument, or the contents
// of a file when the argument starts with '@'.
func readQueryArg(arg string) (string, error) {
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return arg, nil
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sparql | @file>",
		Short: "Execute a SPARQL query or update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readQueryArg(args[0])
			if err != nil {
				return err
			}
			db, _, err := openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			res, err := db.Query(context.Background(), src)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	return cmd
}

func printResult(res *mercury.Result) {
	switch res.Type {
	case parser.QueryAsk:
		fmt.Println(res.Bool)
	case parser.QueryConstruct, parser.QueryDescribe:
		for _, t := range res.Triples {
			fmt.Println(t.String())
		}
	case parser.QueryUpdate:
		color.Green.Printf("inserted %d, deleted %d\n", res.Inserted, res.Deleted)
	default:
		printTable(res)
	}
}

// printTable renders SELECT rows as a fixed-width ASCII table.
func printTable(res *mercury.Result) {
	widths := make([]int, len(res.Vars))
	cells := make([][]string, len(res.Rows))
	for i, v := range res.Vars {
		widths[i] = len(v) + 1
	}
	for r, row := range res.Rows {
		cells[r] = make([]string, len(res.Vars))
		for i, v := range res.Vars {
			text := ""
			if term, ok := row[v]; ok {
				text = termText(term)
			}
			cells[r][i] = text
			if len(text) > widths[i] {
				widths[i] = len(text)
			}
		}
	}
	for i, v := range res.Vars {
		color.Cyan.Printf("%-*s", widths[i]+2, "?"+v)
	}
	fmt.Println()
	for _, row := range cells {
		for i, cell := range row {
			fmt.Printf("%-*s", widths[i]+2, cell)
		}
		fmt.Println()
	}
	color.Gray.Printf("%d rows\n", len(res.Rows))
}

func termText(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return "<" + v.IRI + ">"
	case *rdf.BlankNode:
		return "_:" + v.ID
	case *rdf.Literal:
		return v.String()
	default:
		return t.String()
	}
}

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <sparql | @file>",
		Short: "Show the execution plan for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readQueryArg(args[0])
			if err != nil {
				return err
			}
			db, _, err := openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			plan, err := db.Explain(src)
			if err != nil {
				return err
			}
			fmt.Print(plan)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP SPARQL endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB(false)
			if err != nil {
				return err
			}
			defer db.Close()
			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.New(db, server.Options{
				Addr:           addr,
				Logger:         obs.NewLogger(cfg.Log.Level, false),
				RequestTimeout: cfg.Server.RequestTimeout,
			})
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			stats, err := db.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("quads:       %s\n", humanize.Comma(int64(stats.QuadCount)))
			fmt.Printf("atoms:       %s\n", humanize.Comma(int64(stats.AtomCount)))
			fmt.Printf("atom bytes:  %s\n", humanize.Bytes(stats.AtomBytes))
			fmt.Printf("index bytes: %s\n", humanize.Bytes(stats.IndexSize))
			return nil
		},
	}
}

// ruleSetFor maps config/CLI rule names onto the reasoner bitmap.
func ruleSetFor(names []string) reasoner.RuleSet {
	var rules reasoner.RuleSet
	for _, name := range names {
		switch strings.ToLower(name) {
		case "rdfs":
			rules |= reasoner.RuleSetRDFS
		case "all":
			rules |= reasoner.RuleSetAll
		case "subclass":
			rules |= reasoner.RdfsSubClass
		case "subproperty":
			rules |= reasoner.RdfsSubProperty
		case "domain":
			rules |= reasoner.RdfsDomain
		case "range":
			rules |= reasoner.RdfsRange
		case "transitive":
			rules |= reasoner.OwlTransitive
		case "symmetric":
			rules |= reasoner.OwlSymmetric
		case "inverse":
			rules |= reasoner.OwlInverse
		case "sameas":
			rules |= reasoner.OwlSameAs
		case "equivalentclass":
			rules |= reasoner.OwlEquivalentClass
		case "equivalentproperty":
			rules |= reasoner.OwlEquivalentProperty
		}
	}
	if rules == 0 {
		rules = reasoner.RuleSetRDFS
	}
	return rules
}

func reasonCmd() *cobra.Command {
	var rules []string
	var maxIters int
	cmd := &cobra.Command{
		Use:   "reason",
		Short: "Materialize RDFS/OWL entailments into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()
			if len(rules) == 0 {
				rules = cfg.Reasoner.Rules
			}
			if maxIters == 0 {
				maxIters = cfg.Reasoner.MaxIters
			}
			n, err := db.Reason(ruleSetFor(rules), maxIters)
			if err != nil {
				return err
			}
			color.Green.Printf("inferred %s quads\n", humanize.Comma(int64(n)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&rules, "rules", nil, "rule sets: rdfs, all, or individual rule names")
	cmd.Flags().IntVar(&maxIters, "max-iters", 0, "fixed-point iteration cap")
	return cmd
}
