// Command mercury-bench is a micro-benchmark harness: it populates a
// throwaway store with synthetic data and times bulk load, point lookups,
// joins, and aggregate queries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mercurydb/mercury/pkg/mercury"
)

func main() {
	subjects := flag.Int("subjects", 1000, "number of synthetic subjects")
	flag.Parse()

	dir, err := os.MkdirTemp("", "mercury-bench")
	if err != nil {
		log.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	db, err := mercury.Open(mercury.Options{Dir: dir})
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer db.Close()

	var b strings.Builder
	for i := 0; i < *subjects; i++ {
		fmt.Fprintf(&b, "<http://bench.example/s%d> <http://bench.example/name> \"subject %d\" .\n", i, i)
		fmt.Fprintf(&b, "<http://bench.example/s%d> <http://bench.example/knows> <http://bench.example/s%d> .\n", i, (i+1)%*subjects)
	}

	start := time.Now()
	n, err := db.Load(strings.NewReader(b.String()), "application/n-triples")
	if err != nil {
		log.Fatalf("load: %v", err)
	}
	elapsed := time.Since(start)
	fmt.Printf("load: %s quads in %v (%s quads/s)\n",
		humanize.Comma(int64(n)), elapsed.Round(time.Millisecond),
		humanize.Comma(int64(float64(n)/elapsed.Seconds())))

	benchmarks := []struct {
		name  string
		query string
	}{
		{"point lookup", `SELECT ?o WHERE { <http://bench.example/s0> <http://bench.example/name> ?o }`},
		{"scan all", `SELECT ?s ?o WHERE { ?s <http://bench.example/name> ?o }`},
		{"join", `SELECT ?a ?n WHERE { ?a <http://bench.example/knows> ?b . ?b <http://bench.example/name> ?n }`},
		{"count", `SELECT (COUNT(*) AS ?n) WHERE { ?s ?p ?o }`},
	}
	for _, bm := range benchmarks {
		start := time.Now()
		res, err := db.Query(context.Background(), bm.query)
		if err != nil {
			log.Fatalf("%s: %v", bm.name, err)
		}
		fmt.Printf("%-14s %6d rows  %v\n", bm.name, len(res.Rows), time.Since(start).Round(time.Microsecond))
	}
}
