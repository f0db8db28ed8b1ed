// Command validate checks a raw-record fixture end to end without a
// database: the source tables load, every line decodes, a dry run stays
// under an error budget, a second run is a pure update, and every stored
// document satisfies the store schema.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -jsonl data/mock/observations_011024.jsonl \
//	  -max-error-rate 0.05
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/weather-station-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/weather-station-etl/internal/config"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	"github.com/couchcryptid/weather-station-etl/internal/store/memory"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	fixture := flag.String("jsonl", "", "path to the JSONL fixture")
	tablesFile := flag.String("source-tables", "", "optional source tables YAML overlay")
	maxErrorRate := flag.Float64("max-error-rate", 0.05, "largest acceptable pre-load error rate")
	allowUndecodable := flag.Bool("allow-undecodable", false, "do not fail on malformed lines")
	flag.Parse()

	if *fixture == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *fixture, *tablesFile, *maxErrorRate, *allowUndecodable); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, fixturePath, tablesFile string, maxErrorRate float64, allowUndecodable bool) int {
	fmt.Fprintln(out, "=== Weather Fixture Integrity Validation ===")
	fmt.Fprintln(out)

	tables, err := config.LoadSourceTables(tablesFile)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load source tables: %v\n", err)
		return 1
	}
	batch, err := jsonl.ReadFile(fixturePath, "")
	if err != nil {
		fmt.Fprintf(out, "FATAL: load fixture: %v\n", err)
		return 1
	}

	schema := domain.NewStoreSchema(tables)
	store := memory.New(schema)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(store, pipeline.Options{Tables: tables}, logger, observability.NewMetricsForTesting())

	first, firstErr := p.Process(context.Background(), batch.Records, batch.Undecodable...)
	second, secondErr := p.Process(context.Background(), batch.Records)

	phases := []*phase{
		validateDecoding(batch, allowUndecodable),
		validateFirstRun(first, firstErr, maxErrorRate),
		validateReload(first, second, secondErr),
		validateStored(store.Snapshot(), schema),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, ph := range phases {
		status := "\033[32mPASS\033[0m"
		if !ph.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(ph.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", ph.name, status)
	}

	fmt.Fprintln(out)
	if first.PreLoad != nil {
		fmt.Fprintf(out, "Records: %d total, %d accepted, %d rejected, %d stored, %d warnings\n",
			first.PreLoad.Total, first.PreLoad.Accepted, first.PreLoad.Rejected, store.Len(), len(first.Warnings))
	}

	for _, ph := range phases {
		if ph.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", ph.name)
		for i, e := range ph.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateDecoding(batch jsonl.Result, allowUndecodable bool) *phase {
	p := &phase{name: "Phase 1: fixture decoding"}
	if len(batch.Records) == 0 {
		p.errorf("fixture holds no decodable records")
	}
	if allowUndecodable {
		return p
	}
	for _, rej := range batch.Undecodable {
		p.errorf("%s: %s", rej.Ref, rej.Detail)
	}
	return p
}

func validateFirstRun(report pipeline.RunReport, runErr error, maxErrorRate float64) *phase {
	p := &phase{name: "Phase 2: dry run"}
	if runErr != nil {
		p.errorf("run aborted after stage %s: %v", report.Stage, runErr)
		return p
	}
	pre, post := report.PreLoad, report.PostLoad
	if pre.ErrorRate > maxErrorRate {
		p.errorf("pre-load error rate %.3f exceeds %.3f (%v)", pre.ErrorRate, maxErrorRate, pre.RejectedByReason)
	}
	if post.Accepted+post.Rejected != pre.Total {
		p.errorf("post-load accounts for %d of %d records", post.Accepted+post.Rejected, pre.Total)
	}
	if got := post.Load.Inserted + post.Load.Updated + len(post.Load.Rejected); got < pre.Accepted {
		p.errorf("store reported %d outcomes for %d accepted records", got, pre.Accepted)
	}
	return p
}

func validateReload(first, second pipeline.RunReport, runErr error) *phase {
	p := &phase{name: "Phase 3: idempotent reload"}
	if runErr != nil {
		p.errorf("second run aborted: %v", runErr)
		return p
	}
	if first.PostLoad == nil {
		p.errorf("first run produced no post-load report")
		return p
	}
	if second.PostLoad.Load.Inserted != 0 {
		p.errorf("second run inserted %d documents, want 0", second.PostLoad.Load.Inserted)
	}
	want := first.PostLoad.Load.Inserted + first.PostLoad.Load.Updated
	if second.PostLoad.Load.Updated != want {
		p.errorf("second run updated %d documents, want %d", second.PostLoad.Load.Updated, want)
	}
	return p
}

func validateStored(stored []domain.Observation, schema domain.StoreSchema) *phase {
	p := &phase{name: "Phase 4: stored documents"}
	seen := make(map[domain.NaturalKey]string, len(stored))
	for _, o := range stored {
		if err := schema.Validate(o); err != nil {
			p.errorf("%s: %v", o.Ref, err)
		}
		if len(o.RecordHash) != 64 {
			p.errorf("%s: record hash %q is not a sha256 hex digest", o.Ref, o.RecordHash)
		}
		if prev, ok := seen[o.Key()]; ok {
			p.errorf("%s and %s share natural key %v", prev, o.Ref, o.Key())
		}
		seen[o.Key()] = o.Ref
		if o.Timestamp.Second() != 0 || o.Timestamp.Location().String() != "UTC" {
			p.errorf("%s: timestamp %s is not a UTC minute", o.Ref, o.Timestamp)
		}
	}
	return p
}
