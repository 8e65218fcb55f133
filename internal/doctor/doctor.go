// Package doctor implements C10: operational health checks over a live
// typecore deployment, following the teacher's internal/doctor
// Report/CheckResult/Status shape so a CLI command can print the same
// kind of categorized, fix-hinted output.
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/storage/postgres"
	"github.com/pthm/typecore/pkg/typesystem"
)

// Status is the outcome of one health check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult is the outcome of a single named health check.
type CheckResult struct {
	Category string
	Name     string
	Status   Status
	Message  string
	Details  string
	FixHint  string
}

// Report collects every CheckResult from a Run.
type Report struct {
	Checks   []CheckResult
	Passed   int
	Warnings int
	Errors   int
}

func (r *Report) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// HasErrors reports whether any check failed.
func (r *Report) HasErrors() bool { return r.Errors > 0 }

// Print writes the report grouped by category.
func (r *Report) Print(w io.Writer, verbose bool) {
	categories := make(map[string][]CheckResult)
	var order []string
	for _, c := range r.Checks {
		if _, ok := categories[c.Category]; !ok {
			order = append(order, c.Category)
		}
		categories[c.Category] = append(categories[c.Category], c)
	}
	for _, cat := range order {
		fmt.Fprintf(w, "\n%s\n", cat)
		for _, c := range categories[cat] {
			fmt.Fprintf(w, "  %s %s\n", c.Status.Symbol(), c.Message)
			if verbose && c.Details != "" {
				for _, line := range strings.Split(c.Details, "\n") {
					fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if c.Status != StatusPass && c.FixHint != "" {
				fmt.Fprintf(w, "      Fix: %s\n", c.FixHint)
			}
		}
	}
	fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n", r.Passed, r.Warnings, r.Errors)
}

// Doctor runs health checks against a live Postgres-backed deployment.
// It takes both a raw *sql.DB (lib/pq, used only for cheap connectivity
// and information_schema probes the way the teacher's doctor checks for
// missing tables/functions) and the pgx-backed Store that actually
// serves the Snapshot contract, since the two concerns — "can anything
// reach the database at all" and "does the Snapshot/TypeManager stack
// behave" — want different levels of the driver stack.
type Doctor struct {
	db    *sql.DB
	store *postgres.Store
}

// New constructs a Doctor.
func New(db *sql.DB, store *postgres.Store) *Doctor {
	return &Doctor{db: db, store: store}
}

// Run executes every check and returns the assembled Report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	d.checkConnectivity(ctx, report)
	d.checkBootstrapTable(ctx, report)
	d.checkSchemaLoads(ctx, report)
	d.checkRelationIndexes(ctx, report)
	return report, nil
}

func (d *Doctor) checkConnectivity(ctx context.Context, r *Report) {
	if err := d.db.PingContext(ctx); err != nil {
		r.add(CheckResult{
			Category: "connectivity", Name: "ping", Status: StatusFail,
			Message: "cannot reach database", Details: err.Error(),
			FixHint: "check database.url / database.host and network access",
		})
		return
	}
	r.add(CheckResult{Category: "connectivity", Name: "ping", Status: StatusPass, Message: "database reachable"})
}

func (d *Doctor) checkBootstrapTable(ctx context.Context, r *Report) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'typecore_kv')",
	).Scan(&exists)
	if err != nil {
		r.add(CheckResult{
			Category: "schema", Name: "bootstrap-table", Status: StatusFail,
			Message: "could not check for typecore_kv table", Details: err.Error(),
		})
		return
	}
	if !exists {
		r.add(CheckResult{
			Category: "schema", Name: "bootstrap-table", Status: StatusFail,
			Message: "typecore_kv table not found",
			FixHint: "run 'typecore migrate' to bootstrap the backing store",
		})
		return
	}
	r.add(CheckResult{Category: "schema", Name: "bootstrap-table", Status: StatusPass, Message: "typecore_kv table present"})
}

func (d *Doctor) checkSchemaLoads(ctx context.Context, r *Report) {
	snap, err := d.store.OpenReadOnly(ctx)
	if err != nil {
		r.add(CheckResult{Category: "schema", Name: "load", Status: StatusFail, Message: "could not open snapshot", Details: err.Error()})
		return
	}
	mgr, err := typesystem.Load(ctx, snap)
	if err != nil {
		r.add(CheckResult{
			Category: "schema", Name: "load", Status: StatusFail,
			Message: "schema failed to load", Details: err.Error(),
			FixHint: "run 'typecore migrate' to (re)apply the schema manifest",
		})
		return
	}
	counts := fmt.Sprintf("entities=%d relations=%d attributes=%d",
		len(mgr.GetKindTypes(engine.KindEntity)),
		len(mgr.GetKindTypes(engine.KindRelation)),
		len(mgr.GetKindTypes(engine.KindAttribute)),
	)
	if len(mgr.GetKindTypes(engine.KindEntity))+len(mgr.GetKindTypes(engine.KindRelation)) == 0 {
		r.add(CheckResult{
			Category: "schema", Name: "load", Status: StatusWarn,
			Message: "schema loaded but declares no entity or relation types", Details: counts,
			FixHint: "run 'typecore migrate' with a non-empty manifest",
		})
		return
	}
	r.add(CheckResult{Category: "schema", Name: "load", Status: StatusPass, Message: "schema loaded", Details: counts})
}

func (d *Doctor) checkRelationIndexes(ctx context.Context, r *Report) {
	snap, err := d.store.OpenReadOnly(ctx)
	if err != nil {
		r.add(CheckResult{Category: "index", Name: "relation-index", Status: StatusFail, Message: "could not open snapshot", Details: err.Error()})
		return
	}
	mgr, err := typesystem.Load(ctx, snap)
	if err != nil {
		// Already reported by checkSchemaLoads; avoid duplicate noise.
		return
	}
	var enabled []string
	for _, rel := range mgr.GetKindTypes(engine.KindRelation) {
		if mgr.RelationIndexAvailable(rel) {
			enabled = append(enabled, rel.Label)
		}
	}
	if len(enabled) == 0 {
		r.add(CheckResult{Category: "index", Name: "relation-index", Status: StatusPass, Message: "no relation types have the all-pairs index enabled"})
		return
	}
	r.add(CheckResult{
		Category: "index", Name: "relation-index", Status: StatusPass,
		Message: fmt.Sprintf("%d relation type(s) with the all-pairs index enabled", len(enabled)),
		Details: strings.Join(enabled, ", "),
	})
}
