// Package unify merges several bound views into one logical dataset view.
//
// Each participating source contributes one SELECT that projects every
// target field in the same order, either from a mapped expression or as a
// typed NULL, and the SELECTs are joined with UNION ALL.
package unify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

// Mapping maps a target field to a source expression. An empty expression
// means the field is absent for that source.
type Mapping map[string]string

// Input describes one unification.
type Input struct {
	// Name is the dataset name used for the unified view.
	Name string
	// TargetFields is the ordered output schema; empty means infer.
	TargetFields []string
	// Mappings is keyed by bound view name.
	Mappings map[string]Mapping
	// Views lists successfully bound views in binding order.
	Views []string
	// Columns holds the described columns of each bound view.
	Columns map[string][]engine.Column
}

// Result describes the unified view, if one was created.
type Result struct {
	View         string   `json:"view,omitempty"`
	Sources      []string `json:"sources"`
	TargetFields []string `json:"target_fields"`
	SQL          string   `json:"-"`
}

// defaultNullType types a target that no participant maps to a column.
const defaultNullType = "VARCHAR"

type participant struct {
	view    string
	mapping Mapping
	order   []string
	auto    bool
	columns map[string]engine.Column
}

// Plan resolves participants and builds the CREATE VIEW statement without
// touching the engine. A zero Result with no error means there is nothing
// to unify.
func Plan(in Input) (Result, error) {
	if err := engine.ValidateName(in.Name); err != nil {
		return Result{}, apperr.Wrap(apperr.Configuration, "invalid dataset name", err)
	}
	for _, v := range in.Views {
		if v == in.Name {
			return Result{}, apperr.Newf(apperr.Configuration, "dataset name %q collides with a source view", in.Name)
		}
	}

	parts := participants(in)
	if len(parts) == 0 {
		return Result{}, nil
	}

	for _, p := range parts {
		if p.auto {
			continue
		}
		for _, field := range p.order {
			expr := strings.TrimSpace(p.mapping[field])
			if expr == "" {
				continue
			}
			if _, ok := p.lookup(expr); ok {
				continue
			}
			if err := engine.ValidateExpression(expr); err != nil {
				return Result{}, apperr.Wrap(apperr.Configuration, fmt.Sprintf("invalid mapping for %s.%s", p.view, field), err)
			}
		}
	}

	targets := dedupe(in.TargetFields)
	if len(targets) == 0 {
		targets = parts[0].order
	}
	if len(targets) == 0 {
		return Result{}, nil
	}

	nullTypes := inferNullTypes(parts, targets)

	selects := make([]string, 0, len(parts))
	sources := make([]string, 0, len(parts))
	for _, p := range parts {
		selects = append(selects, projection(p, targets, nullTypes))
		sources = append(sources, p.view)
	}

	sql := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s",
		engine.QuoteIdent(in.Name), strings.Join(selects, "\nUNION ALL\n"))

	return Result{View: in.Name, Sources: sources, TargetFields: targets, SQL: sql}, nil
}

// Unify plans and creates the unified view on h.
func Unify(ctx context.Context, h *engine.Handle, in Input) (Result, error) {
	res, err := Plan(in)
	if err != nil || res.View == "" {
		return res, err
	}
	if err := h.Exec(ctx, res.SQL); err != nil {
		return Result{}, apperr.Wrap(apperr.Runtime, "create unified view "+in.Name, err)
	}
	return res, nil
}

func participants(in Input) []participant {
	var out []participant
	for _, view := range in.Views {
		cols := in.Columns[view]
		byName := make(map[string]engine.Column, len(cols))
		for _, c := range cols {
			byName[c.Name] = c
		}

		if m := in.Mappings[view]; hasExpression(m) {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out = append(out, participant{view: view, mapping: m, order: keys, columns: byName})
			continue
		}

		if len(cols) == 0 {
			continue
		}
		m := make(Mapping, len(cols))
		order := make([]string, 0, len(cols))
		for _, c := range cols {
			m[c.Name] = c.Name
			order = append(order, c.Name)
		}
		out = append(out, participant{view: view, mapping: m, order: order, auto: true, columns: byName})
	}
	return out
}

func hasExpression(m Mapping) bool {
	for _, expr := range m {
		if strings.TrimSpace(expr) != "" {
			return true
		}
	}
	return false
}

// inferNullTypes picks, for each target, the type of the first bare column
// any participant maps it to.
func inferNullTypes(parts []participant, targets []string) map[string]string {
	types := make(map[string]string, len(targets))
	for _, t := range targets {
		for _, p := range parts {
			expr := strings.TrimSpace(p.mapping[t])
			if expr == "" {
				continue
			}
			if c, ok := p.lookup(expr); ok && c.Type != "" {
				types[t] = c.Type
				break
			}
		}
	}
	return types
}

func (p participant) lookup(expr string) (engine.Column, bool) {
	if c, ok := p.columns[expr]; ok {
		return c, true
	}
	for name, c := range p.columns {
		if strings.EqualFold(name, expr) {
			return c, true
		}
	}
	return engine.Column{}, false
}

func projection(p participant, targets []string, nullTypes map[string]string) string {
	items := make([]string, 0, len(targets))
	for _, t := range targets {
		alias := engine.QuoteIdent(t)
		expr := strings.TrimSpace(p.mapping[t])
		switch {
		case expr == "":
			typ := nullTypes[t]
			if typ == "" {
				typ = defaultNullType
			}
			items = append(items, fmt.Sprintf("CAST(NULL AS %s) AS %s", typ, alias))
		default:
			if c, ok := p.lookup(expr); ok {
				items = append(items, engine.QuoteIdent(c.Name)+" AS "+alias)
			} else {
				items = append(items, "("+expr+") AS "+alias)
			}
		}
	}
	return "SELECT " + strings.Join(items, ", ") + " FROM " + engine.QuoteIdent(p.view)
}

func dedupe(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
