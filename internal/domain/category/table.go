package category

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
)

var matchEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		ext.Strings(),
	)
	if err != nil {
		panic(fmt.Sprintf("category: build CEL env: %v", err))
	}
	matchEnv = env
}

// CompileMatch compiles a boolean match predicate such as
// `description.lowerAscii().contains("frete")`.
func CompileMatch(expr string) (cel.Program, error) {
	ast, iss := matchEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid match expression").
			WithDetail("match", expr).
			WithCause(iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, apperror.NewValidation("match expression must return bool").WithDetail("match", expr)
	}
	prg, err := matchEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program match expression: %w", err)
	}
	return prg, nil
}

// Table is an immutable, indexed snapshot of all mapping versions.
type Table struct {
	byCode   map[Code][]Mapping
	programs map[id.ID]cel.Program
}

var _ Resolver = (*Table)(nil)

// NewTable indexes mappings and compiles their predicates.
func NewTable(mappings []Mapping) (*Table, error) {
	t := &Table{
		byCode:   make(map[Code][]Mapping),
		programs: make(map[id.ID]cel.Program),
	}
	for _, m := range mappings {
		code := m.Category.Normalize()
		if strings.TrimSpace(m.Match) != "" {
			prg, err := CompileMatch(m.Match)
			if err != nil {
				return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
			}
			t.programs[m.ID] = prg
		}
		t.byCode[code] = append(t.byCode[code], m)
	}
	for code := range t.byCode {
		rows := t.byCode[code]
		// Newest version first; predicated rows win over catch-alls of the same date.
		sort.SliceStable(rows, func(i, j int) bool {
			if !rows[i].EffectiveFrom.Equal(rows[j].EffectiveFrom) {
				return rows[i].EffectiveFrom.After(rows[j].EffectiveFrom)
			}
			return rows[i].Match != "" && rows[j].Match == ""
		})
	}
	return t, nil
}

// Resolve returns the latest effective mapping for code whose predicate matches subject.
func (t *Table) Resolve(code Code, at time.Time, subject Subject) (Mapping, bool) {
	for _, m := range t.byCode[code.Normalize()] {
		if !m.EffectiveAt(at) {
			continue
		}
		if prg, ok := t.programs[m.ID]; ok && !matches(prg, subject) {
			continue
		}
		return m, true
	}
	return Mapping{}, false
}

// History returns every version of code, newest first.
func (t *Table) History(code Code) []Mapping {
	rows := t.byCode[code.Normalize()]
	out := make([]Mapping, len(rows))
	copy(out, rows)
	return out
}

// Codes lists known category codes in lexical order.
func (t *Table) Codes() []Code {
	codes := make([]Code, 0, len(t.byCode))
	for c := range t.byCode {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func matches(prg cel.Program, s Subject) bool {
	out, _, err := prg.Eval(map[string]any{
		"kind":        s.Kind,
		"description": s.Description,
		"amount":      s.Amount,
	})
	if err != nil {
		return false
	}
	v, ok := out.Value().(bool)
	return ok && v
}
