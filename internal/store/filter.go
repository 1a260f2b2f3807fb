package store

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ClauseFilter selects which regulatory clauses a check run covers,
// using a CEL expression over clause attributes, e.g.
//
//	category == 'MORTGAGE' && risk_level == 'HIGH'
type ClauseFilter struct {
	expr    string
	program cel.Program
}

var filterEnv *cel.Env

func init() {
	var err error
	filterEnv, err = cel.NewEnv(
		cel.Variable("clause_id", cel.StringType),
		cel.Variable("regulation_name", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("threshold_count", cel.IntType),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create clause filter environment: %v", err))
	}
}

// CompileFilter compiles and validates a clause filter expression.
// The expression must evaluate to a boolean.
func CompileFilter(expr string) (*ClauseFilter, error) {
	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile clause filter: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("clause filter must return bool, got %s", ast.OutputType())
	}
	program, err := filterEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create clause filter program: %w", err)
	}
	return &ClauseFilter{expr: expr, program: program}, nil
}

// Expr returns the original expression for report metadata.
func (f *ClauseFilter) Expr() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match reports whether a rule passes the filter. A nil filter matches
// everything. Evaluation errors exclude the clause rather than aborting
// the run.
func (f *ClauseFilter) Match(rule *domain.Rule) bool {
	if f == nil {
		return true
	}
	out, _, err := f.program.Eval(map[string]any{
		"clause_id":       rule.ClauseID,
		"regulation_name": rule.RegulationName,
		"category":        rule.Category,
		"risk_level":      rule.RiskLevel,
		"threshold_count": int64(len(rule.Thresholds)),
	})
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// Apply returns the rules matching the filter, preserving input order.
func (f *ClauseFilter) Apply(rules []*domain.Rule) []*domain.Rule {
	if f == nil {
		return rules
	}
	out := make([]*domain.Rule, 0, len(rules))
	for _, r := range rules {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
