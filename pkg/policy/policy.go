// Package policy lets compliance staff attach extra advisory rules to
// screening without a code change. Rules are CEL expressions over the
// subject snapshot; a rule that evaluates to true emits its configured
// finding. Policy findings are advisory by construction: the gate engine
// strips any blocking bit before persistence.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/FTHTrading/boutique-sub000/pkg/screening"
)

// Rule is one staff-authored advisory rule.
type Rule struct {
	Name           string             `json:"name" yaml:"name"`
	AppliesTo      string             `json:"applies_to" yaml:"applies_to"` // deal | instrument | proposal | *
	Expression     string             `json:"expression" yaml:"expression"`
	Flag           screening.FlagType `json:"flag_type" yaml:"flag_type"`
	Severity       string             `json:"severity" yaml:"severity"`
	Message        string             `json:"message" yaml:"message"`
	Recommendation string             `json:"recommendation" yaml:"recommendation"`
}

// Advisor compiles and evaluates advisory rules. Compiled programs are
// cached per expression.
type Advisor struct {
	env   *cel.Env
	rules []Rule

	mu    sync.RWMutex
	cache map[string]cel.Program

	logger *slog.Logger
}

// NewAdvisor creates an advisor with the standard environment: the
// subject snapshot as a dynamic map plus its kind.
func NewAdvisor(rules []Rule) (*Advisor, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.DynType),
		cel.Variable("kind", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}
	return &Advisor{
		env:    env,
		rules:  rules,
		cache:  make(map[string]cel.Program),
		logger: slog.Default().With("component", "policy"),
	}, nil
}

// Advise evaluates every applicable rule against the subject map. A rule
// that fails to compile or evaluate yields a LOW evaluation-error
// finding rather than aborting the run.
func (a *Advisor) Advise(ctx context.Context, kind string, subject map[string]interface{}) []screening.Finding {
	var out []screening.Finding
	input := map[string]interface{}{"subject": subject, "kind": kind}

	for _, rule := range a.rules {
		if rule.AppliesTo != "*" && rule.AppliesTo != kind {
			continue
		}
		matched, err := a.evaluate(rule.Expression, input)
		if err != nil {
			a.logger.Warn("policy rule evaluation failed", "rule", rule.Name, "error", err)
			out = append(out, screening.Finding{
				Type:                screening.FlagDocumentation,
				Severity:            screening.SeverityLow,
				Message:             fmt.Sprintf("policy rule %q could not be evaluated", rule.Name),
				Recommendation:      "Ask compliance to review the rule expression",
				RequiresHumanReview: true,
				Metadata:            map[string]interface{}{"rule": rule.Name, "error": err.Error()},
			})
			continue
		}
		if !matched {
			continue
		}
		out = append(out, screening.Finding{
			Type:                rule.Flag,
			Severity:            screening.ParseSeverity(rule.Severity),
			Message:             rule.Message,
			Recommendation:      rule.Recommendation,
			RequiresHumanReview: true,
			Metadata:            map[string]interface{}{"rule": rule.Name},
		})
	}
	return out
}

func (a *Advisor) evaluate(expr string, input map[string]interface{}) (bool, error) {
	prg, err := a.program(expr)
	if err != nil {
		return false, err
	}
	val, _, err := prg.Eval(input)
	if err != nil {
		return false, err
	}
	matched, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not produce a boolean")
	}
	return matched, nil
}

func (a *Advisor) program(expr string) (cel.Program, error) {
	a.mu.RLock()
	prg, ok := a.cache[expr]
	a.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := a.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	a.mu.Lock()
	a.cache[expr] = prg
	a.mu.Unlock()
	return prg, nil
}
