package engine

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

type customRules struct {
	EligibilityExpr string `json:"eligibility_expr"`
	DecisionExpr    string `json:"decision_expr"`
}

var newCustomRulesCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
}

var customEligibilityProgramCache sync.Map
var customDecisionProgramCache sync.Map

// evaluateCustomRules interprets data-driven CEL payloads. The eligibility
// expression (optional, defaults to eligible) must produce a bool; the
// decision expression must produce "allow" or "deny". Compiled programs are
// cached per expression.
func evaluateCustomRules(rules json.RawMessage, actx types.ActionContext, loc *time.Location) types.Outcome {
	var r customRules
	if err := json.Unmarshal(rules, &r); err != nil {
		return malformed("custom rules: " + err.Error())
	}
	if strings.TrimSpace(r.DecisionExpr) == "" {
		return malformed("custom rules: decision_expr required")
	}

	ctxMap := celContextMap(actx, loc)

	if strings.TrimSpace(r.EligibilityExpr) != "" {
		eligible, err := evalCELBool(r.EligibilityExpr, ctxMap)
		if err != nil {
			return malformed("custom rules: " + err.Error())
		}
		if !eligible {
			return types.Outcome{Status: types.OutcomeDeny, Detail: "eligibility not met"}
		}
	}

	decision, err := evalCELString(r.DecisionExpr, ctxMap)
	if err != nil {
		return malformed("custom rules: " + err.Error())
	}
	if decision == "allow" {
		return types.Outcome{Status: types.OutcomeAllow}
	}
	return types.Outcome{Status: types.OutcomeDeny}
}

func celContextMap(actx types.ActionContext, loc *time.Location) map[string]string {
	local := actx.Timestamp.In(loc)
	m := map[string]string{
		"action":     string(actx.Action),
		"timestamp":  actx.Timestamp.UTC().Format(time.RFC3339),
		"local_date": local.Format("2006-01-02"),
		"local_time": local.Format("15:04"),
		"weekday":    strings.ToLower(local.Weekday().String()[:3]),
	}
	for k, v := range actx.Meta {
		m[k] = v
	}
	return m
}

func evalCELBool(expr string, ctxMap map[string]string) (bool, error) {
	program, err := loadOrCompileCustomProgram(expr, cel.BoolType, &customEligibilityProgramCache)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("eligibility expression did not yield bool")
	}
	return v, nil
}

func evalCELString(expr string, ctxMap map[string]string) (string, error) {
	program, err := loadOrCompileCustomProgram(expr, cel.StringType, &customDecisionProgramCache)
	if err != nil {
		return "", err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return "", err
	}
	v, ok := out.Value().(string)
	if !ok {
		return "", errors.New("decision expression did not yield string")
	}
	return strings.ToLower(strings.TrimSpace(v)), nil
}

func loadOrCompileCustomProgram(expr string, outputType *cel.Type, cache *sync.Map) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := cache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newCustomRulesCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != outputType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	cache.Store(expr, program)
	return program, nil
}
