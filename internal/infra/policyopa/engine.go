package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"coffeeshop/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const (
	defaultQuery = "data.coffeeshop.authz.result"

	codeMissingPermissionsClaim = "MISSING_PERMISSIONS_CLAIM"
	codePermissionNotFound      = "PERMISSION_NOT_FOUND"
)

//go:embed policy/permissions.rego
var defaultModule string

// Engine evaluates permission checks with a prepared Rego query.
type Engine struct {
	query rego.PreparedEvalQuery
}

type permissionResult struct {
	Allow bool   `json:"allow"`
	Code  string `json:"code"`
}

// NewEngine prepares the embedded permission module.
func NewEngine(ctx context.Context) (*Engine, error) {
	return newEngine(ctx, rego.Module("permissions.rego", defaultModule))
}

// NewEngineFromPath prepares every Rego file found under path instead of the
// embedded module. The query is the same.
func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("policy path is required")
	}
	return newEngine(ctx, rego.Load([]string{path}, nil))
}

func newEngine(ctx context.Context, source func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare permission policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Check(ctx context.Context, input domain.PermissionInput) error {
	if e == nil {
		return errors.New("policy engine is nil")
	}
	if input.Required == "" {
		return nil
	}
	if input.Permissions == nil {
		input.Permissions = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate permission policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return errors.New("empty policy result")
	}
	result, err := decodePermissionResult(results[0].Expressions[0].Value)
	if err != nil {
		return err
	}
	if result.Allow {
		return nil
	}
	if result.Code == codeMissingPermissionsClaim {
		return domain.MissingPermissionsError()
	}
	// Unknown deny codes fail closed.
	return domain.PermissionNotFoundError()
}

func decodePermissionResult(value any) (permissionResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return permissionResult{}, err
	}
	var result permissionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return permissionResult{}, fmt.Errorf("decode permission result: %w", err)
	}
	return result, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}

var _ domain.PermissionPolicy = (*Engine)(nil)
