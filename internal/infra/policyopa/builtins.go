package policyopa

import "github.com/open-policy-agent/opa/ast"

// Permission modules only need membership and string helpers.
var allowedBuiltins = map[string]struct{}{
	"assign":            {},
	"concat":            {},
	"count":             {},
	"endswith":          {},
	"eq":                {},
	"equal":             {},
	"internal.member_2": {},
	"internal.member_3": {},
	"lower":             {},
	"neq":               {},
	"object.get":        {},
	"split":             {},
	"sprintf":           {},
	"startswith":        {},
	"trim":              {},
	"upper":             {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
