// Package guard statically scans the source tree for quarantined auth
// patterns. The single-session era left behind a class of bugs that keep
// trying to crawl back in through copy-paste: one shared login route for
// both realms, one shared session cookie, a realm-blind "require auth"
// gate, wildcard CORS, and ad-hoc role string comparisons in business
// logic. The scan runs as a regular test so a regression fails CI before
// it ships.
package guard

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
)

// Violation is one occurrence of a quarantined pattern.
type Violation struct {
	Pattern  string
	Position token.Position
	Detail   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Position, v.Pattern, v.Detail)
}

// Quarantined literals are assembled from parts so the guard never trips
// over its own definitions.
var (
	// The realm-blind login route of the legacy auth stack. Each realm
	// must expose its own route under /api/auth/customer or
	// /api/auth/admin.
	sharedLoginRoute = "/api/auth/" + "login"

	// Session cookie names that predate the split. Only the two
	// realm-scoped names are legal.
	legacyCookieNames = []string{
		"hh_" + "sess",
		"session" + "Id",
		"connect" + ".sid",
	}

	// Realm-blind gate identifiers. Authorization goes through
	// RequireCustomer or RequireAdmin, never a generic check.
	genericGateNames = []string{
		"Require" + "Auth",
		"require" + "Auth",
		"is" + "Authenticated",
	}

	corsOriginHeader = "Access-Control-Allow-" + "Origin"
)

// Scan walks every non-test Go file under root and returns all quarantined
// pattern occurrences. Directories named testdata and any path segment
// starting with "." or "_" are skipped, matching the go tool's own rules.
func Scan(root string) ([]Violation, error) {
	var violations []Violation

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		// The guard's own pattern table is exempt.
		if filepath.Base(path) == "guard.go" && strings.Contains(path, filepath.Join("internal", "guard")) {
			return nil
		}

		found, err := scanFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return violations, nil
}

func scanFile(path string) ([]Violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var violations []Violation
	report := func(node ast.Node, pattern, detail string) {
		violations = append(violations, Violation{
			Pattern:  pattern,
			Position: fset.Position(node.Pos()),
			Detail:   detail,
		})
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.BasicLit:
			checkLiteral(node, report)
		case *ast.FuncDecl:
			checkGateName(node.Name, node, report)
		case *ast.CallExpr:
			checkWildcardCORS(node, report)
		case *ast.BinaryExpr:
			checkRawRoleComparison(node, report)
		}
		return true
	})

	return violations, nil
}

func checkLiteral(lit *ast.BasicLit, report func(ast.Node, string, string)) {
	if lit.Kind != token.STRING {
		return
	}
	value, err := strconv.Unquote(lit.Value)
	if err != nil {
		return
	}

	if value == sharedLoginRoute {
		report(lit, "shared-login-route", "realm-blind login route; use the per-realm routes")
	}
	for _, name := range legacyCookieNames {
		if value == name {
			report(lit, "shared-session-cookie", "legacy session cookie name "+name)
		}
	}
}

func checkGateName(ident *ast.Ident, node ast.Node, report func(ast.Node, string, string)) {
	for _, name := range genericGateNames {
		if ident.Name == name {
			report(node, "generic-auth-gate", "realm-blind gate "+name+"; use RequireCustomer or RequireAdmin")
		}
	}
}

// checkWildcardCORS flags Header().Set(corsOriginHeader, "*") and its Add
// variant.
func checkWildcardCORS(call *ast.CallExpr, report func(ast.Node, string, string)) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || (sel.Sel.Name != "Set" && sel.Sel.Name != "Add") {
		return
	}
	if len(call.Args) != 2 {
		return
	}
	key, ok1 := stringArg(call.Args[0])
	val, ok2 := stringArg(call.Args[1])
	if ok1 && ok2 && strings.EqualFold(key, corsOriginHeader) && val == "*" {
		report(call, "wildcard-cors", "wildcard origin; allowed origins must be enumerated")
	}
}

// checkRawRoleComparison flags comparisons of a .Role selector against a
// raw string literal. Role checks belong to the gate middleware and use the
// typed constants.
func checkRawRoleComparison(expr *ast.BinaryExpr, report func(ast.Node, string, string)) {
	if expr.Op != token.EQL && expr.Op != token.NEQ {
		return
	}
	if isRoleSelector(expr.X) && isRoleString(expr.Y) || isRoleSelector(expr.Y) && isRoleString(expr.X) {
		report(expr, "raw-role-comparison", "compare against the typed role constants, inside a gate")
	}
}

func isRoleSelector(e ast.Expr) bool {
	sel, ok := e.(*ast.SelectorExpr)
	return ok && sel.Sel.Name == "Role"
}

func isRoleString(e ast.Expr) bool {
	s, ok := stringArg(e)
	return ok && (s == "admin" || s == "customer")
}

func stringArg(e ast.Expr) (string, bool) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	value, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return value, true
}
