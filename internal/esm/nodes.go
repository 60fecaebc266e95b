package esm

import (
	"fmt"
	"strings"

	"github.com/tdewolff/parse/v2/js"
)

// namespaceExpr builds the member expression for a dotted global name such
// as "window.CatalystElements".
func namespaceExpr(ns string) js.IExpr {
	parts := strings.Split(ns, ".")
	var expr js.IExpr = &js.Var{Data: []byte(parts[0])}
	for _, p := range parts[1:] {
		expr = &js.DotExpr{X: expr, Y: &js.LiteralExpr{TokenType: js.IdentifierToken, Data: []byte(p)}}
	}
	return expr
}

func validateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	for _, p := range strings.Split(ns, ".") {
		if !js.AsIdentifierName([]byte(p)) {
			return fmt.Errorf("invalid namespace %q: %q is not an identifier", ns, p)
		}
	}
	return nil
}

// member reads key off the namespace object. Quoted names (string import and
// export names) use computed access.
func member(ns string, key []byte) js.IExpr {
	if js.AsIdentifierName(key) {
		return &js.DotExpr{X: namespaceExpr(ns), Y: &js.LiteralExpr{TokenType: js.IdentifierToken, Data: key}}
	}
	return &js.IndexExpr{X: namespaceExpr(ns), Y: &js.LiteralExpr{TokenType: js.StringToken, Data: quote(key)}}
}

func quote(name []byte) []byte {
	if len(name) >= 2 && (name[0] == '"' || name[0] == '\'') && name[len(name)-1] == name[0] {
		return name
	}
	return []byte(fmt.Sprintf("%q", name))
}

// constBinding is `const local = NS.imported`.
func constBinding(ns string, imported, local []byte) js.IStmt {
	return &js.VarDecl{
		TokenType: js.ConstToken,
		List: []js.BindingElement{{
			Binding: &js.Var{Data: local},
			Default: member(ns, imported),
		}},
	}
}

// assignment is `NS.exported = value;`.
func assignment(ns string, exported []byte, value js.IExpr) js.IStmt {
	return &js.ExprStmt{Value: &js.BinaryExpr{
		Op: js.EqToken,
		X:  member(ns, exported),
		Y:  value,
	}}
}

func localRef(name []byte) js.IExpr {
	return &js.Var{Data: name}
}
