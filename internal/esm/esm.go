// Package esm turns ES module code into plain global-scope script code.
//
// Static imports become const bindings read off a shared namespace object and
// named exports become assignments onto it:
//
//	import { Foo as Bar } from './foo.js';   ->  const Bar = NS.Foo;
//	export { a as x };                        ->  NS.x = a;
//	export function foo() {}                  ->  function foo() {}
//	                                              NS.foo = foo;
//
// The rewrite works on the tree produced by github.com/tdewolff/parse/v2/js and
// is a pure function of the program, the namespace name and the import rule.
package esm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// DefaultNamespace is used when Options.Namespace is empty.
const DefaultNamespace = "GlobalNamespace"

var errNilProgram = errors.New("esm: program is nil")

// Options controls how module linkage is rewritten.
type Options struct {
	// Namespace is the global object (possibly dotted, e.g.
	// "window.CatalystElements") that replaces module linkage.
	Namespace string

	// KeepImports leaves import statements in place for a downstream bundler.
	KeepImports bool

	// ImportRule, if set, is called with every imported name; a non-nil
	// error rejects the import.
	ImportRule func(name string) error
}

func (o Options) namespace() string {
	if strings.TrimSpace(o.Namespace) == "" {
		return DefaultNamespace
	}
	return strings.TrimSpace(o.Namespace)
}

// PrefixRule accepts imported names that start with prefix, ignoring case.
func PrefixRule(prefix string) func(string) error {
	lower := strings.ToLower(prefix)
	return func(name string) error {
		if strings.HasPrefix(strings.ToLower(strings.Trim(name, `"'`)), lower) {
			return nil
		}
		return fmt.Errorf("imported names must start with %q", prefix)
	}
}

// Parse parses module source.
func Parse(src string) (*js.AST, error) {
	prog, err := js.Parse(parse.NewInputString(src), js.Options{})
	if err != nil {
		return nil, fmt.Errorf("parse module: %w", err)
	}
	return prog, nil
}

// Render prints prog with the namespace initialization line in front.
func Render(prog *js.AST, namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s || {};\n", namespace, namespace)
	if prog != nil {
		prog.JS(&b)
	}
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// Transform parses src, rewrites it and renders the result.
func Transform(src string, opts Options) (string, error) {
	prog, err := Parse(src)
	if err != nil {
		return "", err
	}
	out, err := Rewrite(prog, opts)
	if err != nil {
		return "", err
	}
	return Render(out, opts.namespace()), nil
}

func nodeString(n js.INode) string {
	var b strings.Builder
	n.JS(&b)
	return b.String()
}
