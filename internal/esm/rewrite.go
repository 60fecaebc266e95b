package esm

import (
	"maps"

	"github.com/tdewolff/parse/v2/js"
)

// builder is the fold state of a rewrite. Every step returns a new value;
// the body slice and the exported set are never shared with a previous step
// that is later modified.
type builder struct {
	body []js.IStmt
	// offset is how far statements have shifted relative to their index in
	// the source body, accumulated over every prior replacement.
	offset   int
	exported map[string]struct{}
}

func newBuilder(stmts []js.IStmt) builder {
	body := make([]js.IStmt, len(stmts))
	copy(body, stmts)
	return builder{body: body, exported: map[string]struct{}{}}
}

// replace swaps the statement found at source index i for repl.
func (b builder) replace(i int, repl []js.IStmt) builder {
	at := i + b.offset
	body := make([]js.IStmt, 0, len(b.body)-1+len(repl))
	body = append(body, b.body[:at]...)
	body = append(body, repl...)
	body = append(body, b.body[at+1:]...)
	return builder{body: body, offset: b.offset + len(repl) - 1, exported: b.exported}
}

// claim records name as exported. It reports false when an earlier export
// already claimed it; the first claim wins.
func (b builder) claim(name []byte) (builder, bool) {
	if _, ok := b.exported[string(name)]; ok {
		return b, false
	}
	next := maps.Clone(b.exported)
	next[string(name)] = struct{}{}
	b.exported = next
	return b, true
}

// Rewrite replaces static import/export statements of prog with reads and
// writes of the namespace object. prog is not modified; on error no program
// is returned.
func Rewrite(prog *js.AST, opts Options) (*js.AST, error) {
	if prog == nil {
		return nil, errNilProgram
	}
	ns := opts.namespace()
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}

	b := newBuilder(prog.List)
	for i, stmt := range prog.List {
		var (
			repl []js.IStmt
			err  error
		)
		switch s := stmt.(type) {
		case *js.ImportStmt:
			if opts.KeepImports {
				continue
			}
			repl, err = rewriteImport(s, ns, opts.ImportRule)
		case *js.ExportStmt:
			b, repl, err = b.rewriteExport(s, ns)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		b = b.replace(i, repl)
	}

	out := &js.AST{}
	out.BlockStmt = js.BlockStmt{List: b.body, Scope: prog.Scope}
	return out, nil
}

func rewriteImport(s *js.ImportStmt, ns string, rule func(string) error) ([]js.IStmt, error) {
	if s.Default != nil {
		return nil, importError(string(s.Default), "default imports are not supported, use a named import")
	}

	var repl []js.IStmt
	for _, alias := range s.List {
		if alias.Binding == nil {
			// trailing comma in the specifier list
			continue
		}
		if isStar(alias.Name) {
			return nil, importError(string(alias.Binding), "namespace imports are not supported, use named imports")
		}
		imported, local := alias.Name, alias.Binding
		if imported == nil {
			imported = local
		}
		if rule != nil {
			if err := rule(string(imported)); err != nil {
				return nil, importError(string(imported), err.Error())
			}
		}
		repl = append(repl, constBinding(ns, imported, local))
	}
	return repl, nil
}

func (b builder) rewriteExport(s *js.ExportStmt, ns string) (builder, []js.IStmt, error) {
	if s.Default {
		return b, nil, exportError("default", "default exports are not supported, use a named export")
	}
	if s.Decl != nil {
		return b.rewriteExportDecl(s.Decl, ns)
	}

	var repl []js.IStmt
	for _, alias := range s.List {
		if alias.Binding == nil {
			continue
		}
		if isStar(alias.Name) || (alias.Name == nil && isStar(alias.Binding)) {
			return b, nil, exportError(string(alias.Binding), "star re-exports are not supported")
		}
		local, exported := alias.Name, alias.Binding
		if local == nil {
			local = exported
		}

		var ok bool
		if b, ok = b.claim(exported); !ok {
			continue
		}

		var value js.IExpr
		if s.Module != nil {
			// Re-exported names live on the namespace object as well.
			value = member(ns, local)
		} else {
			value = localRef(local)
		}
		repl = append(repl, assignment(ns, exported, value))
	}
	return b, repl, nil
}

func (b builder) rewriteExportDecl(decl js.IExpr, ns string) (builder, []js.IStmt, error) {
	stmt, ok := decl.(js.IStmt)
	if !ok {
		return b, nil, exportError("", "exported declaration is not a statement")
	}

	names, err := boundNames(decl)
	if err != nil {
		return b, nil, err
	}

	repl := []js.IStmt{stmt}
	for _, name := range names {
		var claimed bool
		if b, claimed = b.claim(name); !claimed {
			continue
		}
		repl = append(repl, assignment(ns, name, localRef(name)))
	}
	return b, repl, nil
}

func boundNames(decl js.IExpr) ([][]byte, error) {
	switch d := decl.(type) {
	case *js.FuncDecl:
		if d.Name == nil {
			return nil, exportError("", "exported function has no name")
		}
		return [][]byte{d.Name.Name()}, nil
	case *js.ClassDecl:
		if d.Name == nil {
			return nil, exportError("", "exported class has no name")
		}
		return [][]byte{d.Name.Name()}, nil
	case *js.VarDecl:
		names := make([][]byte, 0, len(d.List))
		for _, el := range d.List {
			v, ok := el.Binding.(*js.Var)
			if !ok {
				name := ""
				if el.Binding != nil {
					name = nodeString(el.Binding)
				}
				return nil, exportError(name, "only simple identifier bindings can be exported")
			}
			names = append(names, v.Name())
		}
		return names, nil
	default:
		return nil, exportError("", "unsupported exported declaration")
	}
}

func isStar(b []byte) bool {
	return len(b) == 1 && b[0] == '*'
}
