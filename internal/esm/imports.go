package esm

import (
	"strings"

	"github.com/tdewolff/parse/v2/js"
)

// ImportKind is the form of an import binding, e.g. `import x from` or
// `import * as x from`.
type ImportKind string

const (
	ImportNamed      ImportKind = "named"
	ImportDefault    ImportKind = "default"
	ImportNamespace  ImportKind = "namespace"
	ImportSideEffect ImportKind = "side-effect"
)

// Import is one binding introduced by a top-level import statement.
type Import struct {
	Kind     ImportKind
	Imported string
	Local    string
	Module   string
}

// Imports lists the import bindings of prog in source order.
func Imports(prog *js.AST) []Import {
	if prog == nil {
		return nil
	}
	var out []Import
	for _, stmt := range prog.List {
		s, ok := stmt.(*js.ImportStmt)
		if !ok {
			continue
		}
		module := strings.Trim(string(s.Module), `"'`)
		if s.Default != nil {
			out = append(out, Import{Kind: ImportDefault, Imported: "default", Local: string(s.Default), Module: module})
		}
		if s.Default == nil && s.List == nil {
			out = append(out, Import{Kind: ImportSideEffect, Module: module})
			continue
		}
		for _, alias := range s.List {
			if alias.Binding == nil {
				continue
			}
			if isStar(alias.Name) {
				out = append(out, Import{Kind: ImportNamespace, Imported: "*", Local: string(alias.Binding), Module: module})
				continue
			}
			imported := alias.Name
			if imported == nil {
				imported = alias.Binding
			}
			out = append(out, Import{Kind: ImportNamed, Imported: string(imported), Local: string(alias.Binding), Module: module})
		}
	}
	return out
}
