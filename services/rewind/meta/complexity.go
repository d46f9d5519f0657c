// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package meta

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// The complexity score is 1 + one point per control-flow construct (and per
// logical and/or operator) + the deepest control-flow nesting level. A file
// with no control flow scores exactly 1. The score is a coarse structural
// signal, not a strict cyclomatic number; its value is that it is
// deterministic and comparable across versions of the same file.

// grammarSpec binds a tree-sitter grammar to the node types that count as
// decisions in that language.
type grammarSpec struct {
	grammar   *sitter.Language
	decisions map[string]bool

	// operators are nodes that add a decision point but no nesting level
	// (boolean operators exposed as dedicated node types).
	operators map[string]bool

	// countLogicalOps adds a point per &&/|| in binary expressions, for
	// grammars that expose them as plain binary_expression nodes.
	countLogicalOps bool
}

var jsDecisions = map[string]bool{
	"if_statement":       true,
	"for_statement":      true,
	"for_in_statement":   true,
	"while_statement":    true,
	"do_statement":       true,
	"switch_case":        true,
	"catch_clause":       true,
	"ternary_expression": true,
}

var grammars = map[string]grammarSpec{
	LangPython: {
		grammar: python.GetLanguage(),
		decisions: map[string]bool{
			"if_statement":           true,
			"elif_clause":            true,
			"for_statement":          true,
			"while_statement":        true,
			"try_statement":          true,
			"except_clause":          true,
			"with_statement":         true,
			"conditional_expression": true,
			"match_statement":        true,
			"case_clause":            true,
		},
		operators: map[string]bool{"boolean_operator": true},
	},
	LangGo: {
		grammar: golang.GetLanguage(),
		decisions: map[string]bool{
			"if_statement":                true,
			"for_statement":               true,
			"expression_switch_statement": true,
			"type_switch_statement":       true,
			"select_statement":            true,
			"expression_case":             true,
			"type_case":                   true,
			"communication_case":          true,
		},
		countLogicalOps: true,
	},
	LangJavaScript: {
		grammar:         javascript.GetLanguage(),
		decisions:       jsDecisions,
		countLogicalOps: true,
	},
	LangTypeScript: {
		grammar:         typescript.GetLanguage(),
		decisions:       jsDecisions,
		countLogicalOps: true,
	},
	LangTSX: {
		grammar:         tsx.GetLanguage(),
		decisions:       jsDecisions,
		countLogicalOps: true,
	},
}

// hasAnalyzer reports whether a structural analyzer is wired in for lang.
func hasAnalyzer(lang string) bool {
	_, ok := grammars[lang]
	return ok
}

// analysis is the outcome of one structural pass.
type analysis struct {
	complexity *float64
	deps       []string
	incomplete bool
}

// analyzeSource parses content once and derives both the complexity score
// and the import list from the same tree. Trees with syntax errors still
// produce partial results, flagged incomplete.
func analyzeSource(ctx context.Context, lang string, content []byte) analysis {
	spec, ok := grammars[lang]
	if !ok {
		return analysis{}
	}

	// A fresh parser per call keeps this safe for concurrent use.
	parser := sitter.NewParser()
	parser.SetLanguage(spec.grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return analysis{incomplete: true}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return analysis{incomplete: true}
	}

	w := &walker{spec: spec, content: content}
	w.walk(root, 0)

	score := float64(1 + w.decisions + w.maxDepth)
	return analysis{
		complexity: &score,
		deps:       collectDeps(lang, root, content),
		incomplete: root.HasError(),
	}
}

type walker struct {
	spec      grammarSpec
	content   []byte
	decisions int
	maxDepth  int
}

func (w *walker) walk(node *sitter.Node, depth int) {
	if node == nil {
		return
	}

	d := depth
	t := node.Type()
	switch {
	case w.spec.decisions[t]:
		w.decisions++
		d++
		if d > w.maxDepth {
			w.maxDepth = d
		}
	case w.spec.operators[t], w.isLogicalOp(node, t):
		// Operators add a decision point but no nesting level.
		w.decisions++
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), d)
	}
}

func (w *walker) isLogicalOp(node *sitter.Node, nodeType string) bool {
	if !w.spec.countLogicalOps || nodeType != "binary_expression" {
		return false
	}
	op := node.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	switch string(w.content[op.StartByte():op.EndByte()]) {
	case "&&", "||":
		return true
	default:
		return false
	}
}
