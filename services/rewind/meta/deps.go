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
	"slices"
	"sort"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/mod/modfile"
)

// Dependency extraction is best-effort: it reports what the syntax declares
// (imports, requires) and returns nothing rather than failing when the
// syntax cannot be read. Results are deduplicated and sorted.

// collectDeps extracts the import list for a parsed tree.
func collectDeps(lang string, root *sitter.Node, content []byte) []string {
	var deps []string
	switch lang {
	case LangPython:
		deps = pythonImports(root, content)
	case LangGo:
		deps = goImports(root, content)
	case LangJavaScript, LangTypeScript, LangTSX:
		deps = jsImports(root, content)
	}
	if len(deps) == 0 {
		return nil
	}
	sort.Strings(deps)
	return slices.Compact(deps)
}

// parseGoMod lists the direct module requirements of a go.mod file.
func parseGoMod(content []byte) ([]string, bool) {
	f, err := modfile.Parse("go.mod", content, nil)
	if err != nil {
		return nil, false
	}

	var deps []string
	for _, req := range f.Require {
		if req.Indirect {
			continue
		}
		deps = append(deps, req.Mod.Path)
	}
	sort.Strings(deps)
	return slices.Compact(deps), true
}

func walkTree(node *sitter.Node, visit func(*sitter.Node)) {
	if node == nil {
		return
	}
	visit(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(i), visit)
	}
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

// pythonImports collects "import a.b" and "from a.b import c" targets.
// Relative imports ("from . import x") carry no module path and are
// skipped.
func pythonImports(root *sitter.Node, content []byte) []string {
	var out []string
	walkTree(root, func(node *sitter.Node) {
		switch node.Type() {
		case "import_statement":
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				switch child.Type() {
				case "dotted_name":
					out = append(out, nodeText(child, content))
				case "aliased_import":
					if name := child.ChildByFieldName("name"); name != nil {
						out = append(out, nodeText(name, content))
					}
				}
			}
		case "import_from_statement":
			module := node.ChildByFieldName("module_name")
			if module != nil && module.Type() == "dotted_name" {
				out = append(out, nodeText(module, content))
			}
		}
	})
	return out
}

// goImports collects import paths from import specs.
func goImports(root *sitter.Node, content []byte) []string {
	var out []string
	walkTree(root, func(node *sitter.Node) {
		if node.Type() != "import_spec" {
			return
		}
		path := node.ChildByFieldName("path")
		if path == nil {
			return
		}
		if p, err := strconv.Unquote(nodeText(path, content)); err == nil && p != "" {
			out = append(out, p)
		}
	})
	return out
}

// jsImports collects ES module sources, re-export sources, and CommonJS
// require() targets.
func jsImports(root *sitter.Node, content []byte) []string {
	var out []string
	walkTree(root, func(node *sitter.Node) {
		switch node.Type() {
		case "import_statement", "export_statement":
			if src := node.ChildByFieldName("source"); src != nil {
				if s := stripStringQuotes(nodeText(src, content)); s != "" {
					out = append(out, s)
				}
			}
		case "call_expression":
			fn := node.ChildByFieldName("function")
			if fn == nil || fn.Type() != "identifier" || nodeText(fn, content) != "require" {
				return
			}
			args := node.ChildByFieldName("arguments")
			if args == nil {
				return
			}
			for i := 0; i < int(args.ChildCount()); i++ {
				arg := args.Child(i)
				if arg.Type() == "string" {
					if s := stripStringQuotes(nodeText(arg, content)); s != "" {
						out = append(out, s)
					}
					break
				}
			}
		}
	})
	return out
}

func stripStringQuotes(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
