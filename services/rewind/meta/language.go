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
	"bytes"
	"path"
	"strings"
	"unicode/utf8"
)

// Canonical language names. Lowercase, stable across releases; they appear
// in persisted metadata records.
const (
	LangPython     = "python"
	LangGo         = "go"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangGoMod      = "gomod"
	LangShell      = "shell"
	LangMarkdown   = "markdown"
	LangJSON       = "json"
	LangYAML       = "yaml"
	LangTOML       = "toml"
	LangHTML       = "html"
	LangCSS        = "css"
	LangSQL        = "sql"
	LangRust       = "rust"
	LangDockerfile = "dockerfile"
	LangMake       = "make"
	LangText       = "text"
	LangBinary     = "binary"
)

var extensionLanguages = map[string]string{
	".py":   LangPython,
	".pyi":  LangPython,
	".go":   LangGo,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".ts":   LangTypeScript,
	".mts":  LangTypeScript,
	".cts":  LangTypeScript,
	".tsx":  LangTSX,
	".sh":   LangShell,
	".bash": LangShell,
	".md":   LangMarkdown,
	".json": LangJSON,
	".yaml": LangYAML,
	".yml":  LangYAML,
	".toml": LangTOML,
	".html": LangHTML,
	".htm":  LangHTML,
	".css":  LangCSS,
	".sql":  LangSQL,
	".rs":   LangRust,
	".txt":  LangText,
}

var fileNameLanguages = map[string]string{
	"go.mod":     LangGoMod,
	"dockerfile": LangDockerfile,
	"makefile":   LangMake,
}

// DetectLanguage infers the language of a file. The file name decides when
// it can; otherwise the content is sniffed: shebang interpreters for
// scripts, byte patterns for binary data. Unrecognized readable content is
// plain text.
func DetectLanguage(filePath string, content []byte) string {
	base := strings.ToLower(path.Base(filePath))
	if lang, ok := fileNameLanguages[base]; ok {
		return lang
	}
	if lang, ok := extensionLanguages[strings.ToLower(path.Ext(filePath))]; ok {
		return lang
	}
	if lang := shebangLanguage(content); lang != "" {
		return lang
	}
	if isBinary(content) {
		return LangBinary
	}
	return LangText
}

// shebangLanguage maps an interpreter line to a language, or "".
func shebangLanguage(content []byte) string {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return ""
	}
	line := content
	if idx := bytes.IndexByte(content, '\n'); idx >= 0 {
		line = content[:idx]
	}
	interp := string(line)
	switch {
	case strings.Contains(interp, "python"):
		return LangPython
	case strings.Contains(interp, "node"):
		return LangJavaScript
	case strings.Contains(interp, "bash"), strings.Contains(interp, "/sh"),
		strings.Contains(interp, "env sh"):
		return LangShell
	default:
		return ""
	}
}

// isBinary reports whether content looks like binary data: a NUL byte in
// the leading window, or bytes that are not valid UTF-8.
func isBinary(content []byte) bool {
	window := content
	if len(window) > 8000 {
		window = window[:8000]
	}
	if bytes.IndexByte(window, 0x00) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}

// lineCommentMarker returns the line-comment prefix for a language, or ""
// when it has none (or none we track).
func lineCommentMarker(lang string) string {
	switch lang {
	case LangPython, LangShell, LangYAML, LangTOML, LangDockerfile, LangMake:
		return "#"
	case LangGo, LangJavaScript, LangTypeScript, LangTSX, LangRust:
		return "//"
	case LangSQL:
		return "--"
	default:
		return ""
	}
}
