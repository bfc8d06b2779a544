// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mathtext normalizes the math markup AI providers emit.
//
// Providers are inconsistent about LaTeX delimiters: some answers use
// \[..\] and \(..\), some drop delimiters around \frac entirely, and
// some emit \frac with unbraced arguments (\frac12, \frac\pi2).
// Markdown renderers want uniform $..$ / $$..$$ delimiters, so the
// renderer runs every assistant message through Normalize first.
//
// The pipeline, in order:
//
//  1. Repair \frac arguments into braced form.
//  2. \[..\]   -> $$..$$
//  3. \(..\)   -> $..$
//  4. aligned/cases environments -> $$-wrapped display blocks
//  5. Wrap bare inline constructs (\frac, \sqrt, operators, greek
//     letters) in $..$ when not already adjacent to a delimiter.
//  6. Unescape \$.
//
// Pure functions, no I/O.
package mathtext

import (
	"regexp"
	"strings"
)

// =============================================================================
// Patterns
// =============================================================================

var (
	displayRe = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
	inlineRe  = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)

	// RE2 has no backreferences, so each environment gets its own
	// pattern.
	alignedRe = regexp.MustCompile(`(?s)\\begin\{aligned\}(.*?)\\end\{aligned\}`)
	casesRe   = regexp.MustCompile(`(?s)\\begin\{cases\}(.*?)\\end\{cases\}`)

	escapedDollarRe = regexp.MustCompile(`\\\$`)
)

// inlineMathRes matches constructs that should render as inline math
// even when the provider forgot the delimiters. Order matters: the
// alternations mirror how providers most commonly emit them.
var inlineMathRes = []*regexp.Regexp{
	regexp.MustCompile(`\\frac\{(?:[^{}]|\{[^{}]*\})+\}\{(?:[^{}]|\{[^{}]*\})+\}`),
	regexp.MustCompile(`\\sqrt\{(?:[^{}]|\{[^{}]*\})+\}`),
	regexp.MustCompile(`\\lim_\{(?:[^{}]|\{[^{}]*\})+\}`),
	regexp.MustCompile(`\\sum_\{(?:[^{}]|\{[^{}]*\})+\}\^\{(?:[^{}]|\{[^{}]*\})+\}`),
	regexp.MustCompile(`\\int_\{(?:[^{}]|\{[^{}]*\})+\}\^\{(?:[^{}]|\{[^{}]*\})+\}`),
	regexp.MustCompile(`\\partial`),
	regexp.MustCompile(`\\nabla`),
	regexp.MustCompile(`\\alpha|\\beta|\\gamma|\\theta|\\pi`),
	regexp.MustCompile(`\\sin[^\s,.;:)]*`),
	regexp.MustCompile(`\\cos[^\s,.;:)]*`),
	regexp.MustCompile(`\\tan[^\s,.;:)]*`),
	regexp.MustCompile(`\\log[^\s,.;:)]*`),
	regexp.MustCompile(`\\ln[^\s,.;:)]*`),
	regexp.MustCompile(`\\cdot|\\cdots|\\ldots|\\times|\\leq|\\geq|\\neq|\\infty`),
}

// =============================================================================
// Normalize
// =============================================================================

// Normalize rewrites a message's math markup into uniform dollar
// delimiters. Empty input is returned unchanged.
func Normalize(text string) string {
	if text == "" {
		return text
	}

	normalized := normalizeFractions(text)

	normalized = displayRe.ReplaceAllStringFunc(normalized, func(m string) string {
		inner := displayRe.FindStringSubmatch(m)[1]
		return "$$" + strings.TrimSpace(inner) + "$$"
	})

	normalized = inlineRe.ReplaceAllStringFunc(normalized, func(m string) string {
		inner := inlineRe.FindStringSubmatch(m)[1]
		return "$" + strings.TrimSpace(inner) + "$"
	})

	normalized = alignedRe.ReplaceAllString(normalized, `$$$$\begin{aligned}$1\end{aligned}$$$$`)
	normalized = casesRe.ReplaceAllString(normalized, `$$$$\begin{cases}$1\end{cases}$$$$`)

	for _, re := range inlineMathRes {
		normalized = wrapIfNeeded(normalized, re)
	}

	normalized = escapedDollarRe.ReplaceAllString(normalized, "$$")

	return normalized
}

// wrapIfNeeded wraps every match of re in $..$ unless the match is
// already adjacent to a dollar delimiter.
func wrapIfNeeded(text string, re *regexp.Regexp) string {
	matches := re.FindAllStringIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 2*len(matches))
	prev := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[prev:start])

		alreadyWrapped := (start > 0 && text[start-1] == '$') ||
			(end < len(text) && text[end] == '$')
		if alreadyWrapped {
			b.WriteString(text[start:end])
		} else {
			b.WriteByte('$')
			b.WriteString(text[start:end])
			b.WriteByte('$')
		}
		prev = end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// =============================================================================
// Fraction Repair
// =============================================================================

// normalizeFractions rewrites every \frac so both arguments are
// braced. Providers emit \frac12, \frac{1}2, \frac\pi2 and similar;
// renderers only accept \frac{1}{2}.
func normalizeFractions(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(text) {
		if !strings.HasPrefix(text[i:], `\frac`) {
			b.WriteByte(text[i])
			i++
			continue
		}

		originalIndex := i
		cursor := i + len(`\frac`)

		numerator, ok := extractArgument(text, cursor)
		if !ok {
			b.WriteString(text[originalIndex:cursor])
			i = cursor
			continue
		}
		cursor = numerator.next

		denominator, ok := extractArgument(text, cursor)
		if !ok {
			b.WriteString(text[originalIndex:cursor])
			i = cursor
			continue
		}

		b.WriteString(`\frac{` + numerator.content + `}{` + denominator.content + `}`)
		i = denominator.next
	}
	return b.String()
}

// argument is one extracted \frac argument and the position after it.
type argument struct {
	content string
	next    int
}

// extractArgument reads one argument starting at start: a braced
// group, a command (optionally with its own braced group), or a bare
// token running to the next whitespace or brace.
//
// Returns ok=false at end of input or on an unbalanced braced group.
func extractArgument(text string, start int) (argument, bool) {
	i := start
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	if i >= len(text) {
		return argument{}, false
	}

	if text[i] == '{' {
		depth := 0
		j := i
		for j < len(text) {
			switch text[j] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				break
			}
			j++
		}
		if depth != 0 {
			return argument{}, false
		}
		return argument{content: text[i+1 : j], next: j + 1}, true
	}

	if text[i] == '\\' {
		j := i + 1
		for j < len(text) && isLetter(text[j]) {
			j++
		}
		content := text[i:j]
		if j < len(text) && text[j] == '{' {
			if nested, ok := extractArgument(text, j); ok {
				content += "{" + nested.content + "}"
				j = nested.next
			}
		}
		return argument{content: content, next: j}, true
	}

	j := i
	for j < len(text) && !isSpace(text[j]) && text[j] != '{' && text[j] != '}' {
		j++
	}
	return argument{content: text[i:j], next: j}, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
