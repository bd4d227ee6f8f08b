package metadata

import (
	"regexp"
	"strings"
)

// declaration is an exported function declaration found in source
type declaration struct {
	Name       string
	Async      bool
	Generator  bool
	Params     []string // raw parameter texts, in order
	ReturnType string   // raw return annotation, empty when absent
	Doc        string   // raw JSDoc block ("/** ... */"), empty when absent
	Line       int
}

// comment is a block comment located in source
type comment struct {
	start, end int
}

// maskSource returns a copy of src where comment bodies and string contents
// are blanked out (newlines are kept so offsets and line numbers still match)
// together with the positions of all block comments
func maskSource(src string) (string, []comment) {
	masked := []byte(src)
	var comments []comment

	blank := func(from, to int) {
		for i := from; i < to && i < len(masked); i++ {
			if masked[i] != '\n' {
				masked[i] = ' '
			}
		}
	}

	n := len(src)
	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = n
			} else {
				end += i
			}
			blank(i, end)
			i = end
		case c == '/' && i+1 < n && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				end = n
			} else {
				end += i + 4
			}
			comments = append(comments, comment{start: i, end: end})
			blank(i, end)
			i = end
		case c == '"' || c == '\'' || c == '`':
			j := i + 1
			for j < n && src[j] != c {
				if src[j] == '\\' {
					j++
				} else if src[j] == '\n' && c != '`' {
					break
				}
				j++
			}
			blank(i+1, j)
			i = j + 1
		default:
			i++
		}
	}

	return string(masked), comments
}

var exportFunctionPattern = regexp.MustCompile(`(?m)(?:^|[;\s])export\s+(async\s+)?function\s*(\*)?\s*([A-Za-z_$][\w$]*)\s*(?:<[^>()]*>)?\s*\(`)

// scanDeclarations finds the exported function declarations of src
func scanDeclarations(src string) []declaration {
	masked, comments := maskSource(src)
	var decls []declaration

	for _, m := range exportFunctionPattern.FindAllStringSubmatchIndex(masked, -1) {
		openParen := m[1] - 1
		closeParen := matchClose(masked, openParen, '(', ')')
		if closeParen < 0 {
			continue
		}

		exportStart := strings.Index(masked[m[0]:m[1]], "export") + m[0]
		decl := declaration{
			Name:      masked[m[6]:m[7]],
			Async:     m[2] >= 0,
			Generator: m[4] >= 0,
			Params:    splitTopLevel(src[openParen+1:closeParen], masked[openParen+1:closeParen]),
			Line:      strings.Count(src[:exportStart], "\n") + 1,
		}

		returnType, isBody := readReturnType(src, masked, closeParen+1)
		if !isBody {
			// Overload signature; the implementation is found separately
			continue
		}
		decl.ReturnType = returnType
		decl.Doc = attachedDoc(src, comments, exportStart)

		decls = append(decls, decl)
	}

	return decls
}

// matchClose returns the index of the bracket closing the one at open
func matchClose(masked string, open int, opener, closer byte) int {
	depth := 0
	for i := open; i < len(masked); i++ {
		switch masked[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits a parameter list on commas that are not nested in
// brackets, generics or (blanked) strings. src and masked must be aligned.
func splitTopLevel(src, masked string) []string {
	var parts []string
	depth := 0
	start := 0
	// Angle brackets are generics only in the type annotation; past a
	// top-level '=' they are comparisons in the default value.
	inDefault := false
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth = max(depth-1, 0)
		case '<':
			if !inDefault {
				depth++
			}
		case '>':
			if inDefault || (i > 0 && masked[i-1] == '=') {
				continue // comparison, or arrow in a function type
			}
			depth = max(depth-1, 0)
		case '=':
			if depth == 0 && isAssignment(masked, i) {
				inDefault = true
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(src[start:i]))
				start = i + 1
				inDefault = false
			}
		}
	}
	if last := strings.TrimSpace(src[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

// readReturnType reads an optional ": Type" annotation after the parameter
// list. It reports false when the declaration ends with ';' (an overload).
func readReturnType(src, masked string, from int) (string, bool) {
	i := skipSpace(masked, from)
	if i >= len(masked) {
		return "", false
	}
	if masked[i] == '{' {
		return "", true
	}
	if masked[i] == ';' {
		return "", false
	}
	if masked[i] != ':' {
		return "", false
	}

	start := i + 1
	depth := 0
	for j := start; j < len(masked); j++ {
		switch masked[j] {
		case '(', '[', '<':
			depth++
		case ')', ']':
			depth--
		case '>':
			if masked[j-1] == '=' {
				continue
			}
			depth--
		case '{':
			if depth == 0 {
				return strings.TrimSpace(src[start:j]), true
			}
			depth++
		case '}':
			depth--
		case ';':
			if depth == 0 {
				return "", false
			}
		}
	}
	return "", false
}

// isAssignment reports whether the '=' at i is a plain assignment rather than
// part of "=>", "==", "<=", ">=" or "!="
func isAssignment(s string, i int) bool {
	if i+1 < len(s) && (s[i+1] == '>' || s[i+1] == '=') {
		return false
	}
	if i > 0 && strings.IndexByte("=<>!", s[i-1]) >= 0 {
		return false
	}
	return true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// attachedDoc returns the JSDoc block that immediately precedes pos, if any
func attachedDoc(src string, comments []comment, pos int) string {
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		if c.end > pos {
			continue
		}
		if strings.TrimSpace(src[c.end:pos]) != "" {
			return ""
		}
		text := src[c.start:c.end]
		if !strings.HasPrefix(text, "/**") {
			return ""
		}
		return text
	}
	return ""
}
