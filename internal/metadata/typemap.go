package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	typeAny     = "any"
	typeNumber  = "number"
	typeString  = "string"
	typeBoolean = "boolean"

	dimensionalityMatrix = "matrix"
)

var scalarTypes = map[string]string{
	"number":  typeNumber,
	"string":  typeString,
	"boolean": typeBoolean,
	"any":     typeAny,
}

var (
	promisePattern    = regexp.MustCompile(`^Promise\s*<(.+)>$`)
	arrayOfPattern    = regexp.MustCompile(`^Array\s*<(.+)>$`)
	invocationPattern = regexp.MustCompile(`^(?:CustomFunctions\s*\.\s*)?(StreamingInvocation|CancelableInvocation|Invocation)\s*(?:<(.*)>)?$`)
)

// invocationKind classifies the trailing invocation parameter
type invocationKind int

const (
	invocationNone invocationKind = iota
	invocationPlain
	invocationCancelable
	invocationStreaming
)

// rawParam is a parameter split into its syntactic parts
type rawParam struct {
	Name       string
	Type       string
	Optional   bool
	Rest       bool
	HasDefault bool
}

// splitParam splits "name?: Type = default" and its variants
func splitParam(raw string) rawParam {
	p := rawParam{}
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "...") {
		p.Rest = true
		text = strings.TrimSpace(text[3:])
	}

	colon, equals := -1, -1
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth = max(depth-1, 0)
		case '<':
			if equals < 0 {
				depth++
			}
		case '>':
			if equals >= 0 || (i > 0 && text[i-1] == '=') {
				continue
			}
			depth = max(depth-1, 0)
		case ':':
			if depth == 0 && colon < 0 && equals < 0 {
				colon = i
			}
		case '=':
			if depth == 0 && equals < 0 && isAssignment(text, i) {
				equals = i
			}
		}
	}

	head := text
	if equals >= 0 {
		p.HasDefault = true
		head = text[:equals]
	}
	if colon >= 0 {
		p.Name = strings.TrimSpace(head[:colon])
		p.Type = strings.TrimSpace(head[colon+1:])
	} else {
		p.Name = strings.TrimSpace(head)
	}
	if strings.HasSuffix(p.Name, "?") {
		p.Optional = true
		p.Name = strings.TrimSpace(strings.TrimSuffix(p.Name, "?"))
	}
	if p.HasDefault {
		p.Optional = true
	}
	return p
}

// classifyInvocation reports whether typ is one of the host's invocation
// types and, for StreamingInvocation<T>, returns T
func classifyInvocation(typ string) (invocationKind, string) {
	m := invocationPattern.FindStringSubmatch(strings.TrimSpace(typ))
	if m == nil {
		return invocationNone, ""
	}
	switch m[1] {
	case "StreamingInvocation":
		return invocationStreaming, strings.TrimSpace(m[2])
	case "CancelableInvocation":
		return invocationCancelable, ""
	default:
		return invocationPlain, ""
	}
}

// mapValueType maps a TypeScript annotation to a manifest type and
// dimensionality. An empty annotation maps to any.
func mapValueType(typ string) (string, string, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return typeAny, "", nil
	}

	if elem, ok := unwrapArray(typ); ok {
		inner, ok := unwrapArray(elem)
		if !ok {
			return "", "", fmt.Errorf("one-dimensional arrays are not supported (use %s[][])", elem)
		}
		scalar, ok := scalarTypes[strings.TrimSpace(inner)]
		if !ok {
			return "", "", fmt.Errorf("unsupported matrix element type %q", inner)
		}
		return scalar, dimensionalityMatrix, nil
	}

	if scalar, ok := scalarTypes[typ]; ok {
		return scalar, "", nil
	}
	return "", "", fmt.Errorf("unsupported type %q", typ)
}

// unwrapArray strips one array level from "T[]" or "Array<T>"
func unwrapArray(typ string) (string, bool) {
	typ = strings.TrimSpace(typ)
	if strings.HasSuffix(typ, "[]") {
		return strings.TrimSpace(strings.TrimSuffix(typ, "[]")), true
	}
	if m := arrayOfPattern.FindStringSubmatch(typ); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// unwrapPromise strips a Promise<T> wrapper from a return annotation
func unwrapPromise(typ string) string {
	typ = strings.TrimSpace(typ)
	if m := promisePattern.FindStringSubmatch(typ); m != nil {
		return strings.TrimSpace(m[1])
	}
	return typ
}
