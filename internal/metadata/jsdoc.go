package metadata

import (
	"regexp"
	"strings"
)

// docComment holds the parsed tags of a JSDoc block
type docComment struct {
	Description    string
	CustomFunction bool
	ID             *string // @customfunction <id>
	Name           *string // @customfunction <id> <name>
	Params         map[string]string
	Returns        string
	HelpURL        string
	Options        Options
}

var (
	customFunctionPattern = regexp.MustCompile(`^@customfunction(?:\s+(\S+))?(?:\s+(\S+))?`)
	paramPattern          = regexp.MustCompile(`^@param\s+(?:\{[^}]*\}\s*)?(\[?[\w$.]+(?:=[^\]]*)?\]?)\s*(?:-\s*)?(.*)$`)
	returnsPattern        = regexp.MustCompile(`^@returns?\s+(?:\{[^}]*\}\s*)?(.*)$`)
	helpURLPattern        = regexp.MustCompile(`^@helpurl\s+(\S+)`)
	tagPattern            = regexp.MustCompile(`^@(\w+)`)
)

// parseDoc parses a raw "/** ... */" block. Tags may span several lines; a
// line that does not start a new tag continues the previous one.
func parseDoc(raw string) docComment {
	doc := docComment{Params: make(map[string]string)}
	if raw == "" {
		return doc
	}

	body := strings.TrimSuffix(strings.TrimPrefix(raw, "/**"), "*/")

	var description []string
	var tags []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "@"):
			tags = append(tags, line)
		case len(tags) > 0:
			tags[len(tags)-1] += " " + line
		default:
			description = append(description, line)
		}
	}
	doc.Description = strings.Join(description, " ")

	for _, tag := range tags {
		name := ""
		if m := tagPattern.FindStringSubmatch(tag); m != nil {
			name = strings.ToLower(m[1])
		}

		switch name {
		case "customfunction":
			doc.CustomFunction = true
			if m := customFunctionPattern.FindStringSubmatch(tag); m != nil {
				if m[1] != "" {
					id := m[1]
					doc.ID = &id
				}
				if m[2] != "" {
					n := m[2]
					doc.Name = &n
				}
			}
		case "param":
			if m := paramPattern.FindStringSubmatch(tag); m != nil {
				doc.Params[paramName(m[1])] = strings.TrimSpace(m[2])
			}
		case "returns", "return":
			if m := returnsPattern.FindStringSubmatch(tag); m != nil {
				doc.Returns = strings.TrimSpace(m[1])
			}
		case "helpurl":
			if m := helpURLPattern.FindStringSubmatch(tag); m != nil {
				doc.HelpURL = m[1]
			}
		case "volatile":
			doc.Options.Volatile = true
		case "streaming":
			doc.Options.Stream = true
		case "cancelable":
			doc.Options.Cancelable = true
		case "requiresaddress":
			doc.Options.RequiresAddress = true
		}
	}

	return doc
}

// paramName strips the JSDoc optional markers: [name] and [name=default]
func paramName(raw string) string {
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if i := strings.IndexByte(raw, '='); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
