package bundler

import (
	"encoding/json"
	"fmt"
)

// ErrorScript returns a script that reports a build failure in the host
// console when loaded. The message is embedded as a JSON string literal,
// which escapes quotes, backslashes, newlines and U+2028/U+2029.
func ErrorScript(outputName, message string) string {
	text := fmt.Sprintf("Failed to build %s: %s", outputName, message)
	literal, err := json.Marshal(text)
	if err != nil {
		literal = []byte(`"Failed to build"`)
	}
	return fmt.Sprintf("console.error(%s);", literal)
}
