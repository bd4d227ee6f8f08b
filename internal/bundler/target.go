package bundler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ErrInvalidTarget is returned for target identifiers the bundler cannot map
var ErrInvalidTarget = errors.New("invalid target")

// TargetSpec is the parsed form of the configured target identifiers
type TargetSpec struct {
	Language api.Target
	Engines  []api.Engine
}

var languageTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var enginePattern = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+){0,2})$`)

// ParseTargets maps identifiers such as "es2020" or "chrome58" to esbuild
// targets. At most one language level may be given; engines may repeat.
func ParseTargets(ids []string) (TargetSpec, error) {
	spec := TargetSpec{Language: api.ESNext}
	languageSet := ""

	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" {
			continue
		}

		if target, ok := languageTargets[id]; ok {
			if languageSet != "" && languageSet != id {
				return TargetSpec{}, fmt.Errorf("%w: conflicting language levels %q and %q", ErrInvalidTarget, languageSet, id)
			}
			languageSet = id
			spec.Language = target
			continue
		}

		m := enginePattern.FindStringSubmatch(id)
		if m == nil {
			return TargetSpec{}, fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return TargetSpec{}, fmt.Errorf("%w: unknown engine %q", ErrInvalidTarget, m[1])
		}
		spec.Engines = append(spec.Engines, api.Engine{Name: name, Version: m[2]})
	}

	return spec, nil
}
