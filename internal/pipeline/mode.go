package pipeline

// Mode carries the behavior that differs between a static build and a dev
// session as data, so the cycle itself has no mode branches
type Mode struct {
	Name      string
	Minify    bool // minify the script
	Sourcemap bool // inline source maps with sources content
	Notify    bool // emit live-update signals after successful writes
}

// BuildMode is used for static builds. minify is the host build policy.
func BuildMode(minify bool) Mode {
	return Mode{Name: "build", Minify: minify}
}

// DevMode is used by the dev server
func DevMode() Mode {
	return Mode{Name: "dev", Sourcemap: true, Notify: true}
}

// Notifier receives live-update signals. Implementations must not block.
type Notifier interface {
	// ScriptUpdated is called after a successful script write
	ScriptUpdated(file string)
	// ManifestUpdated is called after a successful manifest write
	ManifestUpdated(file string)
}
