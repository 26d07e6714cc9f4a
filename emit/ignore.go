package emit

import (
	"strings"

	"github.com/dofigen/dofigen"
	"github.com/moby/patternmatcher"
)

// Dockerignore renders desc's context configuration as a .dockerignore
// file. A non-empty `context` is an allowlist: everything is excluded
// (`**`) and each context entry re-included with a `!` prefix, with any
// `ignore` patterns appended afterwards to carve exceptions back out.
// With no context, `ignore` patterns are emitted as-is. With neither,
// the result is empty and the caller omits the file.
func Dockerignore(desc *dofigen.Descriptor) (string, error) {
	var patterns []string
	if len(desc.Context) > 0 {
		patterns = append(patterns, "**")
		for _, entry := range desc.Context {
			patterns = append(patterns, "!"+entry)
		}
	}
	patterns = append(patterns, desc.Ignore...)
	if len(patterns) == 0 {
		return "", nil
	}

	// patternmatcher implements the same matching BuildKit applies to
	// the file; building the matcher up front turns a malformed pattern
	// into a generation-time error instead of a build-time one.
	if _, err := patternmatcher.New(patterns); err != nil {
		return "", err
	}

	return strings.Join(patterns, "\n") + "\n", nil
}
