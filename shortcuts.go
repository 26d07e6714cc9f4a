package dofigen

import (
	"strings"
)

// parseCompactKV parses the "key=value,key2=value2,bareflag" grammar
// shared by the Cache and Bind shortcut strings. A token with
// no "=" is returned as a boolean flag. A bare first token with no "="
// and no later tokens is returned as the sole positional value, letting
// callers treat "a bare path" as shorthand for "target=<path>".
func parseCompactKV(s string) (kv map[string]string, flags map[string]bool, positional string) {
	kv = map[string]string{}
	flags = map[string]bool{}

	parts := strings.Split(s, ",")
	if len(parts) == 1 && !strings.Contains(parts[0], "=") {
		return kv, flags, parts[0]
	}

	for _, part := range parts {
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			flags[key] = true
			continue
		}
		kv[key] = val
	}
	return kv, flags, ""
}

// asInt narrows the numeric types the YAML and JSON generic trees
// produce down to an int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// classifyCopyShortcut decides, for the permissive Copy/Add/AddGitRepo
// string shortcut, which CopyResource variant a single source token
// implies. URL scheme implies Add; a git-looking remote implies
// AddGitRepo; anything else is a plain Copy. This is the one genuinely
// ambiguous corner of the grammar (a path that happens to look like a
// URL): the documented, tested rule is "URL scheme wins".
func classifyCopyShortcut(token string) string {
	switch {
	case strings.HasPrefix(token, "http://"), strings.HasPrefix(token, "https://"):
		return "add"
	case strings.HasPrefix(token, "git@"),
		strings.HasPrefix(token, "git://"),
		strings.HasSuffix(token, ".git"):
		return "addgit"
	default:
		return "copy"
	}
}
