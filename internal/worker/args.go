package worker

import (
	"fmt"
	"sort"
	"strings"
)

// BuildArgs turns a worker's options map into the kebab-case CLI flags its
// process is spawned with. Keys are iterated in sorted order so the
// resulting argv is deterministic (stable for tests and for comparing two
// launches of the same worker). A boolean true produces a bare flag with no
// value. A slice is serialized one flag per element (`--flag a --flag b`),
// except "fast", whose worker binary instead wants a single flag followed by
// all of its values as bare tokens ("--fast a b").
func BuildArgs(options map[string]interface{}) []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, key := range keys {
		flag := "--" + toKebabCase(key)
		value := options[key]

		switch v := value.(type) {
		case bool:
			if v {
				args = append(args, flag)
			}
		case []interface{}:
			if key == "fast" {
				args = append(args, flag)
				for _, item := range v {
					args = append(args, fmt.Sprintf("%v", item))
				}
				continue
			}
			for _, item := range v {
				args = append(args, flag, fmt.Sprintf("%v", item))
			}
		case []string:
			if key == "fast" {
				args = append(args, flag)
				args = append(args, v...)
				continue
			}
			for _, item := range v {
				args = append(args, flag, item)
			}
		default:
			args = append(args, flag, fmt.Sprintf("%v", v))
		}
	}
	return args
}

// ParseArgs is the inverse of BuildArgs: it recovers an options map from an
// argv built by BuildArgs. A flag followed by zero bare tokens (either the
// end of argv or another flag) round-trips to a boolean true. A flag
// followed by exactly one bare token round-trips to that scalar; more than
// one round-trips to a []string.
func ParseArgs(args []string) (map[string]interface{}, error) {
	options := make(map[string]interface{})

	i := 0
	for i < len(args) {
		token := args[i]
		if !strings.HasPrefix(token, "--") {
			return nil, fmt.Errorf("unexpected bare token %q at position %d", token, i)
		}
		key := fromKebabCase(strings.TrimPrefix(token, "--"))
		i++

		var values []string
		for i < len(args) && !strings.HasPrefix(args[i], "--") {
			values = append(values, args[i])
			i++
		}

		switch len(values) {
		case 0:
			options[key] = true
		case 1:
			options[key] = values[0]
		default:
			options[key] = values
		}
	}

	return options, nil
}

func toKebabCase(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func fromKebabCase(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}
