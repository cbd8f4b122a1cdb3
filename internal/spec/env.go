package spec

import (
	"os"
	"sort"
	"strings"
)

// MergeEnv layers environment maps, later layers win. With inherit the
// grader's own environment is the bottom layer. The result is sorted so
// invocations are reproducible.
func MergeEnv(inherit bool, layers ...map[string]string) []string {
	merged := make(map[string]string)
	if inherit {
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if ok {
				merged[k] = v
			}
		}
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, len(keys))
	for i, k := range keys {
		env[i] = k + "=" + merged[k]
	}
	return env
}
