package spec

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// MaxPermutedArgs bounds Permute expansion, 8! orderings at most.
const MaxPermutedArgs = 8

type MatchMode string

const (
	AllOf MatchMode = "all_of"
	AnyOf MatchMode = "any_of"
)

// TestCase is the leaf unit of execution.
type TestCase struct {
	Name    string
	Program string
	Args    []string
	// ArgSets lists explicit argument vectors, one invocation each.
	ArgSets [][]string
	// Permute runs every distinct ordering of Args.
	Permute bool
	Match   MatchMode
	Stdin   []byte
	Env     map[string]string
	Expect  Expect
	Weight  float64
	Timeout time.Duration
}

type Expect struct {
	Stdout *Text
	Stderr *Text
	Status *Status
	Files  []FileExpect
}

// Empty reports whether no predicate is present.
func (e Expect) Empty() bool {
	return e.Stdout == nil && e.Stderr == nil && e.Status == nil && len(e.Files) == 0
}

// Text matches a captured stream exactly or by regular expression.
type Text struct {
	Exact *string
	Regex string
	Trim  bool
}

// Status is an exact exit code or an inclusive range.
type Status struct {
	Exact *int
	Min   *int
	Max   *int
}

// Between builds an inclusive range predicate.
func Between(min, max int) *Status {
	return &Status{Min: &min, Max: &max}
}

// ExitCode builds an exact exit status predicate.
func ExitCode(code int) *Status {
	return &Status{Exact: &code}
}

type FileExpect struct {
	Path    string
	Content string
}

// ArgVectors expands the case into the argument vectors it must be run with.
// Vectors are never nil, a case without arguments yields one empty vector.
func (c *TestCase) ArgVectors() [][]string {
	if len(c.ArgSets) > 0 {
		out := make([][]string, len(c.ArgSets))
		for i, set := range c.ArgSets {
			out[i] = append([]string{}, set...)
		}
		return out
	}
	if c.Permute && len(c.Args) > 1 {
		return permutations(c.Args)
	}
	return [][]string{append([]string{}, c.Args...)}
}

// permutations returns distinct orderings in lexicographic index order so
// repeated runs expand identically.
func permutations(args []string) [][]string {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out [][]string
	idx := make([]int, len(args))
	used := make([]bool, len(args))

	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(args) {
			vec := make([]string, len(args))
			for i, j := range idx {
				vec[i] = args[j]
			}
			key := strings.Join(vec, "\x00")
			if seen.Add(key) {
				out = append(out, vec)
			}
			return
		}
		for j := range args {
			if used[j] {
				continue
			}
			used[j] = true
			idx[depth] = j
			walk(depth + 1)
			used[j] = false
		}
	}
	walk(0)
	return out
}
