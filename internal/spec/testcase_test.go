package spec_test

import (
	"testing"

	"github.com/programme-lv/grader/internal/spec"
	"github.com/stretchr/testify/require"
)

func TestArgVectors(t *testing.T) {
	tests := []struct {
		name string
		tc   spec.TestCase
		want [][]string
	}{
		{
			name: "single vector",
			tc:   spec.TestCase{Args: []string{"a", "b"}},
			want: [][]string{{"a", "b"}},
		},
		{
			name: "no args",
			tc:   spec.TestCase{},
			want: [][]string{{}},
		},
		{
			name: "permute without args",
			tc:   spec.TestCase{Permute: true},
			want: [][]string{{}},
		},
		{
			name: "explicit sets win over permute",
			tc:   spec.TestCase{Args: []string{"x"}, Permute: true, ArgSets: [][]string{{"1"}, {"2", "3"}}},
			want: [][]string{{"1"}, {"2", "3"}},
		},
		{
			name: "permutations of three",
			tc:   spec.TestCase{Args: []string{"a", "b", "c"}, Permute: true},
			want: [][]string{
				{"a", "b", "c"}, {"a", "c", "b"},
				{"b", "a", "c"}, {"b", "c", "a"},
				{"c", "a", "b"}, {"c", "b", "a"},
			},
		},
		{
			name: "repeated args are deduplicated",
			tc:   spec.TestCase{Args: []string{"a", "a", "b"}, Permute: true},
			want: [][]string{{"a", "a", "b"}, {"a", "b", "a"}, {"b", "a", "a"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.tc.ArgVectors())
		})
	}
}

func TestMergeEnvLaterLayersWin(t *testing.T) {
	env := spec.MergeEnv(false,
		map[string]string{"A": "global", "B": "global"},
		map[string]string{"B": "section"},
		nil,
		map[string]string{"C": "case", "A": "case"},
	)
	require.Equal(t, []string{"A=case", "B=section", "C=case"}, env)
}

func TestMergeEnvInherit(t *testing.T) {
	t.Setenv("GRADER_TEST_INHERITED", "yes")
	env := spec.MergeEnv(true, map[string]string{"X": "1"})
	require.Contains(t, env, "GRADER_TEST_INHERITED=yes")
	require.Contains(t, env, "X=1")
}

func TestProgramSetCheck(t *testing.T) {
	ps := spec.ProgramSet{"sh": {Program: "/bin/sh"}}
	require.NoError(t, ps.Check([]string{"sh"}))

	err := ps.Check([]string{"sh", "main"})
	require.ErrorIs(t, err, spec.ErrSpecMismatch)
	require.Contains(t, err.Error(), "main (not provided)")

	ps["dir"] = spec.Command{Program: t.TempDir()}
	require.ErrorIs(t, ps.Check([]string{"dir"}), spec.ErrSpecMismatch)
}

func TestProgramSetResolveFallsBackToPath(t *testing.T) {
	ps := spec.ProgramSet{}
	cmd, err := ps.Resolve("sh")
	require.NoError(t, err)
	require.NotEmpty(t, cmd.Program)

	_, err = ps.Resolve("definitely-not-a-real-program-name")
	require.ErrorIs(t, err, spec.ErrSpecMismatch)
}
