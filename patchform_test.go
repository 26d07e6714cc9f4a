package dofigen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParsePatch(t *testing.T, doc string) *DescriptorPatch {
	t.Helper()
	p, err := ParsePatch([]byte(doc))
	require.NoError(t, err)
	return p
}

func TestRunSequencePatchSetAndAppend(t *testing.T) {
	base := mustParsePatch(t, "run: [a, b, c]\n").Apply(&Descriptor{})
	overlay := mustParsePatch(t, "run: { \"1\": B, \"+\": [d] }\n")
	folded := overlay.Apply(base)
	require.Equal(t, []string{"a", "B", "c", "d"}, folded.Run.Run)
}

func TestRunSequencePatchReplaceWholeList(t *testing.T) {
	base := mustParsePatch(t, "run: [a, b]\n").Apply(&Descriptor{})
	folded := mustParsePatch(t, "run: { \"_\": [x] }\n").Apply(base)
	require.Equal(t, []string{"x"}, folded.Run.Run)
}

func TestEnvPatchOverridesAndDeletes(t *testing.T) {
	base := mustParsePatch(t, "env: {FOO: bar, OLD: gone}\n").Apply(&Descriptor{})
	folded := mustParsePatch(t, "env: {FOO: baz, OLD: null, NEW: here}\n").Apply(base)
	require.Equal(t, map[string]string{"FOO": "baz", "NEW": "here"}, folded.Env)
}

func TestBuilderPatchDeepMergesByName(t *testing.T) {
	base := mustParsePatch(t, `
builders:
  deps:
    fromImage: golang:1.22
    workdir: /src
`).Apply(&Descriptor{})
	folded := mustParsePatch(t, `
builders:
  deps:
    workdir: /app
`).Apply(base)
	require.Len(t, folded.Builders, 1)
	require.Equal(t, "/app", folded.Builders[0].Stage.Workdir)
	require.Equal(t, "golang:1.22", folded.Builders[0].Stage.From.Image.String())
}

func TestBuilderPatchNullDeletes(t *testing.T) {
	base := mustParsePatch(t, `
builders:
  a: {fromImage: alpine}
  b: {fromImage: alpine}
`).Apply(&Descriptor{})
	folded := mustParsePatch(t, "builders: {a: null}\n").Apply(base)
	require.Len(t, folded.Builders, 1)
	require.Equal(t, "b", folded.Builders[0].Name)
}

func TestCopyDeepMergeAtIndex(t *testing.T) {
	base := mustParsePatch(t, `
copy:
  - {paths: /a, target: /dst}
`).Apply(&Descriptor{})
	folded := mustParsePatch(t, "copy: { \"0<\": {target: /other} }\n").Apply(base)
	require.Len(t, folded.Stage.Copy, 1)
	require.Equal(t, []string{"/a"}, folded.Stage.Copy[0].Copy.Paths)
	require.Equal(t, "/other", folded.Stage.Copy[0].Copy.Target)
}

func TestRootBlockNullRemoves(t *testing.T) {
	base := mustParsePatch(t, "root: apk add curl\n").Apply(&Descriptor{})
	require.NotNil(t, base.Stage.Root)
	folded := mustParsePatch(t, "root: null\n").Apply(base)
	require.Nil(t, folded.Stage.Root)
}

func TestHealthcheckPatchMergesFields(t *testing.T) {
	base := mustParsePatch(t, "healthcheck: {cmd: \"curl -f http://localhost/\", interval: 10s}\n").Apply(&Descriptor{})
	folded := mustParsePatch(t, "healthcheck: {interval: 5s}\n").Apply(base)
	require.Equal(t, "5s", folded.Healthcheck.Interval)
	require.Equal(t, []string{"curl -f http://localhost/"}, folded.Healthcheck.Cmd)
}

func TestLabelPatchMergesNestedAndDottedForms(t *testing.T) {
	base := mustParsePatch(t, "label: {com.example.team: infra}\n").Apply(&Descriptor{})
	folded := mustParsePatch(t, "label: {com: {example: {stage: prod}}}\n").Apply(base)

	var got []string
	folded.Label.Flatten(".", func(path, value string) {
		got = append(got, path+"="+value)
	})
	require.ElementsMatch(t, []string{"com.example.team=infra", "com.example.stage=prod"}, got)
}

func TestDisjointPatchesCommute(t *testing.T) {
	p1 := mustParsePatch(t, "env: {FOO: bar}\n")
	p2 := mustParsePatch(t, "workdir: /app\n")

	a := p2.Apply(p1.Apply(&Descriptor{}))
	b := p1.Apply(p2.Apply(&Descriptor{}))
	require.Equal(t, a.Env, b.Env)
	require.Equal(t, a.Workdir, b.Workdir)
}

func TestFlattenedFromImageKey(t *testing.T) {
	desc := mustParsePatch(t, "fromImage: alpine\n").Apply(&Descriptor{})
	require.NotNil(t, desc.From.Image)
	require.Equal(t, "alpine", desc.From.Image.Path)
}

func TestSequencePatchRejectsMixedKeys(t *testing.T) {
	_, err := ParsePatch([]byte("run: { \"+\": [d], other: x }\n"))
	require.Error(t, err)
}
