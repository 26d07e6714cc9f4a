package emit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dofigen/dofigen"
)

func TestDockerignoreAllowlistFromContext(t *testing.T) {
	out, err := Dockerignore(&dofigen.Descriptor{Context: []string{"src", "go.mod", "go.sum"}})
	require.NoError(t, err)
	require.Equal(t, "**\n!src\n!go.mod\n!go.sum\n", out)
}

func TestDockerignorePlainPatterns(t *testing.T) {
	out, err := Dockerignore(&dofigen.Descriptor{Ignore: []string{"*.log", "!keep.log"}})
	require.NoError(t, err)
	require.Equal(t, "*.log\n!keep.log\n", out)
}

func TestDockerignoreEmptyWhenUnconfigured(t *testing.T) {
	out, err := Dockerignore(&dofigen.Descriptor{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDockerignoreContextAndIgnoreCombine(t *testing.T) {
	out, err := Dockerignore(&dofigen.Descriptor{
		Context: []string{"src"},
		Ignore:  []string{"src/**/*_test.go"},
	})
	require.NoError(t, err)
	require.Equal(t, "**\n!src\nsrc/**/*_test.go\n", out)
}
