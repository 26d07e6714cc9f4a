package dofigen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseImageNameSimple(t *testing.T) {
	n, err := ParseImageName("alpine:3.19")
	require.NoError(t, err)
	require.Equal(t, ImageName{Path: "alpine", Tag: "3.19"}, n)
	require.Equal(t, "alpine:3.19", n.String())
}

func TestParseImageNameWithHostAndPort(t *testing.T) {
	n, err := ParseImageName("registry.example.com:5000/team/app:v1")
	require.NoError(t, err)
	require.Equal(t, "registry.example.com", n.Host)
	require.Equal(t, "5000", n.Port)
	require.Equal(t, "team/app", n.Path)
	require.Equal(t, "v1", n.Tag)
}

func TestParseImageNameWithDigest(t *testing.T) {
	n, err := ParseImageName("alpine@sha256:abcd")
	require.NoError(t, err)
	require.Equal(t, "alpine", n.Path)
	require.Equal(t, "sha256:abcd", n.Digest)
	require.True(t, n.HasTagOrDigest())
}

func TestParseImageNameWithoutHostLooksLikeLibrary(t *testing.T) {
	n, err := ParseImageName("library/ubuntu")
	require.NoError(t, err)
	require.Empty(t, n.Host)
	require.Equal(t, "library/ubuntu", n.Path)
}

func TestParseImageNameMissingPath(t *testing.T) {
	_, err := ParseImageName("")
	require.Error(t, err)
}

func TestParseUser(t *testing.T) {
	u, err := ParseUser("www-data:www-data")
	require.NoError(t, err)
	require.Equal(t, "www-data", u.User)
	require.Equal(t, "www-data", u.Group)
	require.Equal(t, "www-data:www-data", u.String())

	numeric, err := ParseUser("1000")
	require.NoError(t, err)
	require.True(t, numeric.IsNumeric())
}

func TestParsePort(t *testing.T) {
	p, err := ParsePort("8080/udp")
	require.NoError(t, err)
	require.Equal(t, 8080, p.Port)
	require.Equal(t, "udp", p.Protocol)

	p2, err := ParsePort("80")
	require.NoError(t, err)
	p2.fillDefaults()
	require.Equal(t, "tcp", p2.Protocol)

	_, err = ParsePort("80/sctp")
	require.Error(t, err)
}
