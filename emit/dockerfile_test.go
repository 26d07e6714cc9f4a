package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dofigen/dofigen"
)

func image(path, tag string) dofigen.FromContext {
	return dofigen.FromContext{Image: &dofigen.ImageName{Path: path, Tag: tag}}
}

func TestDockerfileStageInstructionOrder(t *testing.T) {
	desc := &dofigen.Descriptor{
		Stage: dofigen.Stage{
			From:    image("alpine", "3.19"),
			User:    &dofigen.User{User: "1000"},
			Workdir: "/app",
			Arg:     map[string]string{"VERSION": "1"},
			Env:     map[string]string{"MODE": "prod"},
			Label:   dofigen.NestedMap{"com": map[string]any{"example": map[string]any{"team": "infra"}}},
		},
	}
	out, err := Dockerfile(desc, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, []string{
		"# syntax=docker/dockerfile:1.11",
		"# generated by dofigen v" + Version + "; do not edit by hand",
		"",
		"# runtime",
		"FROM alpine:3.19",
		"ARG VERSION=1",
		"ENV MODE=prod",
		"LABEL com.example.team=infra",
		"WORKDIR /app",
		"USER 1000",
	}, lines)
}

func TestDockerfileMountFlagOrdering(t *testing.T) {
	desc := &dofigen.Descriptor{
		Stage: dofigen.Stage{
			From: image("node", "20"),
			Run: dofigen.Run{
				Run:    []string{"npm ci"},
				Ssh:    []dofigen.Ssh{{ID: "default"}},
				Cache:  []dofigen.Cache{{Target: "/root/.npm"}},
				Secret: []dofigen.Secret{{ID: "npmrc", Target: "/root/.npmrc"}},
				Bind:   []dofigen.Bind{{Target: "/src", Source: "."}},
				TmpFs:  []dofigen.TmpFs{{Target: "/tmp/build"}},
			},
		},
	}
	out, err := Dockerfile(desc, nil)
	require.NoError(t, err)
	require.Contains(t, out,
		"RUN --mount=type=cache,target=/root/.npm"+
			" --mount=type=bind,target=/src,source=."+
			" --mount=type=tmpfs,target=/tmp/build"+
			" --mount=type=secret,id=npmrc,target=/root/.npmrc"+
			" --mount=type=ssh,id=default npm ci\n")
}

func TestDockerfileMultiCommandHeredoc(t *testing.T) {
	desc := &dofigen.Descriptor{
		Stage: dofigen.Stage{
			From: image("alpine", ""),
			Run:  dofigen.Run{Run: []string{"apk update", "apk add curl"}},
		},
	}
	out, err := Dockerfile(desc, nil)
	require.NoError(t, err)
	require.Contains(t, out, "RUN <<EOF\napk update\napk add curl\nEOF\n")
}

func TestDockerfilePlatformQualifier(t *testing.T) {
	desc := &dofigen.Descriptor{
		Stage: dofigen.Stage{
			From: dofigen.FromContext{Image: &dofigen.ImageName{Path: "alpine", Platform: "linux/arm64"}},
		},
		GlobalArg: map[string]string{"TARGETPLATFORM": ""},
	}
	out, err := Dockerfile(desc, nil)
	require.NoError(t, err)
	require.Contains(t, out, "ARG TARGETPLATFORM\n")
	require.Contains(t, out, "FROM --platform=$TARGETPLATFORM alpine\n")
}

func TestDockerfileCopyVariants(t *testing.T) {
	linkOff := false
	desc := &dofigen.Descriptor{
		Stage: dofigen.Stage{
			From: image("debian", "bookworm-slim"),
			Copy: []dofigen.CopyResource{
				{Copy: &dofigen.Copy{Paths: []string{"/a"}, Target: "/b", Chown: "app:app", Chmod: "0644"}},
				{Copy: &dofigen.Copy{Paths: []string{"/c"}, Target: "/d", Link: &linkOff}},
				{CopyContent: &dofigen.CopyContent{Content: "hello", Target: "/etc/motd"}},
				{AddGitRepo: &dofigen.AddGitRepo{Repo: "https://github.com/org/repo.git", Target: "/src", KeepGitDir: true}},
				{Add: &dofigen.Add{Files: []string{"https://example.com/tool.tgz"}, Target: "/opt", Checksum: "sha256:abc"}},
			},
		},
	}
	out, err := Dockerfile(desc, nil)
	require.NoError(t, err)
	require.Contains(t, out, "COPY --link --chown=app:app --chmod=0644 \"/a\" \"/b\"\n")
	require.Contains(t, out, "COPY \"/c\" \"/d\"\n")
	require.Contains(t, out, "COPY --link <<EOF \"/etc/motd\"\nhello\nEOF\n")
	require.Contains(t, out, "ADD --link --keep-git-dir https://github.com/org/repo.git \"/src\"\n")
	require.Contains(t, out, "ADD --link --checksum=sha256:abc \"https://example.com/tool.tgz\" \"/opt\"\n")
}

func TestDockerfileRootOnlyInstructions(t *testing.T) {
	desc := &dofigen.Descriptor{
		Stage: dofigen.Stage{From: image("alpine", "")},
		Expose: []dofigen.Port{
			{Port: 9090, Protocol: "udp"},
			{Port: 8080, Protocol: "tcp"},
		},
		Volume: []string{"/data"},
		Healthcheck: &dofigen.Healthcheck{
			Cmd: []string{"curl", "-f", "http://localhost/"}, Interval: "30s",
			Timeout: "30s", StartPeriod: "0s", Retries: 3,
		},
		Entrypoint: []string{"/bin/app"},
		Cmd:        []string{"serve"},
	}
	out, err := Dockerfile(desc, nil)
	require.NoError(t, err)

	tail := out[strings.Index(out, "EXPOSE"):]
	require.Equal(t, `EXPOSE 9090/udp
EXPOSE 8080/tcp
VOLUME /data
HEALTHCHECK --interval=30s --timeout=30s --start-period=0s --retries=3 CMD ["curl", "-f", "http://localhost/"]
ENTRYPOINT ["/bin/app"]
CMD ["serve"]
`, tail)
}

func TestDockerfileUnknownStageInOrder(t *testing.T) {
	desc := &dofigen.Descriptor{Stage: dofigen.Stage{From: image("alpine", "")}}
	_, err := Dockerfile(desc, []string{"ghost"})
	require.Error(t, err)
	var emitErr *dofigen.EmitError
	require.ErrorAs(t, err, &emitErr)
}
