// Package emit renders a resolved descriptor into the textual
// artifacts BuildKit consumes: a Dockerfile and its .dockerignore
// side-car.
package emit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dofigen/dofigen"
)

const syntaxDirective = "# syntax=docker/dockerfile:1.11"

// Version is stamped into the generated header.
const Version = "0.1.0"

// Dockerfile renders desc's stages in dependency order (builders per
// `order`, then the root stage last) into a single deterministic
// Dockerfile.
func Dockerfile(desc *dofigen.Descriptor, order []string) (string, error) {
	var b strings.Builder
	b.WriteString(syntaxDirective + "\n")
	fmt.Fprintf(&b, "# generated by dofigen v%s; do not edit by hand\n\n", Version)

	writeGlobalArgs(&b, desc.GlobalArg)

	byName := make(map[string]dofigen.Stage, len(desc.Builders))
	for _, n := range desc.Builders {
		byName[n.Name] = n.Stage
	}

	for _, name := range order {
		st, ok := byName[name]
		if !ok {
			return "", &dofigen.EmitError{Reason: fmt.Sprintf("stage order names unknown builder %q", name)}
		}
		fmt.Fprintf(&b, "# %s\n", name)
		writeStage(&b, name, st)
		b.WriteString("\n")
	}

	b.WriteString("# runtime\n")
	writeStage(&b, "", desc.Stage)
	writeRootOnly(&b, desc)
	return b.String(), nil
}

func writeGlobalArgs(b *strings.Builder, args map[string]string) {
	keys := sortedKeys(args)
	for _, k := range keys {
		if args[k] == "" {
			fmt.Fprintf(b, "ARG %s\n", k)
		} else {
			fmt.Fprintf(b, "ARG %s=%s\n", k, args[k])
		}
	}
	if len(keys) > 0 {
		b.WriteString("\n")
	}
}

func writeStage(b *strings.Builder, name string, st dofigen.Stage) {
	from := fromRef(st.From)
	platform := ""
	if st.From.Image != nil && st.From.Image.Platform != "" {
		platform = "--platform=$TARGETPLATFORM "
	}
	if name != "" {
		fmt.Fprintf(b, "FROM %s%s AS %s\n", platform, from, name)
	} else {
		fmt.Fprintf(b, "FROM %s%s\n", platform, from)
	}

	for _, k := range sortedKeys(st.Arg) {
		if st.Arg[k] == "" {
			fmt.Fprintf(b, "ARG %s\n", k)
		} else {
			fmt.Fprintf(b, "ARG %s=%s\n", k, st.Arg[k])
		}
	}

	for _, k := range sortedKeys(st.Env) {
		fmt.Fprintf(b, "ENV %s=%s\n", k, shellQuote(st.Env[k]))
	}

	if len(st.Label) > 0 {
		var pairs []string
		st.Label.Flatten(".", func(path, value string) {
			pairs = append(pairs, fmt.Sprintf("%s=%s", path, shellQuote(value)))
		})
		sort.Strings(pairs)
		fmt.Fprintf(b, "LABEL %s\n", strings.Join(pairs, " "))
	}

	if st.Workdir != "" {
		fmt.Fprintf(b, "WORKDIR %s\n", st.Workdir)
	}

	if st.User != nil {
		fmt.Fprintf(b, "USER %s\n", st.User.String())
	}

	for _, c := range st.Copy {
		writeCopy(b, c)
	}

	if st.Root != nil && len(st.Root.Run) > 0 {
		b.WriteString("USER 0\n")
		writeRun(b, *st.Root)
		if st.User != nil {
			fmt.Fprintf(b, "USER %s\n", st.User.String())
		}
	}

	writeRun(b, st.Run)
}

func writeRootOnly(b *strings.Builder, desc *dofigen.Descriptor) {
	for _, p := range desc.Expose {
		fmt.Fprintf(b, "EXPOSE %s\n", p.String())
	}

	for _, v := range desc.Volume {
		fmt.Fprintf(b, "VOLUME %s\n", v)
	}

	if desc.Healthcheck != nil {
		writeHealthcheck(b, desc.Healthcheck)
	}

	if len(desc.Entrypoint) > 0 {
		fmt.Fprintf(b, "ENTRYPOINT %s\n", jsonArray(desc.Entrypoint))
	}
	if len(desc.Cmd) > 0 {
		fmt.Fprintf(b, "CMD %s\n", jsonArray(desc.Cmd))
	}
}

func writeHealthcheck(b *strings.Builder, h *dofigen.Healthcheck) {
	if h.None {
		b.WriteString("HEALTHCHECK NONE\n")
		return
	}
	fmt.Fprintf(b, "HEALTHCHECK --interval=%s --timeout=%s --start-period=%s --retries=%d CMD %s\n",
		h.Interval, h.Timeout, h.StartPeriod, h.Retries, jsonArray(h.Cmd))
}

// writeRun collapses r's command list into a single RUN instruction
// with its mounts declared inline, in the stable cache -> bind ->
// tmpfs -> secret -> ssh order (declaration order preserved within each
// kind). Multiple commands become a heredoc body.
func writeRun(b *strings.Builder, r dofigen.Run) {
	if len(r.Run) == 0 {
		return
	}

	if len(r.Shell) > 0 {
		fmt.Fprintf(b, "SHELL %s\n", jsonArray(r.Shell))
	}

	var flags []string
	for _, c := range r.Cache {
		flags = append(flags, cacheFlag(c))
	}
	for _, m := range r.Bind {
		flags = append(flags, bindFlag(m))
	}
	for _, t := range r.TmpFs {
		flags = append(flags, tmpfsFlag(t))
	}
	for _, s := range r.Secret {
		flags = append(flags, secretFlag(s))
	}
	for _, s := range r.Ssh {
		flags = append(flags, sshFlag(s))
	}
	if r.Network != "" && r.Network != dofigen.NetworkDefault {
		flags = append(flags, "--network="+string(r.Network))
	}
	if r.Security != "" && r.Security != dofigen.SecuritySandbox {
		flags = append(flags, "--security="+string(r.Security))
	}

	prefix := "RUN"
	if len(flags) > 0 {
		prefix = "RUN " + strings.Join(flags, " ")
	}

	if len(r.Run) == 1 {
		fmt.Fprintf(b, "%s %s\n", prefix, r.Run[0])
		return
	}

	fmt.Fprintf(b, "%s <<EOF\n", prefix)
	for _, cmd := range r.Run {
		b.WriteString(cmd)
		b.WriteString("\n")
	}
	b.WriteString("EOF\n")
}

func cacheFlag(c dofigen.Cache) string {
	s := "--mount=type=cache,target=" + c.Target
	if c.ID != "" {
		s += ",id=" + c.ID
	}
	if c.Sharing != "" {
		s += ",sharing=" + string(c.Sharing)
	}
	if c.From != nil {
		s += ",from=" + fromRef(*c.From)
	}
	if c.Source != "" {
		s += ",source=" + c.Source
	}
	if c.Chown != "" {
		s += ",chown=" + c.Chown
	}
	if c.Chmod != "" {
		s += ",chmod=" + c.Chmod
	}
	if c.Readonly {
		s += ",readonly"
	}
	return s
}

func bindFlag(m dofigen.Bind) string {
	s := "--mount=type=bind,target=" + m.Target
	if m.From != nil {
		s += ",from=" + fromRef(*m.From)
	}
	if m.Source != "" {
		s += ",source=" + m.Source
	}
	if m.ReadWrite {
		s += ",rw"
	}
	return s
}

func tmpfsFlag(t dofigen.TmpFs) string {
	s := "--mount=type=tmpfs,target=" + t.Target
	if t.Size != "" {
		s += ",size=" + t.Size
	}
	return s
}

func secretFlag(sec dofigen.Secret) string {
	s := "--mount=type=secret,id=" + sec.ID
	if sec.Target != "" && sec.Target != sec.ID {
		s += ",target=" + sec.Target
	}
	if sec.Env != "" {
		s += ",env=" + sec.Env
	}
	if sec.Required {
		s += ",required"
	}
	return s
}

func sshFlag(ssh dofigen.Ssh) string {
	s := "--mount=type=ssh,id=" + ssh.ID
	if ssh.Target != "" {
		s += ",target=" + ssh.Target
	}
	if ssh.Required {
		s += ",required"
	}
	return s
}

func writeCopy(b *strings.Builder, c dofigen.CopyResource) {
	switch {
	case c.Copy != nil:
		cp := c.Copy
		flags := copyFlags(cp.Link, cp.Chown, cp.Chmod)
		if cp.From != nil {
			flags = insertAfterLink(flags, "--from="+fromRef(*cp.From))
		}
		if cp.Parents {
			flags = append(flags, "--parents")
		}
		for _, e := range cp.Exclude {
			flags = append(flags, "--exclude="+e)
		}
		fmt.Fprintf(b, "COPY%s %s %s\n", joinFlags(flags), quoteAll(cp.Paths), strconv.Quote(cp.Target))
	case c.CopyContent != nil:
		cc := c.CopyContent
		flags := copyFlags(cc.Link, cc.Chown, cc.Chmod)
		content := cc.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		fmt.Fprintf(b, "COPY%s <<EOF %s\n%sEOF\n", joinFlags(flags), strconv.Quote(cc.Target), content)
	case c.AddGitRepo != nil:
		g := c.AddGitRepo
		flags := copyFlags(g.Link, g.Chown, g.Chmod)
		if g.KeepGitDir {
			flags = append(flags, "--keep-git-dir")
		}
		if g.Checksum != "" {
			flags = append(flags, "--checksum="+g.Checksum)
		}
		for _, e := range g.Exclude {
			flags = append(flags, "--exclude="+e)
		}
		fmt.Fprintf(b, "ADD%s %s %s\n", joinFlags(flags), g.Repo, strconv.Quote(g.Target))
	case c.Add != nil:
		a := c.Add
		flags := copyFlags(a.Link, a.Chown, a.Chmod)
		if a.Checksum != "" {
			flags = append(flags, "--checksum="+a.Checksum)
		}
		fmt.Fprintf(b, "ADD%s %s %s\n", joinFlags(flags), quoteAll(a.Files), strconv.Quote(a.Target))
	}
}

// copyFlags builds the flag prefix shared by every COPY/ADD variant:
// --link (on unless explicitly disabled), then ownership and mode.
func copyFlags(link *bool, chown, chmod string) []string {
	var flags []string
	if dofigen.LinkEnabled(link) {
		flags = append(flags, "--link")
	}
	if chown != "" {
		flags = append(flags, "--chown="+chown)
	}
	if chmod != "" {
		flags = append(flags, "--chmod="+chmod)
	}
	return flags
}

// insertAfterLink places --from right after --link so the origin reads
// first among the variant-specific flags.
func insertAfterLink(flags []string, from string) []string {
	if len(flags) > 0 && flags[0] == "--link" {
		return append([]string{"--link", from}, flags[1:]...)
	}
	return append([]string{from}, flags...)
}

func joinFlags(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	return " " + strings.Join(flags, " ")
}

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return strings.Join(quoted, " ")
}

func fromRef(f dofigen.FromContext) string {
	switch f.Kind() {
	case dofigen.FromContextImage:
		return f.Image.String()
	case dofigen.FromContextBuilderStage:
		return f.Builder
	default:
		return f.Context
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shellQuote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"'$") {
		return strconv.Quote(s)
	}
	return s
}

func jsonArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
