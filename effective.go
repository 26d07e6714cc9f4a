package dofigen

// EffectiveDoc renders the resolved descriptor back into the generic
// document shape the parser accepts, so the `effective` output can be
// fed straight back into Load and produce the same descriptor. Free-form
// maps serialize with sorted keys (the marshalers sort map keys), which
// keeps the dump deterministic.
func (d *Descriptor) EffectiveDoc() map[string]any {
	doc := d.Stage.effectiveDoc()

	putList(doc, "context", d.Context)
	putList(doc, "ignore", d.Ignore)
	if len(d.Builders) > 0 {
		builders := map[string]any{}
		for _, b := range d.Builders {
			builders[b.Name] = b.Stage.effectiveDoc()
		}
		doc["builders"] = builders
	}
	putList(doc, "entrypoint", d.Entrypoint)
	putList(doc, "cmd", d.Cmd)
	putList(doc, "volume", d.Volume)
	if len(d.Expose) > 0 {
		ports := make([]any, len(d.Expose))
		for i, p := range d.Expose {
			ports[i] = map[string]any{"port": p.Port, "protocol": p.Protocol}
		}
		doc["expose"] = ports
	}
	if d.Healthcheck != nil {
		doc["healthcheck"] = d.Healthcheck.effectiveDoc()
	}
	putStringMap(doc, "globalArg", d.GlobalArg)
	return doc
}

func (s *Stage) effectiveDoc() map[string]any {
	doc := map[string]any{}

	from := map[string]any{}
	switch s.From.Kind() {
	case FromContextImage:
		img := map[string]any{"path": s.From.Image.Path}
		putString(img, "host", s.From.Image.Host)
		putString(img, "port", s.From.Image.Port)
		putString(img, "tag", s.From.Image.Tag)
		putString(img, "digest", s.From.Image.Digest)
		putString(img, "platform", s.From.Image.Platform)
		from["fromImage"] = img
	case FromContextBuilderStage:
		from["fromBuilder"] = s.From.Builder
	default:
		if s.From.Context != "" {
			from["fromContext"] = s.From.Context
		}
	}
	if len(from) > 0 {
		doc["from"] = from
	}

	if s.User != nil {
		u := map[string]any{"user": s.User.User}
		putString(u, "group", s.User.Group)
		doc["user"] = u
	}
	putString(doc, "workdir", s.Workdir)
	putStringMap(doc, "arg", s.Arg)
	putStringMap(doc, "env", s.Env)
	if len(s.Label) > 0 {
		doc["label"] = map[string]any(s.Label)
	}
	if len(s.Copy) > 0 {
		copies := make([]any, len(s.Copy))
		for i, c := range s.Copy {
			copies[i] = c.effectiveDoc()
		}
		doc["copy"] = copies
	}
	if s.Root != nil {
		doc["root"] = s.Root.effectiveDoc()
	}
	for k, v := range s.Run.effectiveDoc() {
		doc[k] = v
	}
	return doc
}

func (r *Run) effectiveDoc() map[string]any {
	doc := map[string]any{}
	putList(doc, "run", r.Run)
	if len(r.Cache) > 0 {
		items := make([]any, len(r.Cache))
		for i, c := range r.Cache {
			m := map[string]any{"target": c.Target}
			putString(m, "id", c.ID)
			putString(m, "sharing", string(c.Sharing))
			putString(m, "source", c.Source)
			putString(m, "chown", c.Chown)
			putString(m, "chmod", c.Chmod)
			if c.Readonly {
				m["readonly"] = true
			}
			if c.From != nil {
				m["from"] = fromContextDoc(*c.From)
			}
			items[i] = m
		}
		doc["cache"] = items
	}
	if len(r.Bind) > 0 {
		items := make([]any, len(r.Bind))
		for i, m := range r.Bind {
			bm := map[string]any{"target": m.Target}
			putString(bm, "source", m.Source)
			if m.ReadWrite {
				bm["rw"] = true
			}
			if m.From != nil {
				bm["from"] = fromContextDoc(*m.From)
			}
			items[i] = bm
		}
		doc["bind"] = items
	}
	if len(r.TmpFs) > 0 {
		items := make([]any, len(r.TmpFs))
		for i, t := range r.TmpFs {
			m := map[string]any{"target": t.Target}
			putString(m, "size", t.Size)
			items[i] = m
		}
		doc["tmpfs"] = items
	}
	if len(r.Secret) > 0 {
		items := make([]any, len(r.Secret))
		for i, sec := range r.Secret {
			m := map[string]any{"id": sec.ID}
			putString(m, "target", sec.Target)
			putString(m, "env", sec.Env)
			if sec.Required {
				m["required"] = true
			}
			items[i] = m
		}
		doc["secret"] = items
	}
	if len(r.Ssh) > 0 {
		items := make([]any, len(r.Ssh))
		for i, ssh := range r.Ssh {
			m := map[string]any{"id": ssh.ID}
			putString(m, "target", ssh.Target)
			if ssh.Required {
				m["required"] = true
			}
			items[i] = m
		}
		doc["ssh"] = items
	}
	putString(doc, "network", string(r.Network))
	putString(doc, "security", string(r.Security))
	putList(doc, "shell", r.Shell)
	return doc
}

func (c CopyResource) effectiveDoc() map[string]any {
	switch {
	case c.Copy != nil:
		m := map[string]any{"paths": anyList(c.Copy.Paths)}
		if c.Copy.From != nil {
			m["from"] = fromContextDoc(*c.Copy.From)
		}
		if len(c.Copy.Exclude) > 0 {
			m["exclude"] = anyList(c.Copy.Exclude)
		}
		if c.Copy.Parents {
			m["parents"] = true
		}
		putLink(m, c.Copy.Link)
		putString(m, "chown", c.Copy.Chown)
		putString(m, "chmod", c.Copy.Chmod)
		putString(m, "target", c.Copy.Target)
		return m
	case c.CopyContent != nil:
		m := map[string]any{"content": c.CopyContent.Content, "target": c.CopyContent.Target}
		if c.CopyContent.Substitute {
			m["substitute"] = true
		}
		putLink(m, c.CopyContent.Link)
		putString(m, "chown", c.CopyContent.Chown)
		putString(m, "chmod", c.CopyContent.Chmod)
		return m
	case c.AddGitRepo != nil:
		m := map[string]any{"repo": c.AddGitRepo.Repo}
		if c.AddGitRepo.KeepGitDir {
			m["keepGitDir"] = true
		}
		if len(c.AddGitRepo.Exclude) > 0 {
			m["exclude"] = anyList(c.AddGitRepo.Exclude)
		}
		putLink(m, c.AddGitRepo.Link)
		putString(m, "chown", c.AddGitRepo.Chown)
		putString(m, "chmod", c.AddGitRepo.Chmod)
		putString(m, "target", c.AddGitRepo.Target)
		putString(m, "checksum", c.AddGitRepo.Checksum)
		return m
	case c.Add != nil:
		m := map[string]any{"files": anyList(c.Add.Files)}
		putString(m, "checksum", c.Add.Checksum)
		if c.Add.Unpack {
			m["unpack"] = true
		}
		putLink(m, c.Add.Link)
		putString(m, "chown", c.Add.Chown)
		putString(m, "chmod", c.Add.Chmod)
		putString(m, "target", c.Add.Target)
		return m
	default:
		return map[string]any{}
	}
}

func (h *Healthcheck) effectiveDoc() map[string]any {
	if h.None {
		return map[string]any{"none": true}
	}
	doc := map[string]any{}
	putList(doc, "cmd", h.Cmd)
	putString(doc, "interval", h.Interval)
	putString(doc, "timeout", h.Timeout)
	putString(doc, "startPeriod", h.StartPeriod)
	if h.Retries != 0 {
		doc["retries"] = h.Retries
	}
	return doc
}

func fromContextDoc(f FromContext) map[string]any {
	switch f.Kind() {
	case FromContextImage:
		return map[string]any{"fromImage": f.Image.String()}
	case FromContextBuilderStage:
		return map[string]any{"fromBuilder": f.Builder}
	default:
		return map[string]any{"fromContext": f.Context}
	}
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func putStringMap(m map[string]any, key string, val map[string]string) {
	if len(val) == 0 {
		return
	}
	out := make(map[string]any, len(val))
	for k, v := range val {
		out[k] = v
	}
	m[key] = out
}

func putList(m map[string]any, key string, items []string) {
	if len(items) > 0 {
		m[key] = anyList(items)
	}
}

func putLink(m map[string]any, link *bool) {
	if link != nil {
		m["link"] = *link
	}
}

func anyList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
