package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/tree"

	"github.com/trly/pei-docker/internal/composetree"
	"github.com/trly/pei-docker/internal/userconfig"
)

// pass1 writes each present stage's settings into its x-cfg-stage-N section,
// before template references are resolved.
func (p *Processor) pass1(doc map[string]any, cfg *userconfig.UserConfig, pl *plan) error {
	for _, st := range cfg.Stages() {
		w := sectionWriter{doc: doc, root: composetree.P(helperSection(st.Index))}
		c := st.Config

		if st.Index != 1 && (c.SSH != nil || c.Apt != nil) {
			return fmt.Errorf("internal error: %s carries stage_1-only sections", st.Key)
		}

		if base := cfg.EffectiveBaseImage(st); base != "" {
			w.set(base, "image", "base")
		}
		if c.Image != nil && c.Image.Output != "" {
			w.set(c.Image.Output, "image", "output")
		}

		if st.Index == 1 && c.SSH != nil {
			writeSSH(&w, c.SSH, pl.users)
		}
		writeProxy(&w, c.Proxy)
		if st.Index == 1 && c.Apt != nil {
			writeApt(&w, c.Apt)
		}
		w.set(c.Device.Kind(), "device", "type")

		if w.err != nil {
			return fmt.Errorf("writing %s: %w", helperSection(st.Index), w.err)
		}
		p.logger.Debug("Wrote stage placeholders", "stage", st.Key)
	}
	return nil
}

func writeSSH(w *sectionWriter, ssh *userconfig.SSHConfig, users []sshUser) {
	w.set(ssh.Enabled(), "ssh", "enable")
	w.set(ssh.ContainerPort(), "ssh", "port")
	if ssh.HostPort != 0 {
		w.set(ssh.HostPort, "ssh", "host_port")
	} else {
		w.set("", "ssh", "host_port")
	}

	var names, passwords, pubkeys, privkeys, uids []string
	for _, u := range users {
		names = append(names, u.Name)
		passwords = append(passwords, u.Config.Password)
		pubkeys = append(pubkeys, u.Keys.PubkeyPath)
		privkeys = append(privkeys, u.Keys.PrivkeyPath)
		uid := ""
		if u.Config.UID != nil {
			uid = strconv.Itoa(*u.Config.UID)
		}
		uids = append(uids, uid)
	}
	w.set(strings.Join(names, ","), "ssh", "username")
	w.set(strings.Join(passwords, ","), "ssh", "password")
	w.set(strings.Join(pubkeys, ","), "ssh", "pubkey_file")
	w.set(strings.Join(privkeys, ","), "ssh", "privkey_file")
	w.set(strings.Join(uids, ","), "ssh", "uid")
}

func writeProxy(w *sectionWriter, proxy *userconfig.ProxyConfig) {
	if proxy == nil {
		w.set("", "proxy", "url")
		return
	}
	scheme := "http"
	if proxy.UseHTTPS {
		scheme = "https"
	}
	w.set(proxy.Host(), "proxy", "address")
	w.set(proxy.Port, "proxy", "port")
	w.set(fmt.Sprintf("%s://%s:%d", scheme, proxy.Host(), proxy.Port), "proxy", "url")
	w.set(proxy.EnableGlobally, "proxy", "enable_globally")
	w.set(proxy.RemoveAfterBuild, "proxy", "remove_after_build")
	w.set(proxy.UseHTTPS, "proxy", "use_https")
}

func writeApt(w *sectionWriter, apt *userconfig.AptConfig) {
	source := ""
	switch {
	case apt.RepoSource == "":
	case apt.IsMirror():
		source = apt.RepoSource
	default:
		source = userconfig.ContainerPath(apt.RepoSource)
	}
	w.set(source, "apt", "source_file")
	w.set(apt.KeepRepo(), "apt", "keep_source_file")
	w.set(apt.UseProxy, "apt", "use_proxy")
	w.set(apt.KeepProxyAfterBuild, "apt", "keep_proxy")
}

// sectionWriter sets values below root, remembering the first error.
type sectionWriter struct {
	doc  map[string]any
	root tree.Path
	err  error
}

func (w *sectionWriter) set(value any, segments ...string) {
	if w.err != nil {
		return
	}
	p := w.root
	for _, s := range segments {
		p = p.Next(s)
	}
	w.err = composetree.Set(w.doc, p, value)
}
