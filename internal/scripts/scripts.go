// Package scripts renders the shell wrappers that run user lifecycle scripts
// inside the container, and the per-stage environment file.
package scripts

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Hook names.
const (
	HookOnBuild     = "on_build"
	HookOnFirstRun  = "on_first_run"
	HookOnEveryRun  = "on_every_run"
	HookOnUserLogin = "on_user_login"
	HookOnEntry     = "on_entry"
)

// Hooks lists hook names in the order their wrappers are generated.
var Hooks = []string{HookOnBuild, HookOnFirstRun, HookOnEveryRun, HookOnUserLogin, HookOnEntry}

// EnvironmentFileName is the generated /etc/environment fragment.
const EnvironmentFileName = "_etc_environment.sh"

var wrapperNames = map[string]string{
	HookOnBuild:     "_custom-on-build.sh",
	HookOnFirstRun:  "_custom-on-first-run.sh",
	HookOnEveryRun:  "_custom-on-every-run.sh",
	HookOnUserLogin: "_custom-on-user-login.sh",
	HookOnEntry:     "_custom-on-entry.sh",
}

// WrapperFileName returns the generated wrapper file name for hook.
func WrapperFileName(hook string) string {
	return wrapperNames[hook]
}

var (
	errEmptyEntry    = errors.New("script entry is empty")
	errShellOperator = errors.New("shell operators (; & | < >) are not allowed in a script entry")
)

// Entry is one parsed "<path> [args...]" script entry.
type Entry struct {
	Raw  string
	Path string
	// Args are the arguments with shell quoting removed.
	Args []string
	// Words are the arguments exactly as written, quotes included. The
	// wrappers emit these so bash sees the same words the user wrote.
	Words []string
}

// ParseEntry splits raw with shell word rules. Quotes group words
// (--msg="a b" stays one argument) while $VAR references are kept verbatim
// so they expand when the wrapper runs, not now.
func ParseEntry(raw string) (Entry, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false

	words, err := p.Parse(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing script entry %q: %w", raw, err)
	}
	if p.Position >= 0 {
		return Entry{}, fmt.Errorf("parsing script entry %q: %w", raw, errShellOperator)
	}
	if len(words) == 0 {
		return Entry{}, errEmptyEntry
	}
	rawWords := splitWords(raw)
	if len(rawWords) != len(words) {
		return Entry{}, fmt.Errorf("parsing script entry %q: got %d words, expected %d", raw, len(rawWords), len(words))
	}
	return Entry{Raw: raw, Path: words[0], Args: words[1:], Words: rawWords[1:]}, nil
}

// splitWords splits s at unquoted blanks and keeps each word's text as
// written. Single quotes, double quotes and backslash escapes follow bash.
func splitWords(s string) []string {
	var (
		words          []string
		cur            strings.Builder
		inWord         bool
		single, double bool
		escaped        bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case single:
			single = r != '\''
		case r == '\\':
			escaped = true
		case double:
			double = r != '"'
		case r == '\'':
			single = true
		case r == '"':
			double = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
			continue
		}
		cur.WriteRune(r)
		inWord = true
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}

// ValidatePath checks that a script path stays inside the installation
// directory.
func ValidatePath(p string) error {
	if p == "" {
		return errEmptyEntry
	}
	if path.IsAbs(p) || strings.HasPrefix(p, "~") {
		return fmt.Errorf("script path %q must be relative to the installation directory", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("script path %q escapes the installation directory", p)
	}
	return nil
}

// File is a generated artifact, named relative to a stage's generated/ dir.
type File struct {
	Name    string
	Content string
	Mode    uint32
}

// Generate renders one wrapper per hook. hooks maps hook name to its raw
// entries; missing hooks render as wrappers that run nothing. The on_entry
// wrapper is empty when no entry is configured, and holds at most one entry.
func Generate(hooks map[string][]string) ([]File, error) {
	files := make([]File, 0, len(Hooks))
	for _, hook := range Hooks {
		entries := make([]Entry, 0, len(hooks[hook]))
		for _, raw := range hooks[hook] {
			e, err := ParseEntry(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", hook, err)
			}
			entries = append(entries, e)
		}

		var content string
		if hook == HookOnEntry {
			if len(entries) > 1 {
				return nil, fmt.Errorf("%s: at most one script allowed, got %d", hook, len(entries))
			}
			if len(entries) == 1 {
				content = RenderEntrypoint(entries[0])
			}
		} else {
			content = RenderHook(hook, entries)
		}
		files = append(files, File{Name: WrapperFileName(hook), Content: content, Mode: 0o755})
	}
	return files, nil
}

const header = `#!/bin/bash
# generated by pei-docker (%s), do not edit

DIR="$( cd "$( dirname "${BASH_SOURCE[0]}" )" && pwd )"
INSTALL_DIR="$DIR/../.."
`

// RenderHook renders the wrapper for a non-entry hook. on_user_login scripts
// are sourced so they can change the login shell; the rest run under bash.
func RenderHook(hook string, entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, header, hook)

	runner := "bash"
	if hook == HookOnUserLogin {
		runner = "source"
	}
	for _, e := range entries {
		target := "$INSTALL_DIR/" + e.Path
		b.WriteString("\n")
		fmt.Fprintf(&b, "echo %s\n", Quote("Executing "+target))
		b.WriteString(runner + " " + Quote(target))
		for _, w := range e.Words {
			b.WriteString(" " + w)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderEntrypoint renders the on_entry wrapper: it replaces the shell with
// the target script and forwards all process arguments after the configured ones.
func RenderEntrypoint(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, header, HookOnEntry)
	b.WriteString("\n")
	b.WriteString("exec bash " + Quote("$INSTALL_DIR/"+e.Path))
	for _, w := range e.Words {
		b.WriteString(" " + w)
	}
	b.WriteString(` "$@"` + "\n")
	return b.String()
}

// Quote double-quotes s for bash. Backslashes and double quotes are escaped;
// $ is left live so variable references expand when the script runs. Only
// generated paths go through Quote; user arguments are emitted as written.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// RenderEnvironment renders one KEY=VALUE line per variable, sorted by key.
// No variables yields an empty file.
func RenderEnvironment(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	return b.String()
}
