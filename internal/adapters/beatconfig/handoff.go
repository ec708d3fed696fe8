// Package beatconfig rewrites a capture agent's config file with the
// address of a freshly ready search engine.
package beatconfig

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

const (
	DefaultHostPattern    = `hosts: \[".*?"\]`
	DefaultHostTemplate   = `hosts: ["https://{ip}:9200"]`
	DefaultCredentialLine = `#username: "elastic"`
)

// Writer applies a ConfigHandoff to files on the local filesystem.
type Writer struct {
	root string
}

// NewWriter resolves relative handoff files against root.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Apply rewrites the host line(s) and activates the commented credential
// line. Other lines are written back unchanged.
func (w *Writer) Apply(ctx context.Context, spec domain.ConfigHandoff, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := spec.File
	if !filepath.IsAbs(path) && w.root != "" {
		path = filepath.Join(w.root, path)
	}

	pattern := spec.HostPattern
	if pattern == "" {
		pattern = DefaultHostPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return &domain.HandoffError{File: path, Err: fmt.Errorf("invalid host pattern: %w", err)}
	}
	tmpl := spec.HostTemplate
	if tmpl == "" {
		tmpl = DefaultHostTemplate
	}
	hostLine := strings.ReplaceAll(tmpl, "{ip}", address)

	info, err := os.Stat(path)
	if err != nil {
		return &domain.HandoffError{File: path, Err: err}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return &domain.HandoffError{File: path, Err: err}
	}

	out, hosts, creds := Rewrite(content, re, hostLine, spec.CredentialLine)
	if hosts == 0 {
		return &domain.HandoffError{File: path, Err: fmt.Errorf("no line matches %q", pattern)}
	}

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return &domain.HandoffError{File: path, Err: err}
	}
	log.Info().Str("file", path).Str("address", address).Int("hosts", hosts).Int("credentials", creds).Msg("config handoff applied")
	return nil
}

// Rewrite performs the line-oriented substitution and reports how many host
// and credential lines were changed. Line endings are kept as they were.
func Rewrite(content []byte, hostPattern *regexp.Regexp, hostLine, credentialLine string) ([]byte, int, int) {
	var buf bytes.Buffer
	buf.Grow(len(content))
	var hosts, creds int
	active := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credentialLine), "#"))

	for _, raw := range bytes.SplitAfter(content, []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		body := bytes.TrimRight(raw, "\r\n")
		eol := raw[len(body):]
		line := string(body)
		switch {
		case hostPattern.MatchString(line):
			line = hostPattern.ReplaceAllLiteralString(line, hostLine)
			hosts++
		case credentialLine != "" && strings.TrimSpace(line) == strings.TrimSpace(credentialLine):
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			line = indent + active
			creds++
		}
		buf.WriteString(line)
		buf.Write(eol)
	}
	return buf.Bytes(), hosts, creds
}
