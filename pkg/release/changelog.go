// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package release

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pault.ag/go/debian/changelog"
)

// ChangelogDateFormat is the trailer date layout dch writes.
const ChangelogDateFormat = "Mon, 02 Jan 2006 15:04:05 -0700"

// Entry is one stanza of a Debian changelog.
type Entry struct {
	Package       string
	Version       string
	Distributions []string
	Urgency       string
	// Changes holds the body lines without their two-space indent.
	Changes    []string
	Maintainer string
	Email      string
	Date       string
}

// Changelog is a parsed debian/changelog, newest entry first.
type Changelog struct {
	Entries []Entry
}

// LoadChangelog parses the changelog at path. A missing file yields an
// empty changelog.
func LoadChangelog(path string) (*Changelog, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Changelog{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadChangelog(f)
}

// ReadChangelog parses changelog stanzas from r.
func ReadChangelog(r io.Reader) (*Changelog, error) {
	entries, err := changelog.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse changelog: %w", err)
	}
	cl := &Changelog{Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		cl.Entries = append(cl.Entries, fromDebian(e))
	}
	return cl, nil
}

func fromDebian(e changelog.ChangelogEntry) Entry {
	name, email := splitChangedBy(e.ChangedBy)
	var changes []string
	for _, line := range strings.Split(e.Changelog, "\n") {
		line = strings.TrimRight(line, " \t\r")
		changes = append(changes, strings.TrimPrefix(line, "  "))
	}
	return Entry{
		Package:       e.Source,
		Version:       e.Version.String(),
		Distributions: strings.Fields(e.Target),
		Urgency:       urgency(e.Arguments),
		Changes:       trimBlank(changes),
		Maintainer:    name,
		Email:         email,
		Date:          FormatChangelogDate(e.When),
	}
}

// splitChangedBy splits "Name <email>".
func splitChangedBy(s string) (name, email string) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, "<")
	if i < 0 || !strings.HasSuffix(s, ">") {
		return s, ""
	}
	return strings.TrimSpace(s[:i]), s[i+1 : len(s)-1]
}

// Latest returns the newest entry, or nil for an empty changelog.
func (c *Changelog) Latest() *Entry {
	if len(c.Entries) == 0 {
		return nil
	}
	return &c.Entries[0]
}

// Prepend adds e as the newest entry.
func (c *Changelog) Prepend(e Entry) {
	c.Entries = append([]Entry{e}, c.Entries...)
}

// WriteTo renders the changelog in dch's layout.
func (c *Changelog) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	for i, e := range c.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		e.render(&b)
	}
	return b.WriteTo(w)
}

// Bytes renders the changelog.
func (c *Changelog) Bytes() []byte {
	var b bytes.Buffer
	c.WriteTo(&b)
	return b.Bytes()
}

func (e Entry) render(b *bytes.Buffer) {
	fmt.Fprintf(b, "%s (%s) %s; urgency=%s\n\n", e.Package, e.Version, strings.Join(e.Distributions, " "), e.Urgency)
	for _, line := range e.Changes {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "\n -- %s <%s>  %s\n", e.Maintainer, e.Email, e.Date)
}

// FormatChangelogDate formats t for an entry trailer.
func FormatChangelogDate(t time.Time) string {
	return t.Format(ChangelogDateFormat)
}

func urgency(args map[string]string) string {
	for k, v := range args {
		if strings.EqualFold(strings.TrimSpace(k), "urgency") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
