// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package plan

import (
	"fmt"
	"os"
	"strings"

	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// RenderOptions controls Render.
type RenderOptions struct {
	// Color styles the change markers.
	Color bool
	// Diff appends a unified diff for every created or modified file.
	Diff bool
	// Context is the number of diff context lines, 3 when zero.
	Context int
}

var (
	markerStyles = map[Kind]lipgloss.Style{
		KindCreateFile: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		KindModifyFile: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		KindDeleteFile: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		KindRunCommand: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
	}
	headerStyle = lipgloss.NewStyle().Bold(true)
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	delStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

var markers = map[Kind]string{
	KindCreateFile: "A",
	KindModifyFile: "M",
	KindDeleteFile: "D",
	KindRunCommand: "$",
}

// Render returns a review listing of a validated plan in proposal order. It
// reads current file content for diffs but changes nothing.
func (p *Plan) Render(opts RenderOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateValidated {
		return "", apixerr.Errorf(apixerr.CodePlanRenderFailure, "cannot render a %s plan", p.state)
	}

	style := func(s lipgloss.Style, text string) string {
		if !opts.Color {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString(style(headerStyle, p.summaryLine()))
	b.WriteString("\n")

	for _, s := range p.steps {
		fmt.Fprintf(&b, "  %s  %s", style(markerStyles[s.proposal.Kind()], markers[s.proposal.Kind()]), p.display(s))
		if c, ok := s.proposal.(CreateFile); ok {
			fmt.Fprintf(&b, " (%d bytes)", len(c.Content))
		}
		b.WriteString("\n")
	}

	if !opts.Diff {
		return b.String(), nil
	}

	for _, s := range p.steps {
		diff, err := p.diff(s, opts.Context)
		if err != nil {
			return "", err
		}
		if diff == "" {
			continue
		}
		b.WriteString("\n")
		for _, line := range strings.SplitAfter(diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				b.WriteString(style(headerStyle, strings.TrimSuffix(line, "\n")))
			case strings.HasPrefix(line, "+"):
				b.WriteString(style(addStyle, strings.TrimSuffix(line, "\n")))
			case strings.HasPrefix(line, "-"):
				b.WriteString(style(delStyle, strings.TrimSuffix(line, "\n")))
			case strings.HasPrefix(line, "@@"):
				b.WriteString(style(hunkStyle, strings.TrimSuffix(line, "\n")))
			default:
				b.WriteString(strings.TrimSuffix(line, "\n"))
			}
			if strings.HasSuffix(line, "\n") {
				b.WriteString("\n")
			}
		}
	}

	return b.String(), nil
}

func (p *Plan) summaryLine() string {
	counts := map[Kind]int{}
	for _, s := range p.steps {
		counts[s.proposal.Kind()]++
	}
	noun := "changes"
	if len(p.steps) == 1 {
		noun = "change"
	}
	return fmt.Sprintf("Plan: %d %s (%d create, %d modify, %d delete, %d command)",
		len(p.steps), noun,
		counts[KindCreateFile], counts[KindModifyFile], counts[KindDeleteFile], counts[KindRunCommand])
}

func (p *Plan) diff(s step, contextLines int) (string, error) {
	if contextLines == 0 {
		contextLines = 3
	}
	rel := p.view.Rel(s.path)

	var before, after, from string
	switch prop := s.proposal.(type) {
	case CreateFile:
		after, from = prop.Content, "/dev/null"
	case ModifyFile:
		data, err := os.ReadFile(s.path)
		if err != nil {
			return "", apixerr.Wrap(err, apixerr.CodePlanRenderFailure, "reading current content",
				apixerr.FieldPath(prop.Path))
		}
		before, after, from = string(data), prop.Content, "a/"+rel
	default:
		return "", nil
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: from,
		ToFile:   "b/" + rel,
		Context:  contextLines,
	})
	if err != nil {
		return "", apixerr.Wrap(err, apixerr.CodePlanRenderFailure, "building diff", apixerr.FieldPath(rel))
	}
	return diff, nil
}

// Summary is the machine-readable form of a plan.
type Summary struct {
	State   string   `yaml:"state"`
	Changes []Change `yaml:"changes"`
}

// Change is one entry of a Summary.
type Change struct {
	Op      Kind     `yaml:"op"`
	Path    string   `yaml:"path,omitempty"`
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Bytes   *int     `yaml:"bytes,omitempty"`
}

// Summary describes a validated plan.
func (p *Plan) Summary() (Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateValidated {
		return Summary{}, apixerr.Errorf(apixerr.CodePlanRenderFailure, "cannot summarise a %s plan", p.state)
	}

	sum := Summary{State: p.state.String(), Changes: make([]Change, 0, len(p.steps))}
	for _, s := range p.steps {
		c := Change{Op: s.proposal.Kind()}
		switch prop := s.proposal.(type) {
		case CreateFile:
			n := len(prop.Content)
			c.Path, c.Bytes = p.view.Rel(s.path), &n
		case ModifyFile:
			n := len(prop.Content)
			c.Path, c.Bytes = p.view.Rel(s.path), &n
		case DeleteFile:
			c.Path = p.view.Rel(s.path)
		case RunCommand:
			c.Command, c.Args = prop.Command, prop.Args
		}
		sum.Changes = append(sum.Changes, c)
	}
	return sum, nil
}

// RenderYAML renders Summary as YAML.
func (p *Plan) RenderYAML() (string, error) {
	sum, err := p.Summary()
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(sum)
	if err != nil {
		return "", apixerr.Wrap(err, apixerr.CodePlanRenderFailure, "encoding plan summary")
	}
	return string(out), nil
}
