// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package capability implements everything an extension script can ask the
// host to do. Logging, prompting and probing happen immediately; every
// mutating request becomes a plan proposal.
package capability

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apix-dev/apix/internal/plan"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/charmbracelet/lipgloss"
)

// Level is the severity of an extension log line.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a level name onto a Level. Unknown names are Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var levelStyles = map[Level]lipgloss.Style{
	LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
	LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	LevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
}

// Entry is one line of the invocation log.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Surface is the invocation state shared by every callback registered for
// one extension run.
type Surface struct {
	mu     sync.Mutex
	name   string
	plan   *plan.Plan
	logs   []Entry
	out    io.Writer
	in     *bufio.Reader
	logger *slog.Logger
	prober Prober
	color  bool
	now    func() time.Time
}

// Option configures a Surface.
type Option func(*Surface)

// WithOutput sets where log lines and prompts are written. Default stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Surface) { s.out = w }
}

// WithInput sets where answers to prompts are read from. Default stdin.
func WithInput(r io.Reader) Option {
	return func(s *Surface) { s.in = bufio.NewReader(r) }
}

// WithProber replaces the command probe implementation.
func WithProber(p Prober) Option {
	return func(s *Surface) { s.prober = p }
}

// WithColor enables coloured level names.
func WithColor(enabled bool) Option {
	return func(s *Surface) { s.color = enabled }
}

// WithLogger sets the process logger that mirrors extension log lines.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Surface) { s.now = now }
}

// New creates the surface of one invocation of extension name. Proposals
// go to p.
func New(name string, p *plan.Plan, opts ...Option) *Surface {
	s := &Surface{
		name:   name,
		plan:   p,
		out:    os.Stdout,
		in:     bufio.NewReader(os.Stdin),
		logger: slog.Default(),
		prober: ExecProber{Timeout: 5 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("extension", name)
	return s
}

// Name returns the extension name.
func (s *Surface) Name() string { return s.name }

// Plan returns the plan receiving proposals.
func (s *Surface) Plan() *plan.Plan { return s.plan }

// Log appends a line to the invocation log and prints it right away.
func (s *Surface) Log(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLocked(level, msg)
}

func (s *Surface) logLocked(level Level, msg string) {
	e := s.record(level, msg)

	label := level.String()
	if s.color {
		label = levelStyles[level].Render(label)
	}
	fmt.Fprintf(s.out, "[%s] [%s] [%s] %s\n", s.name, e.Time.Format("2006-01-02T15:04:05"), label, msg)
	s.logger.Debug("extension log", "level", level.String(), "message", msg)
}

func (s *Surface) record(level Level, msg string) Entry {
	e := Entry{Time: s.now(), Level: level, Message: msg}
	s.logs = append(s.logs, e)
	return e
}

// Ask prints question, blocks until a line is read and returns it trimmed.
// Both are appended to the log. There is no timeout.
func (s *Surface) Ask(question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logLocked(LevelInfo, "> "+question)
	fmt.Fprint(s.out, "> ")

	line, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", apixerr.Wrap(err, apixerr.CodeExtensionPromptInputNotFound,
			"reading answer to "+question, apixerr.FieldExtension(s.name))
	}

	answer := strings.TrimSpace(line)
	s.record(LevelInfo, "[ask] "+answer)
	return answer, nil
}

// CreateFile proposes writing a new file.
func (s *Surface) CreateFile(path, content string) error {
	return s.plan.Add(plan.CreateFile{Path: path, Content: content})
}

// ModifyFile proposes replacing an existing file.
func (s *Surface) ModifyFile(path, content string) error {
	return s.plan.Add(plan.ModifyFile{Path: path, Content: content})
}

// DeleteFile proposes removing a file.
func (s *Surface) DeleteFile(path string) error {
	return s.plan.Add(plan.DeleteFile{Path: path})
}

// RunCommand proposes running a command at apply time and logs it.
func (s *Surface) RunCommand(command string, args []string) error {
	cmd := plan.RunCommand{Command: command, Args: append([]string(nil), args...)}
	if err := s.plan.Add(cmd); err != nil {
		return err
	}
	s.Log(LevelInfo, "Proposed system command: "+cmd.String())
	return nil
}

// CommandExists reports whether command can be found on PATH.
func (s *Surface) CommandExists(command string) bool {
	return s.prober.Exists(command)
}

// CommandVersion runs "command flag" and returns what it printed. An empty
// flag means --version.
func (s *Surface) CommandVersion(command, flag string) string {
	if flag == "" {
		flag = DefaultVersionFlag
	}
	return s.prober.Version(command, flag)
}

// Logs returns a copy of the invocation log.
func (s *Surface) Logs() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Proposals returns the proposals collected so far, in order.
func (s *Surface) Proposals() []plan.Proposal {
	return s.plan.Proposals()
}
