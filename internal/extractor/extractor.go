// Package extractor reconstructs discrete, human-issued commands from the
// raw bidirectional byte stream of an interactive terminal session.
//
// The extractor observes copies of both byte flows (operator keystrokes and
// remote echo/output) and never owns flow control: it cannot block the
// relay. It is a pure state machine over four modes:
//
//	AWAITING_PROMPT  output has not yet settled to an interactive prompt
//	AT_PROMPT        ready for input, accumulating a command buffer
//	IN_EDITOR        a full-screen program runs; everything is ignored
//	IN_HISTORY_SEARCH reverse-i-search is active; a search buffer is live
//
// Prompt detection over a bounded window of recent output is the only way
// editor mode ends, since full-screen programs do not reliably announce
// their own exit. Reconstruction is a best-effort heuristic: output the
// machine cannot classify simply produces no event for that turn.
package extractor

import (
	"log"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Mode is the extractor's current parsing state.
type Mode int

const (
	ModeAwaitingPrompt Mode = iota
	ModeAtPrompt
	ModeInEditor
	ModeInHistorySearch
)

func (m Mode) String() string {
	switch m {
	case ModeAwaitingPrompt:
		return "awaiting_prompt"
	case ModeAtPrompt:
		return "at_prompt"
	case ModeInEditor:
		return "in_editor"
	case ModeInHistorySearch:
		return "in_history_search"
	default:
		return "unknown"
	}
}

// Control bytes handled by the keystroke state machine.
const (
	ctrlC     = 0x03
	tab       = 0x09
	ctrlR     = 0x12
	esc       = 0x1b
	backspace = 0x7f
)

// defaultWindowSize bounds the sliding prompt-detection window, keeping
// per-chunk extraction cost independent of total output volume.
const defaultWindowSize = 4096

// maxEscLen caps the escape-sequence accumulator; anything longer is not a
// sequence we care about.
const maxEscLen = 32

// DefaultPromptPattern matches common interactive shell prompt shapes
// ("user@host:path$ ") at the end of recent output.
const DefaultPromptPattern = `[A-Za-z0-9._-]+@[A-Za-z0-9._-]+:[^\r\n]*[$#]\s*$`

// DefaultEditors lists full-screen programs whose invocation suspends
// extraction until the next detected prompt.
var DefaultEditors = []string{"vi", "vim", "nvim", "nano", "emacs", "less", "more", "man", "top", "htop"}

// Config tunes the extractor. Zero values fall back to package defaults.
type Config struct {
	PromptPattern *regexp.Regexp
	Editors       []string
	WindowSize    int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		PromptPattern: regexp.MustCompile(DefaultPromptPattern),
		Editors:       DefaultEditors,
		WindowSize:    defaultWindowSize,
	}
}

// Meta identifies the session a command was issued in. It is stamped onto
// every emitted event.
type Meta struct {
	Operator   string
	HostID     uint
	HostName   string
	HostAddr   string
	Credential string
}

// CommandEvent is one reconstructed, human-issued command. Immutable once
// emitted; Command is non-empty and has had control sequences and prompt
// fragments stripped.
type CommandEvent struct {
	Meta
	Command string
	Time    time.Time
}

// Extractor holds the parsing state for one session. It is owned by exactly
// one session and needs no locking.
type Extractor struct {
	cfg  Config
	meta Meta

	mode Mode

	cmd    []rune // command accumulation buffer
	search []rune // reverse-i-search buffer
	recall string // pending recalled-command override

	escSeq       []byte // escape-sequence accumulator
	tabPending   bool   // a Tab was sent; completion echo is expected
	arrowPending bool   // an arrow-key recall marker was just seen

	window    []byte // sliding window of recent remote output
	inPartial []byte // split multi-byte character at an input chunk boundary

	promptWarned bool // a no-prompt-match warning was already logged this wait

	nowFn func() time.Time
}

// New creates an extractor for one session.
func New(cfg Config, meta Meta) *Extractor {
	if cfg.PromptPattern == nil {
		cfg.PromptPattern = regexp.MustCompile(DefaultPromptPattern)
	}
	if len(cfg.Editors) == 0 {
		cfg.Editors = DefaultEditors
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	return &Extractor{cfg: cfg, mode: ModeAwaitingPrompt, meta: meta, nowFn: time.Now}
}

// Mode returns the current parsing mode.
func (e *Extractor) Mode() Mode {
	return e.mode
}

// SetNowFunc sets the clock used for event timestamps in tests.
func (e *Extractor) SetNowFunc(fn func() time.Time) {
	e.nowFn = fn
}

// ObserveInput consumes a chunk of operator keystrokes and returns any
// commands finalized by it. Inside a full-screen editor all input is
// ignored; bytes split mid-rune at a chunk boundary are joined with the next
// chunk, and genuinely invalid bytes decode to the replacement character.
func (e *Extractor) ObserveInput(data []byte) []CommandEvent {
	if e.mode == ModeInEditor {
		return nil
	}

	var events []CommandEvent
	buf := data
	if len(e.inPartial) > 0 {
		buf = append(e.inPartial, data...)
		e.inPartial = nil
	}

	i := 0
	for i < len(buf) {
		b := buf[i]

		if len(e.escSeq) > 0 {
			e.feedEscape(b)
			i++
			continue
		}

		if b < utf8.RuneSelf {
			if ev, ok := e.handleControl(b); ok {
				if ev != nil {
					events = append(events, *ev)
				}
				// A finalized editor invocation swallows the rest of the chunk.
				if e.mode == ModeInEditor {
					return events
				}
			} else if b >= 32 {
				e.appendRune(rune(b))
			}
			i++
			continue
		}

		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(buf[i:]) {
				// Possibly the head of a rune split across chunks.
				e.inPartial = append(e.inPartial, buf[i:]...)
				break
			}
			// Truly invalid byte: substitute and continue.
			r = utf8.RuneError
		}
		e.appendRune(r)
		i += size
	}

	return events
}

// handleControl processes a single ASCII byte. It reports whether the byte
// was consumed as a control action; a non-nil event means Enter finalized a
// command.
func (e *Extractor) handleControl(b byte) (*CommandEvent, bool) {
	switch b {
	case ctrlC:
		e.cmd = e.cmd[:0]
		e.search = e.search[:0]
		e.recall = ""
		e.tabPending = false
		e.arrowPending = false
		if e.mode == ModeInHistorySearch {
			e.mode = ModeAtPrompt
		}
		return nil, true
	case ctrlR:
		e.mode = ModeInHistorySearch
		e.search = e.search[:0]
		return nil, true
	case esc:
		e.escSeq = append(e.escSeq[:0], b)
		return nil, true
	case backspace:
		if e.mode == ModeInHistorySearch {
			if n := len(e.search); n > 0 {
				e.search = e.search[:n-1]
			}
		} else if n := len(e.cmd); n > 0 {
			e.cmd = e.cmd[:n-1]
		}
		return nil, true
	case tab:
		e.tabPending = true
		return nil, true
	case '\r', '\n':
		return e.finalize(), true
	default:
		return nil, false
	}
}

// feedEscape accumulates one escape sequence. Only CSI "A"/"B" (arrow
// up/down) matters: it marks that the next echoed output line carries a
// recalled history entry. Everything else is discarded.
func (e *Extractor) feedEscape(b byte) {
	if len(e.escSeq) == 1 {
		if b == '[' {
			e.escSeq = append(e.escSeq, b)
		} else {
			e.escSeq = e.escSeq[:0]
		}
		return
	}

	e.escSeq = append(e.escSeq, b)
	if b >= 0x40 && b <= 0x7e { // CSI final byte
		if len(e.escSeq) == 3 && (b == 'A' || b == 'B') {
			e.arrowPending = true
		}
		e.escSeq = e.escSeq[:0]
		return
	}
	if len(e.escSeq) > maxEscLen {
		e.escSeq = e.escSeq[:0]
	}
}

// appendRune adds a printable rune to the active buffer.
func (e *Extractor) appendRune(r rune) {
	if e.mode == ModeInHistorySearch {
		e.search = append(e.search, r)
	} else {
		e.cmd = append(e.cmd, r)
	}
}

// finalize handles Enter: a pending recall override replaces the buffer, the
// result is cleaned, and a non-empty command becomes an event. An editor
// invocation switches to editor mode; otherwise the machine returns to
// awaiting the next prompt.
func (e *Extractor) finalize() *CommandEvent {
	text := string(e.cmd)
	if e.recall != "" {
		text = e.recall
	}

	var ev *CommandEvent
	if cleaned := CleanCommand(text); cleaned != "" {
		ev = &CommandEvent{
			Meta:    e.meta,
			Command: cleaned,
			Time:    e.nowFn(),
		}
		if e.isEditorCommand(cleaned) {
			e.mode = ModeInEditor
		} else {
			e.mode = ModeAwaitingPrompt
		}
	} else {
		e.mode = ModeAwaitingPrompt
	}

	e.cmd = e.cmd[:0]
	e.search = e.search[:0]
	e.recall = ""
	e.tabPending = false
	e.arrowPending = false
	return ev
}

// isEditorCommand reports whether a cleaned command invokes a known
// full-screen program, optionally behind sudo.
func (e *Extractor) isEditorCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) > 0 && fields[0] == "sudo" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return false
	}
	name := path.Base(fields[0])
	for _, editor := range e.cfg.Editors {
		if name == editor {
			return true
		}
	}
	return false
}

// ObserveOutput consumes a chunk of remote output. Prompt detection always
// runs first, since a detected prompt is the only exit from editor mode.
// After that the chunk may resolve a pending reverse-i-search, arrow recall,
// or tab completion.
func (e *Extractor) ObserveOutput(data []byte) {
	e.window = append(e.window, data...)
	if len(e.window) > e.cfg.WindowSize {
		e.window = e.window[len(e.window)-e.cfg.WindowSize:]
		if e.mode == ModeAwaitingPrompt && !e.promptWarned {
			log.Printf("[extractor] no prompt match in the last %d output bytes; prompt pattern may need tuning", e.cfg.WindowSize)
			e.promptWarned = true
		}
	}
	if e.cfg.PromptPattern.MatchString(StripANSI(string(e.window))) {
		if e.mode == ModeAwaitingPrompt || e.mode == ModeInEditor {
			e.mode = ModeAtPrompt
		}
		e.window = e.window[:0]
		e.promptWarned = false
	}

	if e.mode == ModeInEditor {
		return
	}

	plain := StripANSI(string(data))
	switch {
	case e.mode == ModeInHistorySearch:
		if m := searchEchoRe.FindStringSubmatch(plain); m != nil {
			e.recall = strings.TrimSpace(stripNonPrintable(m[1]))
		}
	case e.arrowPending:
		for _, line := range strings.FieldsFunc(plain, isLineBreak) {
			line = strings.TrimSpace(stripNonPrintable(promptPrefixRe.ReplaceAllString(line, "")))
			if line != "" {
				e.recall = line
				e.arrowPending = false
				break
			}
		}
	case e.tabPending:
		e.cmd = append(e.cmd, []rune(stripNonPrintable(plain))...)
		e.tabPending = false
	}
}

func isLineBreak(r rune) bool {
	return r == '\r' || r == '\n'
}
