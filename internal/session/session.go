package session

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/shellgate/bastion/internal/extractor"
)

// RemoteLink is the session's view of the remote shell channel. Satisfied by
// *shelllink.Link.
type RemoteLink interface {
	io.Writer
	Reader() io.Reader
	Resize(cols, rows uint16) error
	Close() error
}

// Bounds on client-supplied terminal dimensions.
const (
	MaxTermCols uint16 = 500
	MaxTermRows uint16 = 200
)

// maxReadChunk caps a single read from the remote PTY, bounding
// per-iteration relay latency regardless of how fast the remote produces
// output.
const maxReadChunk = 256 * 1024

// eventQueueSize is the dispatch queue between extraction and
// audit/notification. When the queue is full the oldest event is dropped
// with a warning rather than stalling the byte relay.
const eventQueueSize = 256

// ClientConn is the client side of a session: the streaming connection the
// operator's browser terminal is attached to. Implemented by the WebSocket
// handler.
type ClientConn interface {
	// WriteOutput pushes raw remote output bytes to the client.
	WriteOutput(p []byte) error
	// WriteControl pushes a JSON control frame to the client.
	WriteControl(v interface{}) error
	// Close closes the connection with a close code and reason.
	Close(code int, reason string)
}

// Session is one live proxy instance bridging a client connection to a
// remote shell. Created by Supervisor.Open, destroyed on disconnect,
// timeout, or error.
type Session struct {
	ID         string
	Operator   string
	HostID     uint
	HostName   string
	HostAddr   string
	Credential string
	CreatedAt  time.Time

	link   RemoteLink
	client ClientConn
	sup    *Supervisor

	// extMu serializes the two byte flows into the extractor: keystrokes
	// arrive on the handler goroutine, remote output on the read loop.
	extMu sync.Mutex
	ext   *extractor.Extractor

	events chan extractor.CommandEvent
	done   chan struct{}

	mu           sync.Mutex
	lastActivity time.Time
	explicit     bool // client supplies explicit command frames
	closed       bool

	closeOnce sync.Once
}

// touch records client activity for the idle-timeout check.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns when the client last sent a frame.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send relays raw client keystrokes to the remote PTY and mirrors them into
// the command extractor. In explicit-command mode keystroke-level extraction
// is suppressed so commands are not recorded twice.
func (s *Session) Send(data []byte) error {
	s.touch()

	s.mu.Lock()
	explicit := s.explicit
	s.mu.Unlock()

	if !explicit {
		s.extMu.Lock()
		events := s.ext.ObserveInput(data)
		s.extMu.Unlock()
		for _, ev := range events {
			s.enqueue(ev)
		}
	}

	_, err := s.link.Write(data)
	return err
}

// SubmitCommand accepts an explicit, client-supplied command (the alternate
// input mode for clients with local line editing). The first such frame
// switches the session to explicit mode permanently; keystroke-derived and
// explicit events are never mixed.
func (s *Session) SubmitCommand(text string) {
	s.touch()

	s.mu.Lock()
	if !s.explicit {
		s.explicit = true
		log.Printf("[session] %s switched to explicit command mode", s.ID)
	}
	s.mu.Unlock()

	cleaned := extractor.CleanCommand(text)
	if cleaned == "" {
		return
	}
	s.enqueue(extractor.CommandEvent{
		Meta: extractor.Meta{
			Operator:   s.Operator,
			HostID:     s.HostID,
			HostName:   s.HostName,
			HostAddr:   s.HostAddr,
			Credential: s.Credential,
		},
		Command: cleaned,
		Time:    time.Now(),
	})
}

// Resize changes the remote PTY dimensions, clamped to safe bounds. Resize
// frames bypass extraction entirely.
func (s *Session) Resize(cols, rows uint16) error {
	s.touch()
	if cols == 0 || rows == 0 {
		return nil
	}
	if cols > MaxTermCols {
		cols = MaxTermCols
	}
	if rows > MaxTermRows {
		rows = MaxTermRows
	}
	return s.link.Resize(cols, rows)
}

// Close tears the session down with a normal closure.
func (s *Session) Close() {
	s.closeWith(1000, "")
}

// closeWith shuts the session down exactly once: the remote link is
// released, the client connection closed with the given code, and the
// session deregistered. In-flight audit and notification calls are allowed
// to finish independently.
func (s *Session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		s.link.Close()
		s.client.Close(code, reason)
		s.sup.remove(s.ID)
		log.Printf("[session] closed %s (code=%d reason=%q)", s.ID, code, reason)
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// enqueue hands a command event to the dispatch goroutine without ever
// blocking the byte relay. A full queue means the audit backend is badly
// behind; the oldest queued event is dropped and the gap logged.
func (s *Session) enqueue(ev extractor.CommandEvent) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			log.Printf("[session] %s: dispatch queue full, dropped oldest command event", s.ID)
		default:
		}
	}
}

// readLoop copies remote output to the client and mirrors it into the
// extractor. A read error mid-session is a transport failure: the client
// gets one final message and the session closes with an internal code.
func (s *Session) readLoop() {
	buf := make([]byte, maxReadChunk)
	out := s.link.Reader()
	for {
		n, err := out.Read(buf)
		if n > 0 {
			s.extMu.Lock()
			s.ext.ObserveOutput(buf[:n])
			s.extMu.Unlock()

			if werr := s.client.WriteOutput(buf[:n]); werr != nil {
				s.closeWith(CloseInternal, "client write failed")
				return
			}
		}
		if err != nil {
			if !s.isClosed() {
				s.client.WriteOutput([]byte("\r\nConnection to remote host lost.\r\n"))
				s.closeWith(CloseInternal, "remote link lost")
			}
			return
		}
	}
}

// dispatchLoop consumes extracted command events and drives the audit sink
// and alert evaluator. It keeps draining after shutdown so events already
// extracted are not lost.
func (s *Session) dispatchLoop() {
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					s.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) dispatch(ev extractor.CommandEvent) {
	if s.sup.recorder != nil {
		// Best-effort: the auditor logs its own failures.
		s.sup.recorder.RecordCommand(ev)
	}
	if s.sup.alerts != nil {
		s.sup.alerts.Evaluate(ev.HostID, ev.HostName, ev.Command, ev.Operator)
	}
}

// idleLoop periodically compares now against last activity. On expiry the
// client receives one timeout notice frame, then the session closes with the
// idle-timeout code so clients can tell it apart from a normal closure.
func (s *Session) idleLoop(timeout, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Since(s.LastActivity()) > timeout {
				s.client.WriteControl(map[string]string{
					"type":    "timeout",
					"message": "Session closed after prolonged inactivity.",
				})
				s.closeWith(CloseIdleTimeout, "idle timeout")
				return
			}
		case <-s.done:
			return
		}
	}
}
