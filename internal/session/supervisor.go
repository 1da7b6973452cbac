// Package session orchestrates one client terminal session end-to-end:
// authentication, host and credential resolution, the remote shell link, the
// bidirectional byte relay mirrored into the command extractor, alert
// evaluation, and the idle timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shellgate/bastion/internal/database"
	"github.com/shellgate/bastion/internal/extractor"
	"github.com/shellgate/bastion/internal/secrets"
	"github.com/shellgate/bastion/internal/shelllink"
)

// TokenValidator maps a presented bearer token to an operator identity.
type TokenValidator interface {
	Validate(token string) (string, bool)
}

// HostResolver resolves a host reference to its endpoint and credential.
type HostResolver interface {
	Resolve(ctx context.Context, hostID uint) (*database.ResolvedHost, error)
}

// CommandRecorder persists reconstructed commands.
type CommandRecorder interface {
	RecordCommand(extractor.CommandEvent) error
}

// AlertEvaluator checks a command against the active alert rules.
type AlertEvaluator interface {
	Evaluate(hostID uint, hostName, command, operator string) bool
}

// DefaultIdleTimeout applies when no idle timeout is configured.
const DefaultIdleTimeout = 30 * time.Minute

// Config tunes session behavior.
type Config struct {
	IdleTimeout       time.Duration
	IdleCheckInterval time.Duration
	Extractor         extractor.Config
}

// Supervisor owns all live sessions. Collaborators are injected by the
// composition root; the supervisor holds no global state.
type Supervisor struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg      Config
	tokens   TokenValidator
	resolver HostResolver
	secrets  *secrets.Decryptor
	recorder CommandRecorder
	alerts   AlertEvaluator

	// connect dials the remote shell; replaced in tests.
	connect func(ctx context.Context, address string, port int, cred shelllink.Credential) (RemoteLink, error)
}

// NewSupervisor wires a supervisor to its collaborators.
func NewSupervisor(cfg Config, tokens TokenValidator, resolver HostResolver, dec *secrets.Decryptor, recorder CommandRecorder, alerts AlertEvaluator) *Supervisor {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.IdleCheckInterval <= 0 {
		cfg.IdleCheckInterval = 30 * time.Second
	}
	return &Supervisor{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		tokens:   tokens,
		resolver: resolver,
		secrets:  dec,
		recorder: recorder,
		alerts:   alerts,
		connect: func(ctx context.Context, address string, port int, cred shelllink.Credential) (RemoteLink, error) {
			return shelllink.Connect(ctx, address, port, cred)
		},
	}
}

// Open authenticates the caller, resolves the target host, connects the
// remote shell, and starts the session's relay, dispatch, and idle-timeout
// goroutines. Failures before the shell is up are terminal: no session is
// created and no partial state leaks.
func (sup *Supervisor) Open(ctx context.Context, hostID uint, token string, client ClientConn) (*Session, error) {
	operator, ok := sup.tokens.Validate(token)
	if !ok {
		return nil, fmt.Errorf("%w: invalid or expired token", ErrAuthentication)
	}

	resolved, err := sup.resolver.Resolve(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	secret, err := sup.secrets.Decrypt(resolved.Credential.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt credential %q: %v", ErrResolution, resolved.Credential.Label, err)
	}
	passphrase, err := sup.secrets.Decrypt(resolved.Credential.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt passphrase for %q: %v", ErrResolution, resolved.Credential.Label, err)
	}

	link, err := sup.connect(ctx, resolved.Address, resolved.Port, shelllink.Credential{
		Account:    resolved.Credential.Account,
		Kind:       resolved.Credential.Kind,
		Secret:     secret,
		Passphrase: passphrase,
	})
	if err != nil {
		if errors.Is(err, shelllink.ErrRemoteAuth) || errors.Is(err, shelllink.ErrUnsupportedCredential) {
			return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	sess := &Session{
		ID:         uuid.New().String(),
		Operator:   operator,
		HostID:     resolved.HostID,
		HostName:   resolved.HostName,
		HostAddr:   resolved.Address,
		Credential: resolved.Credential.Label,
		CreatedAt:  time.Now(),
		link:       link,
		client:     client,
		sup:        sup,
		ext: extractor.New(sup.cfg.Extractor, extractor.Meta{
			Operator:   operator,
			HostID:     resolved.HostID,
			HostName:   resolved.HostName,
			HostAddr:   resolved.Address,
			Credential: resolved.Credential.Label,
		}),
		events:       make(chan extractor.CommandEvent, eventQueueSize),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}

	sup.mu.Lock()
	sup.sessions[sess.ID] = sess
	sup.mu.Unlock()

	go sess.readLoop()
	go sess.dispatchLoop()
	go sess.idleLoop(sup.cfg.IdleTimeout, sup.cfg.IdleCheckInterval)

	log.Printf("[session] opened %s: operator=%s host=%s (%s:%d) credential=%s",
		sess.ID, operator, resolved.HostName, resolved.Address, resolved.Port, resolved.Credential.Label)
	return sess, nil
}

// Get returns a session by id, or nil.
func (sup *Supervisor) Get(id string) *Session {
	sup.mu.RLock()
	defer sup.mu.RUnlock()
	return sup.sessions[id]
}

// Count returns the number of live sessions.
func (sup *Supervisor) Count() int {
	sup.mu.RLock()
	defer sup.mu.RUnlock()
	return len(sup.sessions)
}

// CloseAll force-closes every live session; used on shutdown.
func (sup *Supervisor) CloseAll() {
	sup.mu.RLock()
	open := make([]*Session, 0, len(sup.sessions))
	for _, sess := range sup.sessions {
		open = append(open, sess)
	}
	sup.mu.RUnlock()

	for _, sess := range open {
		sess.Close()
	}
}

func (sup *Supervisor) remove(id string) {
	sup.mu.Lock()
	delete(sup.sessions, id)
	sup.mu.Unlock()
}
