// Package shelllink owns the outbound SSH connection to a managed host and
// the PTY-backed shell channel on it.
//
// A real pseudo-terminal is always requested so the remote shell emits
// prompts and echoes keystrokes exactly as it would for an interactive
// login. The command extractor depends on that echo; a plain exec channel
// would silently break command reconstruction.
package shelllink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Credential kinds supported for remote authentication.
const (
	CredentialPassword = "password"
	CredentialKey      = "key"
)

// ErrUnsupportedCredential is returned by Connect for credential kinds other
// than password or key. Unsupported kinds fail fast before any dial.
var ErrUnsupportedCredential = errors.New("unsupported credential kind")

// ErrRemoteAuth wraps SSH handshake failures caused by rejected credentials,
// so callers can distinguish bad credentials from network trouble.
var ErrRemoteAuth = errors.New("remote authentication rejected")

// Credential is the decrypted login material for one host.
type Credential struct {
	Account    string
	Kind       string
	Secret     string // password, or private key PEM
	Passphrase string // optional private key passphrase
}

// Default PTY geometry; the client resizes immediately after connect.
const (
	defaultCols = 80
	defaultRows = 24
)

// connectTimeout bounds the TCP dial and SSH handshake.
const connectTimeout = 10 * time.Second

// Link is one live shell channel to a remote host.
type Link struct {
	Stdin  io.WriteCloser
	Stdout io.Reader

	client  *ssh.Client
	session *ssh.Session
}

// Connect dials the host, authenticates with the given credential, and
// starts a login shell on a PTY. The context bounds the dial; once the shell
// is running the link lives until Close.
func Connect(ctx context.Context, address string, port int, cred Credential) (*Link, error) {
	auth, err := authMethod(cred)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            cred.Account,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(address, fmt.Sprintf("%d", port))
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "no supported methods remain") {
			return nil, fmt.Errorf("handshake %s: %w", addr, ErrRemoteAuth)
		}
		return nil, fmt.Errorf("handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", defaultRows, defaultCols, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &Link{
		Stdin:   stdin,
		Stdout:  stdout,
		client:  client,
		session: session,
	}, nil
}

func authMethod(cred Credential) (ssh.AuthMethod, error) {
	switch cred.Kind {
	case CredentialPassword:
		return ssh.Password(cred.Secret), nil
	case CredentialKey:
		var signer ssh.Signer
		var err error
		if cred.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(cred.Secret), []byte(cred.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(cred.Secret))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	default:
		return nil, fmt.Errorf("credential kind %q: %w", cred.Kind, ErrUnsupportedCredential)
	}
}

// Write sends bytes to the remote shell's stdin.
func (l *Link) Write(p []byte) (int, error) {
	return l.Stdin.Write(p)
}

// Reader returns the remote output stream: an infinite sequence of chunks
// until the link closes.
func (l *Link) Reader() io.Reader {
	return l.Stdout
}

// Resize changes the remote PTY dimensions.
func (l *Link) Resize(cols, rows uint16) error {
	return l.session.WindowChange(int(rows), int(cols))
}

// Close tears down the shell channel and the SSH connection. Safe to call
// more than once; later calls return the transport's close error.
func (l *Link) Close() error {
	l.session.Close()
	return l.client.Close()
}
