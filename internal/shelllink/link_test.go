package shelllink

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "testuser"
	testPassword = "hunter2"
)

// sshTestServer is a minimal in-process SSH server: password or public key
// auth, one session channel, a fake prompt, and an echo loop.
type sshTestServer struct {
	addr string

	mu           sync.Mutex
	ptyRequested bool
	ptyTerm      string
	resizes      []string
}

type ptyReqPayload struct {
	Term     string
	Cols     uint32
	Rows     uint32
	Width    uint32
	Height   uint32
	Modelist string
}

type windowChangePayload struct {
	Cols   uint32
	Rows   uint32
	Width  uint32
	Height uint32
}

func startSSHServer(t *testing.T, authorizedKey ssh.PublicKey) *sshTestServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("denied")
		},
	}
	if authorizedKey != nil {
		cfg.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == testUser && string(key.Marshal()) == string(authorizedKey.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("denied")
		}
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := &sshTestServer{addr: ln.Addr().String()}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn, cfg)
		}
	}()
	return srv
}

func (srv *sshTestServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go srv.handleSession(channel, requests)
	}
}

func (srv *sshTestServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req":
			var p ptyReqPayload
			ssh.Unmarshal(req.Payload, &p)
			srv.mu.Lock()
			srv.ptyRequested = true
			srv.ptyTerm = p.Term
			srv.mu.Unlock()
			req.Reply(true, nil)
		case "window-change":
			var p windowChangePayload
			ssh.Unmarshal(req.Payload, &p)
			srv.mu.Lock()
			srv.resizes = append(srv.resizes, fmt.Sprintf("%dx%d", p.Cols, p.Rows))
			srv.mu.Unlock()
		case "shell":
			req.Reply(true, nil)
			go srv.shell(channel)
		default:
			req.Reply(false, nil)
		}
	}
}

// shell prints a prompt and echoes everything back, like a PTY would.
func (srv *sshTestServer) shell(channel ssh.Channel) {
	io.WriteString(channel, "testuser@testhost:~$ ")
	buf := make([]byte, 1024)
	for {
		n, err := channel.Read(buf)
		if n > 0 {
			channel.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (srv *sshTestServer) host() (string, int) {
	host, portStr, _ := net.SplitHostPort(srv.addr)
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func readUntil(t *testing.T, r io.Reader, want string) string {
	t.Helper()
	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var b strings.Builder
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			b.Write(buf[:n])
			if strings.Contains(b.String(), want) {
				done <- result{b.String(), nil}
				return
			}
			if err != nil {
				done <- result{b.String(), err}
				return
			}
		}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("read until %q: %v (got %q)", want, res.err, res.data)
		}
		return res.data
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
		return ""
	}
}

func TestConnectPassword(t *testing.T) {
	srv := startSSHServer(t, nil)
	host, port := srv.host()

	link, err := Connect(context.Background(), host, port, Credential{
		Account: testUser,
		Kind:    CredentialPassword,
		Secret:  testPassword,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer link.Close()

	readUntil(t, link.Reader(), "testuser@testhost:~$ ")

	srv.mu.Lock()
	pty, term := srv.ptyRequested, srv.ptyTerm
	srv.mu.Unlock()
	if !pty {
		t.Error("no pty-req received; interactive echo depends on it")
	}
	if term != "xterm-256color" {
		t.Errorf("term = %q, want xterm-256color", term)
	}

	if _, err := link.Write([]byte("echo hi\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	readUntil(t, link.Reader(), "echo hi\r")
}

func TestConnectKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("client public key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}

	srv := startSSHServer(t, sshPub)
	host, port := srv.host()

	link, err := Connect(context.Background(), host, port, Credential{
		Account: testUser,
		Kind:    CredentialKey,
		Secret:  string(pem.EncodeToMemory(block)),
	})
	if err != nil {
		t.Fatalf("Connect with key: %v", err)
	}
	defer link.Close()

	readUntil(t, link.Reader(), "testuser@testhost:~$ ")
}

func TestConnectBadPassword(t *testing.T) {
	srv := startSSHServer(t, nil)
	host, port := srv.host()

	_, err := Connect(context.Background(), host, port, Credential{
		Account: testUser,
		Kind:    CredentialPassword,
		Secret:  "wrong",
	})
	if !errors.Is(err, ErrRemoteAuth) {
		t.Fatalf("err = %v, want ErrRemoteAuth", err)
	}
}

func TestConnectUnsupportedCredentialKind(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1", 22, Credential{
		Account: testUser,
		Kind:    "kerberos",
	})
	if !errors.Is(err, ErrUnsupportedCredential) {
		t.Fatalf("err = %v, want ErrUnsupportedCredential", err)
	}
}

func TestConnectBadKeyMaterial(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1", 22, Credential{
		Account: testUser,
		Kind:    CredentialKey,
		Secret:  "not a pem key",
	})
	if err == nil || errors.Is(err, ErrRemoteAuth) {
		t.Fatalf("err = %v, want local key parse failure", err)
	}
}

func TestConnectDialFailure(t *testing.T) {
	// Grab a port and close it again so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	host, portStr, _ := net.SplitHostPort(addr)
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	_, err = Connect(context.Background(), host, port, Credential{
		Account: testUser,
		Kind:    CredentialPassword,
		Secret:  testPassword,
	})
	if err == nil {
		t.Fatal("Connect to dead port: want error")
	}
	if errors.Is(err, ErrRemoteAuth) {
		t.Error("network failure must not look like an auth failure")
	}
}

func TestResize(t *testing.T) {
	srv := startSSHServer(t, nil)
	host, port := srv.host()

	link, err := Connect(context.Background(), host, port, Credential{
		Account: testUser,
		Kind:    CredentialPassword,
		Secret:  testPassword,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer link.Close()
	readUntil(t, link.Reader(), "$")

	if err := link.Resize(120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		srv.mu.Lock()
		resizes := append([]string(nil), srv.resizes...)
		srv.mu.Unlock()
		if len(resizes) > 0 {
			if resizes[0] != "120x40" {
				t.Fatalf("resize = %q, want 120x40", resizes[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("window-change never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
