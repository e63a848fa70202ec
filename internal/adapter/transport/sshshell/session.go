// Package sshshell drives one interactive shell on the remote store
// over SSH. There is no wire protocol: responses are framed only by
// the idle prompt reappearing, so the session reads fixed-size chunks
// and hands them to a sentinel matcher.
package sshshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"skyquery/internal/domain"
)

const (
	defaultReadChunkSize = 256
	connectTimeout       = 30 * time.Second
	// commandTerminator tells the remote shell the statement is done.
	commandTerminator = ";\n"
)

// State is the session lifecycle: Disconnected -> Connecting -> Ready
// <-> Busy. Any transport failure moves back to Disconnected; the
// session never reconnects on its own.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	default:
		return "disconnected"
	}
}

// Config carries the transport parameters of one session.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// ProxyCommand optionally relays the transport through an
	// intermediary subprocess.
	ProxyCommand string
	// ShellCommand is handed to the forced remote shell on startup.
	ShellCommand string
	// Prompt is the idle-prompt sentinel framing every response.
	Prompt string
	// CommandTimeout bounds a single Execute; zero means no limit and
	// an unresponsive remote blocks until the context is cancelled.
	CommandTimeout time.Duration
	ReadChunkSize  int
}

// Session implements domain.ShellSession over SSH. Not safe for
// concurrent use: commands on one interactive channel are strictly
// sequential, or their output would interleave.
type Session struct {
	cfg    Config
	logger *slog.Logger

	state  State
	client *ssh.Client
	shell  *ssh.Session
	proxy  *proxyConn
	stdin  io.WriteCloser
	stdout io.Reader
}

// NewSession creates a disconnected session.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = defaultReadChunkSize
	}
	return &Session{
		cfg: cfg,
		logger: logger.With(
			"component", "shell_session",
			"session_id", uuid.NewString(),
		),
		state: StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Connect opens the transport, authenticates, launches the remote
// shell, and discards the greeting by reading until the prompt first
// appears.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return domain.ErrMissingCredentials
	}

	s.state = StateConnecting
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	sshCfg := &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	var conn net.Conn
	var err error
	if s.cfg.ProxyCommand != "" {
		s.logger.Info("connecting via proxy command", "proxy", s.cfg.ProxyCommand)
		s.proxy, err = dialProxy(ctx, s.cfg.ProxyCommand)
		conn = s.proxy
	} else {
		d := net.Dialer{Timeout: connectTimeout}
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		s.disconnect()
		return &domain.ConnectionError{Op: "dial", Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		s.proxy = nil
		s.disconnect()
		return &domain.ConnectionError{Op: "handshake", Err: err}
	}
	s.client = ssh.NewClient(sshConn, chans, reqs)

	if err := s.openShell(); err != nil {
		s.disconnect()
		return err
	}

	// Discard the greeting up to the first idle prompt.
	if _, err := s.readTranscript(ctx); err != nil {
		s.disconnect()
		return err
	}

	s.state = StateReady
	s.logger.Info("session ready", "addr", addr)
	return nil
}

func (s *Session) openShell() error {
	shell, err := s.client.NewSession()
	if err != nil {
		return &domain.ConnectionError{Op: "open channel", Err: err}
	}
	s.shell = shell

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := shell.RequestPty("xterm", 40, 80, modes); err != nil {
		return &domain.ConnectionError{Op: "request pty", Err: err}
	}

	if s.stdin, err = shell.StdinPipe(); err != nil {
		return &domain.ConnectionError{Op: "open stdin", Err: err}
	}
	if s.stdout, err = shell.StdoutPipe(); err != nil {
		return &domain.ConnectionError{Op: "open stdout", Err: err}
	}

	if s.cfg.ShellCommand != "" {
		err = shell.Start(s.cfg.ShellCommand)
	} else {
		err = shell.Shell()
	}
	if err != nil {
		return &domain.ConnectionError{Op: "start shell", Err: err}
	}
	return nil
}

// Execute submits one command and returns the complete transcript
// received up to the prompt reappearing. It either returns a full
// transcript or fails; partial output is never exposed. Any failure
// leaves the session Disconnected.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	if s.state != StateReady {
		return "", &domain.ConnectionError{
			Op:  "execute",
			Err: fmt.Errorf("session is %s, not ready", s.state),
		}
	}
	s.state = StateBusy

	// Embedded newlines would be taken as statement separators by the
	// remote shell and desynchronize prompt detection.
	command = strings.ReplaceAll(command, "\n", " ")

	if _, err := io.WriteString(s.stdin, command+commandTerminator); err != nil {
		s.disconnect()
		return "", &domain.ConnectionError{Op: "send", Err: err}
	}

	transcript, err := s.readTranscript(ctx)
	if err != nil {
		s.disconnect()
		return "", err
	}

	s.state = StateReady
	return transcript, nil
}

// readTranscript accumulates fixed-size reads until the sentinel
// matcher reports the prompt at the tail of the stream. Cancellation
// or timeout closes the transport to unblock the pending read.
func (s *Session) readTranscript(ctx context.Context) (string, error) {
	if s.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
		defer cancel()
	}

	type outcome struct {
		transcript string
		err        error
	}
	done := make(chan outcome, 1)

	stdout := s.stdout
	go func() {
		matcher := newPromptMatcher(s.cfg.Prompt)
		var buf bytes.Buffer
		chunk := make([]byte, s.cfg.ReadChunkSize)
		for {
			n, err := stdout.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
				if matcher.Feed(chunk[:n]) {
					done <- outcome{transcript: buf.String()}
					return
				}
			}
			if err != nil {
				done <- outcome{err: &domain.ConnectionError{Op: "read", Err: err}}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		// Closing the transport unblocks the reader goroutine.
		s.closeTransport()
		return "", &domain.ConnectionError{Op: "read", Err: ctx.Err()}
	case out := <-done:
		return out.transcript, out.err
	}
}

// Close tears the session down. Safe to call in any state.
func (s *Session) Close() error {
	if s.state == StateDisconnected && s.client == nil {
		return nil
	}
	s.disconnect()
	s.logger.Info("session closed")
	return nil
}

func (s *Session) disconnect() {
	s.state = StateDisconnected
	s.closeTransport()
}

func (s *Session) closeTransport() {
	if s.shell != nil {
		s.shell.Close()
		s.shell = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.proxy != nil {
		if err := s.proxy.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.logger.Debug("proxy command shutdown", "error", err)
		}
		s.proxy = nil
	}
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.stdout = nil
}
