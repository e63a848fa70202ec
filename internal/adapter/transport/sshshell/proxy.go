package sshshell

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"time"
)

// proxyConn adapts a ProxyCommand subprocess (for instance
// "ssh -W data.example.org:2230 bastion") to net.Conn so the SSH
// handshake can run over its stdio.
type proxyConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func dialProxy(ctx context.Context, command string) (*proxyConn, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty proxy command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start proxy command %q: %w", command, err)
	}

	return &proxyConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (c *proxyConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *proxyConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *proxyConn) Close() error {
	c.stdin.Close()
	c.stdout.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}

func (c *proxyConn) LocalAddr() net.Addr  { return proxyAddr(c.cmd.Path) }
func (c *proxyConn) RemoteAddr() net.Addr { return proxyAddr(c.cmd.Path) }

// Deadlines are not supported on subprocess pipes; the session applies
// its own timeouts above this layer.
func (c *proxyConn) SetDeadline(t time.Time) error      { return nil }
func (c *proxyConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *proxyConn) SetWriteDeadline(t time.Time) error { return nil }

type proxyAddr string

func (a proxyAddr) Network() string { return "proxy" }
func (a proxyAddr) String() string  { return string(a) }
