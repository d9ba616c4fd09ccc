package remoteshell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Shell runs one command on a remote host and returns its combined
// stdout/stderr. Upload streams r to remotePath via a shell command,
// the only write primitive a bare SSH session offers.
type Shell interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
	Upload(ctx context.Context, remotePath string, r io.Reader) error
	Close() error
}

// DialSpec parameterizes an SSH connection.
type DialSpec struct {
	Host string
	Port int

	User string

	// PrivateKeyPEM, when set, is used for public-key auth. Otherwise
	// Password is used.
	PrivateKeyPEM []byte
	Password      string

	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey when nil;
	// callers doing anything beyond ad-hoc ops should set this.
	HostKeyCallback ssh.HostKeyCallback

	DialTimeout time.Duration
}

// SSHShell runs commands over a single persistent SSH connection.
type SSHShell struct {
	client *ssh.Client
}

// Dial opens an SSH connection per spec.
func Dial(spec DialSpec) (*SSHShell, error) {
	auth, err := authMethod(spec)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := spec.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	timeout := spec.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            spec.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(spec.Host, fmt.Sprintf("%d", spec.Port))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "remoteshell: dial %s", addr)
	}
	return &SSHShell{client: client}, nil
}

func authMethod(spec DialSpec) (ssh.AuthMethod, error) {
	if len(spec.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(spec.PrivateKeyPEM)
		if err != nil {
			return nil, errors.Wrap(err, "remoteshell: parse private key")
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(spec.Password), nil
}

// Run opens a new session on the shared connection, runs cmd, and
// returns its combined output. ctx cancellation closes the session but
// does not tear down the underlying connection.
func (s *SSHShell) Run(ctx context.Context, cmd string) ([]byte, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "remoteshell: new session")
	}
	defer session.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()
	defer close(done)

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out
	if err := session.Run(cmd); err != nil {
		return out.Bytes(), errors.Wrapf(err, "remoteshell: run %q", cmd)
	}
	return out.Bytes(), nil
}

// Upload writes r to remotePath by piping it into the remote shell's
// stdin, staged under a ".partial" suffix and renamed on completion so
// a killed transfer never leaves a truncated final file.
func (s *SSHShell) Upload(ctx context.Context, remotePath string, r io.Reader) error {
	session, err := s.client.NewSession()
	if err != nil {
		return errors.Wrap(err, "remoteshell: new session")
	}
	defer session.Close()

	staged := remotePath + ".partial"
	stdin, err := session.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "remoteshell: stdin pipe")
	}

	var stderr bytes.Buffer
	session.Stderr = &stderr

	cmd := fmt.Sprintf("cat > %q && mv %q %q", staged, staged, remotePath)
	if err := session.Start(cmd); err != nil {
		return errors.Wrapf(err, "remoteshell: start %q", cmd)
	}

	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(stdin, r)
		stdin.Close()
		copyErr <- err
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()
	defer close(done)

	if err := <-copyErr; err != nil {
		return errors.Wrapf(err, "remoteshell: write %s", remotePath)
	}
	if err := session.Wait(); err != nil {
		return errors.Wrapf(err, "remoteshell: upload %s: %s", remotePath, stderr.String())
	}
	return nil
}

// Close tears down the underlying SSH connection.
func (s *SSHShell) Close() error {
	return errors.Wrap(s.client.Close(), "remoteshell: close connection")
}
