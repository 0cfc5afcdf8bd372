package source

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"tabularium/internal/codec"
	"tabularium/internal/secrets"
)

// SecretResolver resolves named secrets for source authentication
type SecretResolver interface {
	Get(name string) (*secrets.Secret, bool)
}

// SSHPullConfig holds configuration for one SSH pull collector
type SSHPullConfig struct {
	// Name uniquely identifies the collector
	Name string
	// Host and Port of the remote machine
	Host string
	Port int
	// User to authenticate as; falls back to the secret's username entry
	User string
	// Secret names the credential used for authentication
	Secret string
	// Command runs remotely and must print a JSON document on stdout
	Command string
	// Structure receives the collected documents
	Structure string
	// ConnectionTimeout bounds dialing and handshake
	ConnectionTimeout time.Duration
	// CommandTimeout bounds remote execution
	CommandTimeout time.Duration
}

// applyDefaults fills unset fields with sensible values
func (c SSHPullConfig) applyDefaults() SSHPullConfig {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 10 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 30 * time.Second
	}
	return c
}

// SSHPullSource collects documents by running a command on a remote
// host over SSH and ingesting the JSON it prints
type SSHPullSource struct {
	cfg      SSHPullConfig
	secrets  SecretResolver
	ingester Ingester
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewSSHPullSource creates a new SSH pull collector
func NewSSHPullSource(cfg SSHPullConfig, resolver SecretResolver, ingester Ingester, logger *slog.Logger) *SSHPullSource {
	return &SSHPullSource{
		cfg:      cfg.applyDefaults(),
		secrets:  resolver,
		ingester: ingester,
		logger:   logger,
	}
}

// Name returns the collector identifier
func (s *SSHPullSource) Name() string {
	return s.cfg.Name
}

// Type returns the source type
func (s *SSHPullSource) Type() SourceType {
	return SourceTypePolling
}

// Start initializes the source
func (s *SSHPullSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.logger.Info("ssh collector started",
		"name", s.cfg.Name,
		"host", s.cfg.Host,
		"structure", s.cfg.Structure)
	return nil
}

// Stop shuts down the source
func (s *SSHPullSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Sync connects, runs the collector command, and ingests its output
func (s *SSHPullSource) Sync(ctx context.Context) (*SyncResult, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.cfg.Host, err)
	}
	defer client.Close()

	output, err := s.runCommand(client, s.cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to run collector command: %w", err)
	}

	doc, err := s.ingester.IngestReader(ctx, s.cfg.Structure, codec.NewJSONCodec(), strings.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("failed to ingest collector output: %w", err)
	}

	s.logger.Debug("collector output ingested",
		"name", s.cfg.Name,
		"structure", s.cfg.Structure,
		"keys", len(doc))

	return &SyncResult{Documents: 1}, nil
}

// connect establishes an SSH connection using the configured secret
func (s *SSHPullSource) connect(ctx context.Context) (*ssh.Client, error) {
	config, err := s.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	// Dial with context so shutdown interrupts connection attempts
	dialer := &net.Dialer{
		Timeout: s.cfg.ConnectionTimeout,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// buildSSHConfig creates an SSH client config from the named secret
func (s *SSHPullSource) buildSSHConfig() (*ssh.ClientConfig, error) {
	secret, ok := s.secrets.Get(s.cfg.Secret)
	if !ok {
		return nil, fmt.Errorf("secret %s not found", s.cfg.Secret)
	}

	user := s.cfg.User
	if user == "" {
		user = secret.Data["username"]
	}
	if user == "" {
		return nil, fmt.Errorf("no user configured for collector %s", s.cfg.Name)
	}

	auth, err := authMethod(secret)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			auth,
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.cfg.ConnectionTimeout,
	}, nil
}

// authMethod picks key or password authentication from the secret type
func authMethod(secret *secrets.Secret) (ssh.AuthMethod, error) {
	switch secret.Type {
	case secrets.TypeSSHKey:
		material := secret.Data["value"]
		if material == "" {
			return nil, fmt.Errorf("no key material in secret %s", secret.Name)
		}

		var signer ssh.Signer
		var err error
		if passphrase := secret.Data["passphrase"]; passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(material), []byte(passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(material))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil

	default:
		password := secret.Data["value"]
		if password == "" {
			return nil, fmt.Errorf("no password in secret %s", secret.Name)
		}
		return ssh.Password(password), nil
	}
}

// runCommand executes a command over SSH and returns its stdout. Stderr
// is dropped; anything mixed into stdout would corrupt the payload.
func (s *SSHPullSource) runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	done := make(chan error, 1)
	var output []byte

	go func() {
		var err error
		output, err = session.Output(cmd)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("command failed: %w", err)
		}
		return string(output), nil
	case <-time.After(s.cfg.CommandTimeout):
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command timeout after %s", s.cfg.CommandTimeout)
	}
}
