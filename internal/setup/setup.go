// Package setup holds first-run and recovery tasks: the default admin
// account, the self-signed TLS pair and the admin password reset.
package setup

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filegate/internal/auth"
	"filegate/internal/db"

	"golang.org/x/term"
)

const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
	DefaultAdminEmail    = "admin@filegate.local"
)

// EnsureDefaultAdmin creates the default admin account when the user table
// is empty. It reports whether an account was created.
func EnsureDefaultAdmin(ctx context.Context, d *db.DB, logger *slog.Logger) (bool, error) {
	n, err := d.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	h, err := auth.HashPassword(DefaultAdminPassword, auth.DefaultArgon2Params())
	if err != nil {
		return false, err
	}
	created, err := d.EnsureDefaultAdmin(ctx, DefaultAdminUsername, h, DefaultAdminEmail)
	if err != nil {
		return false, fmt.Errorf("create default admin: %w", err)
	}
	if created && logger != nil {
		logger.Warn("created default admin account; change its password",
			"username", DefaultAdminUsername)
	}
	return created, nil
}

// TLSPaths returns the configured certificate pair, or the generated pair
// under dataDir when none is configured.
func TLSPaths(certPath, keyPath, dataDir string) (string, string) {
	if certPath != "" && keyPath != "" {
		return certPath, keyPath
	}
	return filepath.Join(dataDir, "tls.crt"), filepath.Join(dataDir, "tls.key")
}

// EnsureTLSCert loads the pair at certPath/keyPath, generating a self-signed
// P-256 certificate first when either file is missing.
func EnsureTLSCert(certPath, keyPath string) (tls.Certificate, error) {
	if fileExists(certPath) && fileExists(keyPath) {
		return tls.LoadX509KeyPair(certPath, keyPath)
	}
	if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
		return tls.Certificate{}, err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return tls.Certificate{}, err
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	host, _ := os.Hostname()
	names := []string{"localhost"}
	if host != "" && host != "localhost" {
		names = append(names, host)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "filegate", Organization: []string{"filegate"}},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(825 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              names,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return tls.Certificate{}, err
	}
	b, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: b}), 0o600); err != nil {
		return tls.Certificate{}, err
	}
	return tls.LoadX509KeyPair(certPath, keyPath)
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		for {
			fmt.Fprintf(os.Stderr, "%s: ", label)
			p1b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			fmt.Fprint(os.Stderr, "Confirm password: ")
			p2b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			p1, p2 := strings.TrimSpace(string(p1b)), strings.TrimSpace(string(p2b))
			if msg := checkPrompted(p1, p2); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
				continue
			}
			return p1, nil
		}
	}

	// Piped input: no echo suppression, single line.
	r := bufio.NewReader(os.Stdin)
	fmt.Fprintf(os.Stderr, "%s: ", label)
	p, err := r.ReadString('\n')
	if err != nil && p == "" {
		return "", err
	}
	p = strings.TrimSpace(p)
	if len(p) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return p, nil
}

const minPasswordLen = 6

func checkPrompted(p1, p2 string) string {
	switch {
	case len(p1) < minPasswordLen:
		return fmt.Sprintf("password must be at least %d characters", minPasswordLen)
	case p1 != p2:
		return "passwords do not match"
	}
	return ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
