package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rating-service/internal/config"
)

func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestNewTLSManager_FileCertificates(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t, t.TempDir())

	m, err := NewTLSManager(config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewTLSManager() error = %v", err)
	}

	cfg := m.GetTLSConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	if m.ChallengeServer() != nil {
		t.Error("file certificates need no ACME challenge server")
	}

	srv := m.Serve(&http.Server{Addr: ":0"})
	if srv.TLSConfig == nil {
		t.Error("Serve() did not set TLSConfig")
	}
}

func TestNewTLSManager_MissingFiles(t *testing.T) {
	_, err := NewTLSManager(config.TLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"})
	if err == nil {
		t.Fatal("NewTLSManager() = nil error for missing files")
	}
}

func TestNewTLSManager_AutoCert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "acme")
	m, err := NewTLSManager(config.TLSConfig{Enabled: true, AutoCert: true, Domain: "ratings.example.com", CacheDir: dir, ACMEPort: 8081})
	if err != nil {
		t.Fatalf("NewTLSManager() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir not created: %v", err)
	}
	challenge := m.ChallengeServer()
	if challenge == nil || challenge.Addr != ":8081" {
		t.Fatalf("ChallengeServer() = %+v", challenge)
	}

	// hosts outside the whitelist are refused before any ACME traffic
	if _, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "evil.example.com"}); err == nil {
		t.Error("GetCertificate() accepted a host outside the whitelist")
	}
}
