// Package tls serves the API over HTTPS from certificate files or ACME.
package tls

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"rating-service/internal/config"
	"rating-service/internal/util"
)

type TLSManager struct {
	config   config.TLSConfig
	autoCert *autocert.Manager
	cert     *tls.Certificate
}

// NewTLSManager loads the configured certificate pair, or prepares an
// autocert manager restricted to the configured domain.
func NewTLSManager(cfg config.TLSConfig) (*TLSManager, error) {
	m := &TLSManager{config: cfg}

	if cfg.AutoCert {
		if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create autocert cache dir: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.CacheDir),
			Email:      cfg.Email,
		}
		util.Info("AutoCert configured",
			zap.String("domain", cfg.Domain),
			zap.String("cache_dir", cfg.CacheDir))
		return m, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	m.cert = &cert
	return m, nil
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		return m.autoCert.GetCertificate(hello)
	}
	return m.cert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// ChallengeServer returns the plain HTTP listener answering ACME HTTP-01
// challenges and redirecting everything else to HTTPS, or nil when
// certificates come from files.
func (m *TLSManager) ChallengeServer() *http.Server {
	if m.autoCert == nil {
		return nil
	}
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", m.config.ACMEPort),
		Handler: m.autoCert.HTTPHandler(nil),
	}
}

// Serve configures srv for TLS and returns it wrapped so ListenAndServe
// starts an HTTPS listener.
func (m *TLSManager) Serve(srv *http.Server) *Server {
	srv.TLSConfig = m.GetTLSConfig()
	return &Server{Server: srv}
}

// Server is an *http.Server whose ListenAndServe serves TLS using the
// certificates of its TLSConfig.
type Server struct {
	*http.Server
}

func (s *Server) ListenAndServe() error {
	return s.ListenAndServeTLS("", "")
}
