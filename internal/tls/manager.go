package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/acme/autocert"

	"cashback-service/internal/util"
)

// TLSManager serves certificates from ACME, files or a generated
// development certificate, in that order.
type TLSManager struct {
	config   *TLSConfig
	autoCert *autocert.Manager

	mu       sync.Mutex
	fileCert *tls.Certificate
	devCert  *tls.Certificate
}

type TLSConfig struct {
	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
	Environment string
}

func NewTLSManager(config *TLSConfig) *TLSManager {
	manager := &TLSManager{config: config}
	if config.AutoCert && config.EnableTLS {
		manager.setupAutoCert()
	}
	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.config.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert directory", util.ErrorField(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	util.Info("AutoCert configured",
		util.String("domain", m.config.Domain),
		util.String("cache_dir", m.config.AutoCertDir))
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert failed, falling back", util.ErrorField(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.CertFile != "" && m.config.KeyFile != "" {
		if m.fileCert == nil {
			cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load certificate files: %w", err)
			}
			m.fileCert = &cert
		}
		return m.fileCert, nil
	}

	// Self-signed certificates never back a production listener.
	if m.config.Environment == "production" {
		return nil, fmt.Errorf("no certificate available for %q", hello.ServerName)
	}
	if m.devCert == nil {
		cert, err := m.generateSelfSignedCert()
		if err != nil {
			return nil, err
		}
		m.devCert = cert
	}
	return m.devCert, nil
}

func (m *TLSManager) generateSelfSignedCert() (*tls.Certificate, error) {
	generator := NewDevCertGenerator(m.config.AutoCertDir)
	hosts := []string{m.config.Domain, "localhost", "127.0.0.1", "::1"}

	cert, err := generator.GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return &cert, nil
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

func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
