package tls

import (
	"crypto/tls"
	"crypto/x509"
	"testing"
	"time"
)

func TestDevCertGeneratedAndReused(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	first, err := gen.GenerateCert([]string{"api.local", "127.0.0.1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	leaf, err := x509.ParseCertificate(first.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "api.local" || len(leaf.IPAddresses) != 1 {
		t.Fatalf("SANs = %v %v", leaf.DNSNames, leaf.IPAddresses)
	}

	second, err := gen.GenerateCert([]string{"api.local"})
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if string(second.Certificate[0]) != string(first.Certificate[0]) {
		t.Fatal("valid certificate was regenerated")
	}
}

func TestDevCertRegeneratedAfterExpiry(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)
	first, err := gen.GenerateCert([]string{"localhost"})
	if err != nil {
		t.Fatal(err)
	}

	gen.now = func() time.Time { return time.Now().Add(devCertValidity + time.Hour) }
	second, err := gen.GenerateCert([]string{"localhost"})
	if err != nil {
		t.Fatal(err)
	}
	if string(second.Certificate[0]) == string(first.Certificate[0]) {
		t.Fatal("expired certificate was reused")
	}
}

func TestManagerFallsBackToDevCert(t *testing.T) {
	m := NewTLSManager(&TLSConfig{EnableTLS: true, Domain: "localhost", AutoCertDir: t.TempDir(), Environment: "development"})
	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil || cert == nil {
		t.Fatalf("cert = %v, err = %v", cert, err)
	}
	again, _ := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if again != cert {
		t.Fatal("dev certificate not cached")
	}
	if cfg := m.GetTLSConfig(); cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("min version = %x", cfg.MinVersion)
	}
}

func TestManagerRefusesSelfSignedInProduction(t *testing.T) {
	m := NewTLSManager(&TLSConfig{EnableTLS: true, Domain: "example.com", AutoCertDir: t.TempDir(), Environment: "production"})
	if _, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "example.com"}); err == nil {
		t.Fatal("expected error without a certificate source")
	}
}
