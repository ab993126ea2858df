// Package tls provides the certificate used when the API is served over
// HTTPS: a self-signed pair generated on first start, loaded from disk on
// later starts.
package tls

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/clock"
)

// DefaultValidDays is the lifetime of a generated certificate.
const DefaultValidDays = 365

// CertificateManager holds the certificate presented by the API listener.
// Swapping it takes effect on the next handshake.
type CertificateManager struct {
	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewCertificateManager creates a new certificate manager
func NewCertificateManager() *CertificateManager {
	return &CertificateManager{}
}

// SetCertificate replaces the served certificate.
func (cm *CertificateManager) SetCertificate(cert *tls.Certificate) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.cert = cert
}

// GetCertificate is a tls.Config.GetCertificate callback.
func (cm *CertificateManager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.cert == nil {
		return nil, errors.New("no certificate available")
	}
	return cm.cert, nil
}

// ServerConfig returns a TLS 1.2+ server configuration backed by cm.
func (cm *CertificateManager) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: cm.GetCertificate,
	}
}

// GenerateSelfSigned writes a self-signed ECDSA certificate and key valid
// for localhost, the loopback addresses and any extra hosts.
func GenerateSelfSigned(certFile, keyFile string, validDays int, hosts ...string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := clock.Now()
	notAfter := notBefore.Add(time.Duration(validDays) * 24 * time.Hour)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{brand.Name},
			CommonName:   brand.Name + " API",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(certFile), 0o700); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}

	certOut, err := os.Create(certFile)
	if err != nil {
		return fmt.Errorf("failed to create certificate file: %w", err)
	}
	defer certOut.Close()

	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyOut, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer keyOut.Close()

	privBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadCertificate loads a certificate from files
func LoadCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &cert, nil
}

// EnsureCertificate loads the pair at certFile/keyFile, generating a
// self-signed one first when certFile does not exist.
func EnsureCertificate(certFile, keyFile string, validDays int, hosts ...string) (*tls.Certificate, error) {
	if _, err := os.Stat(certFile); errors.Is(err, fs.ErrNotExist) {
		if err := GenerateSelfSigned(certFile, keyFile, validDays, hosts...); err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
	}
	return LoadCertificate(certFile, keyFile)
}

// Fingerprint is the lowercase hex SHA-256 of the leaf certificate, the
// form accepted by the client's --fingerprint option.
func Fingerprint(cert *tls.Certificate) string {
	if cert == nil || len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	return hex.EncodeToString(sum[:])
}

// RenewBefore is how long before expiry RenewIfExpiring replaces a
// generated certificate.
const RenewBefore = 30 * 24 * time.Hour

// Leaf parses the first certificate of the chain.
func Leaf(cert *tls.Certificate) (*x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, errors.New("empty certificate")
	}
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	return x509.ParseCertificate(cert.Certificate[0])
}

// RenewIfExpiring loads the pair at certFile/keyFile and, when it is
// self-signed and expires within d, replaces it with a freshly generated
// one. The returned bool reports whether the pair was replaced.
// Certificates issued by someone else are never touched.
func RenewIfExpiring(certFile, keyFile string, validDays int, d time.Duration, hosts ...string) (*tls.Certificate, bool, error) {
	cert, err := LoadCertificate(certFile, keyFile)
	if err != nil {
		return nil, false, err
	}
	leaf, err := Leaf(cert)
	if err != nil {
		return nil, false, err
	}
	if clock.Now().Add(d).Before(leaf.NotAfter) {
		return cert, false, nil
	}
	if !bytes.Equal(leaf.RawIssuer, leaf.RawSubject) ||
		leaf.CheckSignature(leaf.SignatureAlgorithm, leaf.RawTBSCertificate, leaf.Signature) != nil {
		return cert, false, nil
	}

	if err := GenerateSelfSigned(certFile, keyFile, validDays, hosts...); err != nil {
		return nil, false, fmt.Errorf("failed to renew certificate: %w", err)
	}
	cert, err = LoadCertificate(certFile, keyFile)
	if err != nil {
		return nil, false, err
	}
	return cert, true, nil
}
