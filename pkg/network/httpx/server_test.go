package httpx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestCert(t *testing.T, dir string) (certFile, keyFile, chainFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "frog.test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	leaf, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	// The intermediate doesn't have to sign the leaf for the loader,
	// a second self-signed certificate stands in for it.
	imKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	imTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "frog intermediate"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
	}
	intermediate, err := x509.CreateCertificate(rand.Reader, imTmpl, imTmpl, &imKey.PublicKey, imKey)
	if err != nil {
		t.Fatal(err)
	}

	write := func(name string, blocks ...*pem.Block) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		for _, b := range blocks {
			if err := pem.Encode(f, b); err != nil {
				t.Fatal(err)
			}
		}
		return path
	}
	certFile = write("cert.pem", &pem.Block{Type: "CERTIFICATE", Bytes: leaf})
	keyFile = write("key.pem", &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	chainFile = write("chain.pem", &pem.Block{Type: "CERTIFICATE", Bytes: intermediate})
	return certFile, keyFile, chainFile
}

func TestLoadChainedCert(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, chainFile := writeTestCert(t, dir)

	cert, err := loadChainedCert(certFile, keyFile, chainFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cert.Certificate) != 2 {
		t.Errorf("%d certificates in the chain, want leaf + intermediate", len(cert.Certificate))
	}

	if _, err := loadChainedCert(certFile, keyFile, filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("missing chain file not reported")
	}
}
