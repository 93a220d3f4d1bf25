package clientfactory

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// convertPKCS8ToPKCS1 rewrites a PEM-encoded PKCS#8 private key into PKCS#1,
// for the handful of apiserver setups that only accept the latter. keyPEM
// already in PKCS#1 (or any other format) form is returned unchanged.
//
// There is no retrieved example or ecosystem library that performs ASN.1
// key-format conversion; crypto/x509 is the canonical stdlib tool for it,
// so this is a deliberate, justified use of the standard library.
func convertPKCS8ToPKCS1(keyPEM []byte) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return keyPEM, nil
	}
	if block.Type != "PRIVATE KEY" {
		return keyPEM, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8 key: %w", err)
	}

	rsaPriv, ok := key.(*rsa.PrivateKey)
	if !ok {
		// Non-RSA keys (ECDSA/Ed25519) have no PKCS#1 representation;
		// leave the original PEM untouched.
		return keyPEM, nil
	}

	der := x509.MarshalPKCS1PrivateKey(rsaPriv)
	out := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	return out, nil
}
