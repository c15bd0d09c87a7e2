package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical devolve o veredito em JSON canônico (RFC 8785).
func (v Verdict) Canonical() ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("falha ao serializar veredito: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("falha ao canonicalizar veredito: %w", err)
	}
	return out, nil
}

// Fingerprint é o SHA-256 da forma canônica do veredito. Duas auditorias da
// mesma entrada produzem o mesmo fingerprint.
func (v Verdict) Fingerprint() (string, error) {
	b, err := v.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
