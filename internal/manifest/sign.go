package manifest

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrSignatureMismatch = errors.New("signature does not cover this manifest")

// Claims is the signed statement over a sealed manifest.
type Claims struct {
	Digest      string `json:"digest"`
	DigestItems int    `json:"digest_items"`
	jwt.RegisteredClaims
}

// Sign returns an RS256 token over the manifest digest. keyPEM holds an RSA
// private key in PKCS#1 or PKCS#8 form.
func Sign(m Manifest, keyPEM []byte, issuer string) (string, error) {
	if m.Digest == "" {
		return "", ErrNotSealed
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return "", fmt.Errorf("signing key: %w", err)
	}
	claims := Claims{
		Digest:      m.Digest,
		DigestItems: m.DigestItems,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// VerifySignature checks token against pubPEM (an RSA public key or
// certificate) and that it names the digest of m.
func VerifySignature(m Manifest, token string, pubPEM []byte) (*Claims, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("verification key: %w", err)
	}
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Digest != m.Digest || claims.DigestItems != m.DigestItems {
		return claims, fmt.Errorf("signed %s, manifest %s: %w", claims.Digest, m.Digest, ErrSignatureMismatch)
	}
	return claims, nil
}
