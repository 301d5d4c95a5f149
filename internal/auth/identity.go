// Package auth verifies the identity claims minted by the external session
// service. The core never authenticates users itself; it only checks a
// signed, pre-validated claim that names the connection's stable subject ID
// and the trips it may publish locations for.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the verified view of a connection: who it is, and which trips
// it is a recognized driver/conductor publisher for. Zero publishable trips
// means subscribe-only.
type Identity struct {
	SubjectID        string
	PublishableTrips map[string]struct{}
}

// CanPublish reports whether this identity may publish locations for tripID.
func (id Identity) CanPublish(tripID string) bool {
	_, ok := id.PublishableTrips[tripID]
	return ok
}

// Claims is the JWT payload issued by the session service.
type Claims struct {
	PublishTrips []string `json:"publishTrips,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 identity tokens against the shared signing secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token and returns the identity it claims.
// Tokens without a subject are rejected: the subject is the holderId every
// hold and commit is keyed on.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		SubjectID:        claims.Subject,
		PublishableTrips: make(map[string]struct{}, len(claims.PublishTrips)),
	}
	for _, tripID := range claims.PublishTrips {
		identity.PublishableTrips[tripID] = struct{}{}
	}
	return identity, nil
}
