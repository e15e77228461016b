// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnrollmentClaims are the claims signed into a stateless enrollment token:
// which admin authorized the join, for which organization, and when. The
// token is never persisted; validity is signature plus TTL alone.
type EnrollmentClaims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	jwt.RegisteredClaims
}

// enrollmentSigner mints and verifies enrollment tokens with HMAC-SHA256.
type enrollmentSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newEnrollmentSigner(secret string, ttl time.Duration, now func() time.Time) (*enrollmentSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("enrollment secret must be at least 32 characters")
	}
	if ttl <= 0 {
		ttl = 900 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &enrollmentSigner{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Sign creates an enrollment token for (userID, orgID).
func (s *enrollmentSigner) Sign(userID, orgID string) (string, error) {
	issuedAt := s.now()
	claims := &EnrollmentClaims{
		UserID: userID,
		OrgID:  orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign enrollment token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and TTL and returns the signed claims. Every
// failure mode (expired, tampered, unparseable, wrong algorithm) collapses
// into ErrAuthenticationFailed for the caller.
func (s *enrollmentSigner) Verify(tokenString string) (*EnrollmentClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &EnrollmentClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	claims, ok := token.Claims.(*EnrollmentClaims)
	if !ok || !token.Valid || claims.UserID == "" || claims.OrgID == "" {
		return nil, fmt.Errorf("%w: invalid enrollment claims", ErrAuthenticationFailed)
	}
	return claims, nil
}
