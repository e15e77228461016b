// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
)

type contextKey string

const (
	contextKeyDevice contextKey = "device"
	contextKeyAdmin  contextKey = "admin"
)

// AdminSubject is the authenticated dashboard caller, decoded from the CRM
// bearer token.
type AdminSubject struct {
	UserID string
	Name   string
	Role   string
	OrgID  string
}

type adminClaims struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// observeRequests records request latency per method/route/status.
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}

// securityHeaders sets the standard hardening headers on API responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// bearerCredential extracts the caller's credential: the Authorization
// header when present, else the "token" query parameter. Browser websocket
// clients cannot set headers, so the query form is accepted everywhere.
func bearerCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// deviceAuth authenticates the device token and places the device in the
// request context.
func (rt *Router) deviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerCredential(r)
		if token == "" {
			metrics.AuthFailures.WithLabelValues("device_token").Inc()
			respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "device token required", nil)
			return
		}

		device, err := rt.identity.AuthenticateDeviceToken(r.Context(), token)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyDevice, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminAuth verifies a CRM-minted admin bearer token (HS256) and places the
// subject in the request context. Only admin-tier roles pass.
func (rt *Router) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerCredential(r)
		if token == "" {
			metrics.AuthFailures.WithLabelValues("admin_token").Inc()
			respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "bearer token required", nil)
			return
		}

		subject, err := rt.verifyAdminToken(token)
		if err != nil {
			metrics.AuthFailures.WithLabelValues("admin_token").Inc()
			respondError(w, http.StatusUnauthorized, "AUTH_FAILED", "authentication failed", err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyAdmin, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rt *Router) verifyAdminToken(token string) (*AdminSubject, error) {
	parsed, err := jwt.ParseWithClaims(token, &adminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(rt.cfg.AdminSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse admin token: %w", err)
	}

	claims, ok := parsed.Claims.(*adminClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	switch claims.Role {
	case "admin", "owner":
	default:
		return nil, fmt.Errorf("role %q is not admin-tier", claims.Role)
	}
	return &AdminSubject{
		UserID: claims.Subject,
		Name:   claims.Name,
		Role:   claims.Role,
		OrgID:  claims.OrgID,
	}, nil
}

// deviceFromContext returns the authenticated device placed by deviceAuth.
func deviceFromContext(ctx context.Context) *models.Device {
	device, _ := ctx.Value(contextKeyDevice).(*models.Device)
	return device
}

// adminFromContext returns the authenticated admin placed by adminAuth.
func adminFromContext(ctx context.Context) *AdminSubject {
	admin, _ := ctx.Value(contextKeyAdmin).(*AdminSubject)
	return admin
}
