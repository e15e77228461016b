// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package telemetry

import (
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
)

// Clamp domains for persisted telemetry. Agents in the field send strings,
// negatives, and garbage; everything is coerced into these ranges rather
// than rejected, so one bad field never costs a whole sample.
const (
	maxPercent         = 100.0
	maxCount           = 10_000_000
	maxRatePerMinute   = 1_000.0
	maxDurationMinutes = 1_000_000.0

	maxWindowTitleLen = 255
	maxTopAppEntries  = 10
	maxTopAppKeyLen   = 100
)

// sanitize coerces and clamps a raw heartbeat payload into a persistable
// Heartbeat. It never fails; malformed values degrade to zero defaults.
func sanitize(payload *models.HeartbeatPayload) models.Heartbeat {
	hb := models.Heartbeat{
		CPUPercent:      clampFloat(payload.CPUPercent, 0, maxPercent, "cpu"),
		MemoryPercent:   clampFloat(payload.MemoryPercent, 0, maxPercent, "mem"),
		ActiveWindow:    truncate(payload.ActiveWindow, maxWindowTitleLen, "active_window"),
		IsLocked:        payload.IsLocked,
		KeystrokeCount:  clampCount(payload.KeystrokeCount, "keystroke_count"),
		MouseClickCount: clampCount(payload.MouseClickCount, "mouse_click_count"),
		KeystrokeRate:   clampFloat(payload.KeystrokeRate, 0, maxRatePerMinute, "keystroke_rate"),
		MouseClickRate:  clampFloat(payload.MouseClickRate, 0, maxRatePerMinute, "mouse_click_rate"),
		ProductivityPct: clampFloat(payload.ProductivityPct, 0, maxPercent, "productivity_score"),
		ActiveMinutes:   clampFloat(payload.ActiveMinutes, 0, maxDurationMinutes, "active_minutes"),
		IdleMinutes:     clampFloat(payload.IdleMinutes, 0, maxDurationMinutes, "idle_minutes"),
		IdleAlert:       payload.IdleAlert,
	}
	hb.TopApplications = sanitizeTopApps(payload.TopApplications)
	return hb
}

// coerceFloat converts the loosely typed payload values JSON decoding can
// produce. Non-numeric and non-finite input degrades to (0, false); NaN and
// the infinities parse as floats but can never satisfy a clamp domain, so
// they are rejected here before any comparison.
func coerceFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(value)
	case float32:
		return finite(float64(value))
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampFloat(v any, minVal, maxVal float64, field string) float64 {
	f, ok := coerceFloat(v)
	if !ok {
		if v != nil {
			metrics.TelemetryFieldsClamped.WithLabelValues(field).Inc()
		}
		return minVal
	}
	switch {
	case f < minVal:
		metrics.TelemetryFieldsClamped.WithLabelValues(field).Inc()
		return minVal
	case f > maxVal:
		metrics.TelemetryFieldsClamped.WithLabelValues(field).Inc()
		return maxVal
	default:
		return f
	}
}

func clampCount(v any, field string) int64 {
	return int64(clampFloat(v, 0, maxCount, field))
}

func truncate(s string, limit int, field string) string {
	if len(s) <= limit {
		return s
	}
	metrics.TelemetryFieldsClamped.WithLabelValues(field).Inc()
	return cutRuneBoundary(s, limit)
}

// cutRuneBoundary shortens s to at most limit bytes without splitting a
// multi-byte rune, so persisted strings stay valid UTF-8.
func cutRuneBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// sanitizeTopApps bounds the top-applications map to maxTopAppEntries
// entries with keys of at most maxTopAppKeyLen characters. When the agent
// sends more, the entries with the highest minutes win, ties broken by name
// so the selection is deterministic.
func sanitizeTopApps(raw map[string]any) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}

	type appUsage struct {
		name    string
		minutes float64
	}
	usages := make([]appUsage, 0, len(raw))
	for name, v := range raw {
		minutes, ok := coerceFloat(v)
		if !ok || minutes < 0 {
			minutes = 0
		}
		if minutes > maxDurationMinutes {
			minutes = maxDurationMinutes
		}
		if len(name) > maxTopAppKeyLen {
			metrics.TelemetryFieldsClamped.WithLabelValues("top_applications").Inc()
			name = cutRuneBoundary(name, maxTopAppKeyLen)
		}
		usages = append(usages, appUsage{name: name, minutes: minutes})
	}

	sort.Slice(usages, func(i, j int) bool {
		if usages[i].minutes != usages[j].minutes {
			return usages[i].minutes > usages[j].minutes
		}
		return usages[i].name < usages[j].name
	})
	if len(usages) > maxTopAppEntries {
		metrics.TelemetryFieldsClamped.WithLabelValues("top_applications").Inc()
		usages = usages[:maxTopAppEntries]
	}

	apps := make(map[string]float64, len(usages))
	for _, u := range usages {
		apps[u.name] = u.minutes
	}
	return apps
}
