/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the dashboard's HTTP surface under /api/v1. The
// server runs behind an authenticating proxy; handlers trust the
// X-Botdeck-Actor header for attribution.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/approval"
	"github.com/botdeckhq/botdeck/internal/audit"
	"github.com/botdeckhq/botdeck/internal/automation"
	"github.com/botdeckhq/botdeck/internal/cache"
	"github.com/botdeckhq/botdeck/internal/coupons"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/logbuffer"
	"github.com/botdeckhq/botdeck/internal/matches"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	approval   *approval.Service
	coupons    *coupons.Service
	matches    *matches.Service
	automation *automation.Service
	auditSvc   *audit.Service
	cache      *cache.Cache
	bus        events.PubSub
	logBuf     *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API router wrapper. cache and logBuf may be nil.
func New(db *gorm.DB, approvalSvc *approval.Service, couponSvc *coupons.Service, matchSvc *matches.Service, automationSvc *automation.Service, auditSvc *audit.Service, c *cache.Cache, bus events.PubSub, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		approval:   approvalSvc,
		coupons:    couponSvc,
		matches:    matchSvc,
		automation: automationSvc,
		auditSvc:   auditSvc,
		cache:      c,
		bus:        bus,
		logBuf:     logBuf,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", a.handleChannelsList)
			r.Post("/", a.handleChannelsCreate)
			r.Route("/{channelID}", func(r chi.Router) {
				r.Get("/", a.handleChannelsGet)
				r.Put("/", a.handleChannelsUpdate)
				r.Delete("/", a.handleChannelsDelete)
				r.Post("/activate", a.handleChannelsActivate)
				r.Post("/deactivate", a.handleChannelsDeactivate)

				r.Get("/managers", a.handleChannelManagersList)
				r.Post("/managers/{managerID}", a.handleChannelManagersAssign)
				r.Delete("/managers/{managerID}", a.handleChannelManagersUnassign)

				r.Get("/export/rrule", a.handleChannelRulesExport)
			})
		})

		r.Route("/managers", func(r chi.Router) {
			r.Get("/", a.handleManagersList)
			r.Post("/", a.handleManagersSubmit)
			r.Route("/{managerID}", func(r chi.Router) {
				r.Get("/", a.handleManagersGet)
				r.Post("/approve", a.handleManagersApprove)
				r.Post("/reject", a.handleManagersReject)
			})
		})

		r.Route("/automation", func(r chi.Router) {
			r.Route("/rules", func(r chi.Router) {
				r.Get("/", a.handleRulesList)
				r.Post("/", a.handleRulesCreate)
				r.Route("/{ruleID}", func(r chi.Router) {
					r.Get("/", a.handleRulesGet)
					r.Put("/", a.handleRulesUpdate)
					r.Delete("/", a.handleRulesDelete)
					r.Post("/enable", a.handleRulesEnable)
					r.Post("/disable", a.handleRulesDisable)
					r.Get("/preview", a.handleRulesPreview)
				})
			})
			r.Post("/simulate", a.handleRulesSimulate)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", a.handleCouponsList)
			r.Post("/", a.handleCouponsCreate)
			r.Get("/stats", a.handleCouponsStats)
			r.Route("/{couponID}", func(r chi.Router) {
				r.Get("/", a.handleCouponsGet)
				r.Put("/", a.handleCouponsUpdate)
				r.Delete("/", a.handleCouponsDelete)
				r.Post("/image", a.handleCouponsUploadImage)
				r.Get("/click", a.handleCouponsClick)
			})
		})

		r.Route("/daily-matches", func(r chi.Router) {
			r.Get("/", a.handleMatchesList)
			r.Put("/", a.handleMatchesUpsert)
			r.Post("/select", a.handleMatchesSelectTop)
			r.Post("/{matchID}/select", a.handleMatchesSelect)
			r.Post("/{matchID}/unselect", a.handleMatchesUnselect)
		})

		r.Get("/deliveries", a.handleDeliveriesList)
		r.Get("/audit", a.handleAuditList)
		r.Get("/logs", a.handleLogsList)
		r.Get("/events", a.handleEvents)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, events.EventType(strings.TrimSpace(part)))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// actor returns the caller identity forwarded by the auth proxy.
func actor(r *http.Request) string {
	if v := r.Header.Get("X-Botdeck-Actor"); v != "" {
		return v
	}
	return "anonymous"
}

// publishAuditEvent publishes an audit event with request context.
func (a *API) publishAuditEvent(r *http.Request, data events.Payload) {
	payload := events.Payload{
		"actor":      actor(r),
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(events.EventAudit, payload)
}

func parseTimeParam(r *http.Request, key string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
