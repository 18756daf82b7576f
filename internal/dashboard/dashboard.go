// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard serves gatekeeper's read-only HTTP surface: a
// Markdown status page rendered to HTML, the same report as JSON, a
// liveness probe, and Prometheus metrics.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/gatekeeper/internal/status"
)

// Reporter produces the status report.
type Reporter interface {
	Collect(ctx context.Context) (*status.Report, error)
}

// Config holds the Dashboard's collaborators.
type Config struct {
	Reporter Reporter

	// Gatherer backs /metrics. Nil leaves /metrics unrouted.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Dashboard routes the HTTP surface.
type Dashboard struct {
	reporter Reporter
	logger   *slog.Logger
	markdown goldmark.Markdown
	router   chi.Router
}

// New returns a Dashboard for config.
func New(config Config) (*Dashboard, error) {
	if config.Reporter == nil {
		return nil, errors.New("dashboard: Reporter is required")
	}
	if config.Logger == nil {
		return nil, errors.New("dashboard: Logger is required")
	}

	d := &Dashboard{
		reporter: config.Reporter,
		logger:   config.Logger,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}

	router := chi.NewRouter()
	router.Get("/", d.serveIndex)
	router.Get("/api/status", d.serveStatus)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	d.router = router
	return d, nil
}

// Handler returns the routed handler.
func (d *Dashboard) Handler() http.Handler {
	return d.router
}

func (d *Dashboard) serveStatus(w http.ResponseWriter, r *http.Request) {
	report, err := d.reporter.Collect(r.Context())
	if err != nil {
		d.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		d.logger.Debug("writing status response failed", "error", err)
	}
}

func (d *Dashboard) serveIndex(w http.ResponseWriter, r *http.Request) {
	report, err := d.reporter.Collect(r.Context())
	if err != nil {
		d.fail(w, err)
		return
	}

	var body bytes.Buffer
	if err := d.markdown.Convert([]byte(RenderMarkdown(report)), &body); err != nil {
		d.fail(w, fmt.Errorf("rendering status page: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageTemplate, html.EscapeString(report.Version), body.String())
}

func (d *Dashboard) fail(w http.ResponseWriter, err error) {
	d.logger.Error("dashboard request failed", "error", err)
	http.Error(w, "status unavailable", http.StatusInternalServerError)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>gatekeeper %s</title></head>
<body>
%s</body>
</html>
`

// RenderMarkdown formats report as the status page source.
func RenderMarkdown(report *status.Report) string {
	var builder strings.Builder
	builder.WriteString("# gatekeeper\n\n")
	fmt.Fprintf(&builder, "Version `%s`, up %s (since %s).\n\n",
		report.Version, report.Uptime, report.StartedAt.UTC().Format(time.RFC3339))

	builder.WriteString("## Links\n\n")
	builder.WriteString("| Status | Count |\n|---|---|\n")
	for _, name := range []string{"verified", "pending_proof", "unverified"} {
		fmt.Fprintf(&builder, "| %s | %d |\n", name, report.Links[name])
	}
	fmt.Fprintf(&builder, "| **total** | %d |\n\n", report.TotalLinks)
	fmt.Fprintf(&builder, "- Group members: %d\n", report.GroupMembers)
	fmt.Fprintf(&builder, "- Admin overrides: %d\n", report.AdminOverrides)
	fmt.Fprintf(&builder, "- Pending verifications: %d\n\n", report.PendingSessions)

	builder.WriteString("## Revocation\n\n")
	switch {
	case !report.RevocationEnabled:
		builder.WriteString("Revocation sweeps are disabled.\n")
	case report.LastSweep == nil:
		builder.WriteString("No sweep has finished yet.\n")
	default:
		sweep := report.LastSweep
		fmt.Fprintf(&builder, "Last sweep `%s` finished %s in %s.\n\n",
			sweep.RunID, sweep.FinishedAt.UTC().Format(time.RFC3339), sweep.Duration().Round(time.Millisecond))
		fmt.Fprintf(&builder, "- Checked: %d\n- Revoked: %d\n- Skipped: %d\n- Failed: %d\n",
			sweep.Checked, sweep.Revoked, sweep.Skipped, sweep.Failed)
		if sweep.Error != "" {
			fmt.Fprintf(&builder, "\nThe sweep stopped early: %s\n", sweep.Error)
		}
	}
	return builder.String()
}
