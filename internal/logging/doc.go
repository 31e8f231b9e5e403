// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package logging is the process-wide structured logging layer, built
// on zerolog.
//
// main calls Init once with the configured level and format; every
// package then logs through the helpers (Info, Err, With) or through
// a request-scoped logger carried in the context:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("addr", cfg.Server.Listen).Msg("server starting")
//	logging.Ctx(ctx).Warn().Str("path", r.URL.Path).Msg("slow request")
//
// Three bridges route foreign logging APIs into the same stream: a
// slog.Handler for the suture supervision tree (sutureslog speaks
// slog), a watermill.LoggerAdapter for the audit pipeline, and
// SecurityLogger for the sanitized security event stream that SIEM
// tooling consumes.
//
// Log chains must end with .Msg or .Send; an unterminated chain is
// never emitted.
package logging
