// Package dashboard provides the embedded web UI for Mission Control.
//
// The page subscribes to /api/widgets/sse and posts to the /api/commands
// endpoints. A write token can be passed once as ?token=... and is kept in
// local storage. The server replaces {{.Title}} before serving.
package dashboard

import "embed"

// Assets holds assets/index.html, a single page with inline CSS and
// JavaScript.
//
//go:embed assets/*
var Assets embed.FS
