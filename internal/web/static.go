package web

import "embed"

// staticFiles holds the operator page: an utterance form, the live status
// stream and the arm pose.
//
//go:embed static/*
var staticFiles embed.FS
