// ABOUTME: Package documentation for the file serving gateway
// ABOUTME: Describes tier fallback and preview rewriting

// Package serve reads theme files for the editor and preview routes.
//
// Every read goes through the resolver, so a store sees its own working copy
// when one exists. Files the working copy lacks come from the canonical
// package. HTML served for preview has its relative asset references rewritten
// onto the preview URL with store context preserved in the query string.
package serve
