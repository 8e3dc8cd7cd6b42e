// Package docs builds the MSBD5017 course documentation site.
//
// Regenerate the standalone code theme stylesheet using:
//
//	go generate
package docs

//go:generate sh -c "go run ./tools/generate-theme-css github-dark > static/css/code-theme.css"
