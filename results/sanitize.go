package results

import "github.com/microcosm-cc/bluemonday"

// snippetPolicy strips scripts, event handlers, and anything else unsafe
// from captured element markup. Snippets come straight out of hosted
// page content and end up re-rendered inside overlay tooltips, so they
// are treated as untrusted input.
var snippetPolicy = bluemonday.UGCPolicy()

// SanitizeSnippet cleans captured element HTML for safe re-rendering.
func SanitizeSnippet(raw string) string {
	return snippetPolicy.Sanitize(raw)
}
