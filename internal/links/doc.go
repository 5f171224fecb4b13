// Package links holds the link domain model shared by the reconciler, the
// enrichment worker and the storage backends.
//
// A link row is created pending when an article starts referencing a URL and
// stays pending until the enrichment worker has fetched the page through the
// browser session and persisted its title, text, language and screenshot.
// There is no failed state: a link whose fetch fails keeps pending=true.
package links
