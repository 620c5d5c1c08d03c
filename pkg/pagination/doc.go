// Package pagination computes page windows over ordered collections.
//
// Page based endpoints are 1-based:
//
//	w := pagination.Parse(r.URL.Query().Get("page"), r.URL.Query().Get("limit"), 5)
//	items := pagination.Slice(all, w)
//	pages := pagination.TotalPages(len(all), w.Limit)
//
// Offset based endpoints (search, batched lookups) are 0-based and use
// ParseOffset instead; the two conventions are never mixed.
//
// Missing, non-numeric, zero or negative parameters fall back to the
// defaults. Invalid input is never reported as an error and a limit of
// zero never reaches a division.
package pagination
