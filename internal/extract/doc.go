// Package extract resolves title, body, category and publication time from a
// document. Each field has an ordered rule list; the first rule whose values
// pass validation wins and later rules are never evaluated.
package extract
