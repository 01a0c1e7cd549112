// Package analyzer implements the content analysis pipeline: fetch the
// target page, strip it to readable text, distill intermediate analysis
// steps with the LLM, and generate a publication in the requested style.
// Intermediate products are shared across concurrent requests through
// the cache layer.
package analyzer
