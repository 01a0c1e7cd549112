// Package service contains the business logic sitting between the HTTP
// surface and the stores. The entitlement service owns admissibility
// decisions, quota consumption and the post-analysis housekeeping rules.
package service
