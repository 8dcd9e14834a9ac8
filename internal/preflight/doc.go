// Package preflight provides readiness checks for the paths, the profile
// database, and the external providers that dossier depends on.
//
// "dossier doctor" runs RunAll and renders the results as a table. Optional
// providers that are not configured report as disabled rather than failed,
// since the pipeline degrades around them.
package preflight
