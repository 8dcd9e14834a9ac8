// Package peopledata wraps the People Data Labs person search and enrichment
// APIs.
//
// Search translates a name plus optional location, company, and age into the
// PDL SQL dialect and returns up to ten matching person records. Enrich looks
// up a single record by PDL id or profile URL. A 404 from either endpoint means
// "no match" and is reported as an empty result rather than an error.
package peopledata
