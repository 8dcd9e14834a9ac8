// Package main hosts the dossier CLI entrypoint and command graph.
//
// Commands run the profile pipeline in-process against the local profile
// database. Search and candidates build or resolve profiles. Answer, ask and
// chat talk about a stored profile without gathering new data. Cache inspects
// and prunes stored profiles, doctor reports provider readiness, and serve
// starts the HTTP server. Output is a table on a terminal and JSON otherwise.
package main
