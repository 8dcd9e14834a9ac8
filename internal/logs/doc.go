// Package logs reads the server log files written under paths.log_dir for
// the "dossier logs" command.
package logs
