// Package daemon runs the long-lived dossier server.
//
// It wires configuration, the profile store, and the profile pipeline into a
// single lifecycle with flock-based locking to prevent two servers from
// sharing one data directory. The daemon exposes the HTTP API, serves
// filesystem assets, and owns the background retention sweep that prunes
// expired profiles and unreferenced images.
//
// Keep orchestration logic here: profile building lives in the pipeline
// package while the daemon focuses on startup, shutdown, and transport.
package daemon
