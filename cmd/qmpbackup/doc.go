// Package main is the backup CLI: parses flags into a runconfig.RunConfig,
// dials libvirt, and runs the orchestrator.
//
// For the backup pipeline itself, see the orchestrator and backupengine
// packages.
package main
