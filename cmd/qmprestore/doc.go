// Package main is the restore CLI: parses flags into a
// restoreengine.RestoreConfig and replays a backup chain, or in dump
// mode prints stream file metadata without writing anything.
package main
