// Package restoreengine implements chain discovery, target allocation,
// and sequential frame replay against a restore-side NBD endpoint, plus
// metadata-only dump mode. It is the counterpart of backupengine.
package restoreengine
