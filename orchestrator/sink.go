package orchestrator

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/valvemist/vmbackup/outputsink"
	"github.com/valvemist/vmbackup/remoteshell"
	"github.com/valvemist/vmbackup/runconfig"
)

// resolvedSink bundles the Sink the backup engine writes through with
// the local directory state can be inspected against (empty when the
// destination has no local filesystem presence, e.g. stdout-zip or a
// remote host) and a close function releasing any archive/connection
// resources once every worker has finished.
type resolvedSink struct {
	sink      outputsink.Sink
	localDir  string
	close     func() error
	remoteErr error
}

// buildSink interprets cfg.Output per spec §6: a bare path is a local
// directory, "-" is a single zip archive written to stdout, and
// "host:path" streams each finished file to a remote directory over
// SSH.
func buildSink(ctx context.Context, cfg runconfig.RunConfig) (*resolvedSink, error) {
	switch {
	case cfg.Output == "-":
		zs := outputsink.NewZipSink(os.Stdout)
		return &resolvedSink{sink: zs, close: zs.Close}, nil

	case isRemoteSpec(cfg.Output):
		host, remoteDir, _ := strings.Cut(cfg.Output, ":")
		port := cfg.RemotePort
		if port == 0 {
			port = 22
		}
		var keyPEM []byte
		if cfg.RemoteKeyPath != "" {
			pem, err := os.ReadFile(cfg.RemoteKeyPath)
			if err != nil {
				return nil, errors.Wrap(err, "orchestrator: read remote private key")
			}
			keyPEM = pem
		}
		shell, err := remoteshell.Dial(remoteshell.DialSpec{
			Host: host, Port: port, User: cfg.RemoteUser, PrivateKeyPEM: keyPEM,
		})
		if err != nil {
			return nil, errors.Wrap(err, "orchestrator: dial remote output host")
		}
		stageDir, err := os.MkdirTemp("", "vmbackup-stage-*")
		if err != nil {
			shell.Close()
			return nil, errors.Wrap(err, "orchestrator: create staging dir")
		}
		rs := outputsink.RemoteSink{Ctx: ctx, Uploader: shell, RemoteDir: remoteDir, StageDir: stageDir}
		return &resolvedSink{
			sink:     rs,
			localDir: stageDir,
			close: func() error {
				os.RemoveAll(stageDir)
				return shell.Close()
			},
		}, nil

	default:
		if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
			return nil, errors.Wrapf(err, "orchestrator: create output dir %s", cfg.Output)
		}
		return &resolvedSink{sink: outputsink.DirSink{Dir: cfg.Output}, localDir: cfg.Output}, nil
	}
}

// isRemoteSpec reports whether output looks like "host:path" rather
// than a local filesystem path (a lone drive-letter colon or an
// absolute/relative path never matches since host must be non-empty
// and path must follow the colon).
func isRemoteSpec(output string) bool {
	host, rest, found := strings.Cut(output, ":")
	return found && host != "" && rest != "" && !strings.ContainsAny(host, "/\\")
}
