package qmp

import (
	"encoding/json"
	"log/slog"
	"os"
)

var log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level:     slog.LevelInfo,
	AddSource: true,
}))

// SetLogger sets the logger used throughout the qmp package.
func SetLogger(logger *slog.Logger) {
	if logger != nil {
		log = logger
	}
}

// Monitor is the narrow surface this package needs from a QMP
// connection; *go-qemu/qmp.SocketMonitor satisfies it.
type Monitor interface {
	Run(cmd []byte) ([]byte, error)
}

// RunAndLog sends a raw QMP command to the monitor and logs the
// request/response for debugging.
func RunAndLog(monitor Monitor, json string) ([]byte, error) {
	log.Debug(json)
	raw, err := monitor.Run([]byte(json))
	if err != nil {
		log.Debug("qmp command failed", "error", err)
	}
	prettyPrint(string(raw))
	return raw, err
}

func prettyPrint(raw string) {
	var obj interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		log.Debug(raw)
		return
	}
	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		log.Debug(raw)
		return
	}
	log.Debug(string(pretty))
}
