package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klytics/sheetkit/cmd/version"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad flags, missing source, invalid config
	ExitSystemError = 2 // source fetch failure, AI failure, IO error
)

// JSONResult is the envelope for commands that report something other
// than a dispatcher response (resolve, audit, config).
type JSONResult struct {
	OK      bool        `json:"ok"`
	Command string      `json:"command"`
	Version string      `json:"version"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// PrintJSON writes a success envelope to w.
func PrintJSON(w io.Writer, cmd string, data interface{}) error {
	return encode(w, JSONResult{OK: true, Command: cmd, Version: version.Version, Data: data})
}

// PrintJSONError writes an error envelope to w.
func PrintJSONError(w io.Writer, cmd string, err error, code int) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Error:   err.Error(),
		Code:    code,
	}
	if encErr := encode(w, result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

func encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
