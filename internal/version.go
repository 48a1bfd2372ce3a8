package internal

import (
	"fmt"
	"runtime"
)

// Version is the current version of telechat.
// This should be updated with each release
const Version = "0.4.0"

// UserAgent identifies the client on websocket dials and upload requests.
func UserAgent() string {
	return fmt.Sprintf("telechat/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
