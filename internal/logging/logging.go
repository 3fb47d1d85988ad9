// Package logging configures the process-wide loggo writer and default
// level for deskbrokerd, wired before anything else starts.
package logging

import (
	"os"

	"github.com/juju/loggo/v2"
)

const envLevel = "DESKBROKER_LOG_LEVEL"

// Configure sets the root logger's level from DESKBROKER_LOG_LEVEL,
// using the "<module>=LEVEL" syntax loggo.ConfigureLoggers accepts. An
// empty value means "<root>=INFO". A malformed value is logged and
// ignored, leaving the levels as they were, rather than treated as
// fatal — logging configuration should never prevent the broker from
// starting.
func Configure() {
	raw := os.Getenv(envLevel)
	if raw == "" {
		raw = "<root>=INFO"
	}
	if err := loggo.ConfigureLoggers(raw); err != nil {
		logger := loggo.GetLogger("deskbroker.logging")
		logger.Warningf("ignoring malformed %s=%q: %v", envLevel, raw, err)
	}
}
