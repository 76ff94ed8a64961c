package mqtt

import (
	"strings"

	"github.com/google/uuid"
)

// maxClientIDLen is the MQTT 3.1 limit; some embedded brokers still enforce it.
const maxClientIDLen = 23

// NewClientID returns prefix-<random hex>, capped at 23 bytes.
func NewClientID(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if prefix == "" {
		return suffix
	}
	if room := maxClientIDLen - len(suffix) - 1; len(prefix) > room {
		prefix = prefix[:room]
	}
	return prefix + "-" + suffix
}
