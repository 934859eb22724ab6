package instance

import (
	"os"
	"strings"
)

const defaultID = "local"

// GetID returns the process instance identifier: FIELDSTOCK_INSTANCE_ID, then the
// platform dyno name, then the hostname.
func GetID() string {
	for _, key := range []string{"FIELDSTOCK_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
