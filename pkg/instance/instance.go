package instance

import (
	"os"
	"strings"
)

const placeholder = "{instance}"

// GetID returns the process instance identifier: SAREEHUB_INSTANCE_ID, then the hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("SAREEHUB_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}

// Expand substitutes {instance} in a resource name so each replica can own a subscription.
func Expand(name string) string {
	return strings.ReplaceAll(name, placeholder, GetID())
}
