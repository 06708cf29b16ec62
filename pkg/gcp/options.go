package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
)

// ClientOptions picks explicit credentials when configured; otherwise ADC applies.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.ApplicationCredentials))
	}
	return opts
}
