package config

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeCaptureRunner runs the capture job execution engine.
	ServiceModeCaptureRunner ServiceMode = "capture-runner"
	// ServiceModeWebhookRunner runs the webhook delivery worker.
	ServiceModeWebhookRunner ServiceMode = "webhook-runner"
	// ServiceModeReaper runs the stale job reaper.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeJanitor runs the expired archive janitor.
	ServiceModeJanitor ServiceMode = "janitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeCaptureRunner,
		ServiceModeWebhookRunner,
		ServiceModeReaper,
		ServiceModeJanitor,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeCaptureRunner,
			ServiceModeWebhookRunner,
			ServiceModeReaper,
			ServiceModeJanitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: capture-runner, webhook-runner, reaper, janitor)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}
