package instance

import "github.com/forkfleet/forkfleet-backend/pkg/env"

// ID names this process in logs. FORKFLEET_INSTANCE_ID wins over the
// platform's DYNO; "local" when neither is set.
func ID() string {
	if id := env.First("FORKFLEET_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	return "local"
}
