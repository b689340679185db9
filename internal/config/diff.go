package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (listen address, backends, peer endpoint) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestaurantChanged is true when any venue detail (name, address, hours,
	// phone) changed. Active sessions rebuild their system prompt on the
	// next turn.
	RestaurantChanged bool

	// PolicyChanges lists per-policy differences.
	PolicyChanges []PolicyDiff
}

// PolicyDiff describes what changed for a single restaurant policy.
type PolicyDiff struct {
	Key      string
	Added    bool
	Removed  bool
	Modified bool
}

// Changed reports whether the diff contains any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RestaurantChanged || len(d.PolicyChanges) > 0
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Venue details
	if old.Restaurant.Name != new.Restaurant.Name ||
		old.Restaurant.Address != new.Restaurant.Address ||
		old.Restaurant.Hours != new.Restaurant.Hours ||
		old.Restaurant.Phone != new.Restaurant.Phone {
		d.RestaurantChanged = true
	}

	// Policies: detect modified and removed keys.
	for key, oldVal := range old.Restaurant.Policies {
		newVal, exists := new.Restaurant.Policies[key]
		if !exists {
			d.PolicyChanges = append(d.PolicyChanges, PolicyDiff{Key: key, Removed: true})
			continue
		}
		if oldVal != newVal {
			d.PolicyChanges = append(d.PolicyChanges, PolicyDiff{Key: key, Modified: true})
		}
	}

	// Detect added keys.
	for key := range new.Restaurant.Policies {
		if _, exists := old.Restaurant.Policies[key]; !exists {
			d.PolicyChanges = append(d.PolicyChanges, PolicyDiff{Key: key, Added: true})
		}
	}

	if len(d.PolicyChanges) > 0 {
		d.RestaurantChanged = true
	}

	return d
}
