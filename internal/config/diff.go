package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// RecordingChanged is set when any recording parameter changed. Safe to
	// apply: the next session picks up the new values.
	RecordingChanged bool
	NewRecording     RecordingConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists sections whose change only takes effect after a
	// restart (providers, listen address, TLS, resilience, history).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.Recording, new.Recording) {
		d.RecordingChanged = true
		d.NewRecording = new.Recording
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}

	return d
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.RecordingChanged && !d.LogLevelChanged && len(d.RestartRequired) == 0
}
