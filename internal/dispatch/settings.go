package dispatch

import (
	"github.com/throwbridge/throwbridge/internal/config"
)

// HandleSettings applies every recognised option found in the entries.
// Invalid values are logged and skipped.
func (d *Dispatcher) HandleSettings(entries []map[string]any) {
	for _, entry := range entries {
		s, err := config.DecodeSettings(entry, d.keys)
		if err != nil {
			d.log.Warn("dispatch: ignoring invalid settings", "err", err)
		}
		if s.DebugLogging != nil {
			d.setDebug(*s.DebugLogging)
		}
		if s.ItemServicePort != nil {
			d.setPort(*s.ItemServicePort)
		}
	}
}

func (d *Dispatcher) setDebug(on bool) {
	if d.verbosity != nil {
		d.verbosity.SetDebug(on)
	}
	d.log.Info("dispatch: debug logging set", "enabled", on)
}

func (d *Dispatcher) setPort(raw string) {
	d.log.Info("dispatch: item service port from settings", "port", raw)
	port, err := config.ParsePort(raw)
	if err != nil {
		d.log.Warn("dispatch: invalid item service port, keeping current", "port", raw, "err", err)
		return
	}
	if d.ports == nil {
		return
	}
	if current := d.ports.ItemServicePort(); port == current {
		d.log.Debug("dispatch: item service port unchanged", "port", port)
		return
	}
	d.ports.SetItemServicePort(port)
	d.log.Info("dispatch: item service port updated", "port", port)
}
