package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidPort is returned for ports outside 1–65535 or that are not integers.
var ErrInvalidPort = errors.New("invalid port")

// Settings is one decoded settings entry. Nil fields were not present.
type Settings struct {
	DebugLogging    *bool
	ItemServicePort *string
}

// DecodeSettings maps the Control Host option names in entry onto Settings.
// Values are weakly typed: a port may arrive as a number or a string. Each
// option decodes on its own; a bad value leaves its field nil and is reported
// in the joined error while the other options still decode.
func DecodeSettings(entry map[string]any, keys SettingsKeys) (Settings, error) {
	var (
		s    Settings
		errs []error
	)
	if v, ok := entry[keys.DebugLogging]; ok {
		var on bool
		if err := decodeOption(v, &on); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", keys.DebugLogging, err))
		} else {
			s.DebugLogging = &on
		}
	}
	if v, ok := entry[keys.ItemServicePort]; ok {
		var port string
		if err := decodeOption(v, &port); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", keys.ItemServicePort, err))
		} else {
			s.ItemServicePort = &port
		}
	}
	return s, errors.Join(errs...)
}

func decodeOption(in, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("create settings decoder: %w", err)
	}
	return decoder.Decode(in)
}

// ParsePort parses a port number that must lie strictly between 0 and 65536.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, raw)
	}
	if port <= 0 || port >= 65536 {
		return 0, fmt.Errorf("%w: %d out of range", ErrInvalidPort, port)
	}
	return port, nil
}

// SettingsEntries renders the runtime-adjustable parts of cfg as Control Host
// style settings entries, so file-based changes take the same path as
// notifications from the host.
func SettingsEntries(cfg *Config) []map[string]any {
	return []map[string]any{
		{cfg.SettingsKeys.DebugLogging: cfg.DebugLogging},
		{cfg.SettingsKeys.ItemServicePort: strconv.Itoa(cfg.ItemService.Port)},
	}
}
