package config

import "errors"

// ErrConfig is the sentinel wrapped by every Validate failure: an unknown
// option or out-of-range value at engine construction (spec §7 ConfigError).
var ErrConfig = errors.New("config: invalid configuration")
