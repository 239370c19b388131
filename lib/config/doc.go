// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads sealrun's YAML configuration.
//
// A configuration file is selected by the --config flag or the
// SEALRUN_CONFIG environment variable. There is no search path and no
// ~/.config discovery; with neither set, commands run on [Default].
//
// The file may carry development, staging and production sections that
// override base values when [Config].Environment matches. Production
// always verifies strictly, whatever the file says.
//
// Path fields support ${HOME}, ${CONFIG_DIR} and ${VAR:-default}
// expansion. No environment variable overrides a config value directly.
package config
