// Package configs embeds the configuration template written by
// `indexbot config init`.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented indexbot.yaml template. Its values
// are the built-in defaults.
//
//go:embed indexbot.example.yaml
var ProjectConfigTemplate string
