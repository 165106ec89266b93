// Package configs embeds the example configuration written by tutor init.
package configs

import _ "embed"

// ExampleConfigName is the name of the embedded template.
const ExampleConfigName = "studytutor.example.yaml"

// ExampleConfig is the commented example configuration. Its values are
// the built-in defaults.
//
//go:embed studytutor.example.yaml
var ExampleConfig []byte
