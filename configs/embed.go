// Package configs embeds the annotated configuration template written by
// `amanidx config init`.
package configs

import _ "embed"

// ConfigTemplate documents every setting with its default value.
//
//go:embed config.example.yaml
var ConfigTemplate string
