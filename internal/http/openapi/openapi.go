// Package openapi carries the API description served at /openapi.yaml.
package openapi

import _ "embed"

// YAML is the festival restock API document, rendered by /docs.
//
//go:embed openapi.yaml
var YAML []byte
