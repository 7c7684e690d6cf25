// Package api carries the OpenAPI document served at /openapi.yml and used
// to validate request bodies.
package api

import _ "embed"

//go:embed openapi.yml
var OpenAPI []byte
