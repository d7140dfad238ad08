// Package api holds the OpenAPI document served by the REST router.
package api

import _ "embed"

// UserSwagger is the OpenAPI 2.0 description of the user REST API.
//
//go:embed swagger/user.swagger.json
var UserSwagger []byte
