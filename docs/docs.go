// Package docs registers the diagnostics HTTP server's OpenAPI document
// with swaggo/swag, the same way `swag init` generates a docs.go for a
// gorilla/mux HTTP API. This one is hand-maintained instead of
// generated, since the diagnostics surface is small and stable; it is
// imported for its init() side effect (swag.Register) by main.go and
// served at /swagger/ via swaggo/http-swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/stats": {
            "get": {
                "description": "Returns one chunk_statistics record per configured size class",
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Per-size-class allocator statistics",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/hazard": {
            "get": {
                "description": "Reports whether addr is currently protected by any goroutine's hazard context",
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Hazard-pointer probe",
                "parameters": [
                    { "type": "string", "description": "address in hex", "name": "addr", "in": "query", "required": true }
                ],
                "responses": {
                    "200": { "description": "OK" },
                    "400": { "description": "Bad Request" }
                }
            }
        },
        "/prune": {
            "post": {
                "description": "Runs Allocator.Prune once; concurrent calls collapse into a single pass",
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Trigger an out-of-band prune pass",
                "responses": {
                    "202": { "description": "Accepted" }
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Liveness probe",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it, per
// swag's documented registration pattern.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/diag",
	Schemes:          []string{},
	Title:            "alconcurrent diagnostics API",
	Description:      "Runtime introspection for the hazard-pointer registry and slab allocator",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
