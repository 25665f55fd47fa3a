// Package docs holds the swagger description of the ingest admin API.
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
        "/profiles/{handle}/sync": {
            "post": {
                "description": "Fetches every post page of the profile from the scraping API and reconciles it into storage.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["profiles"],
                "summary": "Sync a profile now",
                "parameters": [
                    {"type": "string", "description": "Profile handle, with or without @", "name": "handle", "in": "path", "required": true},
                    {"description": "Sync options", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/http.SyncRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entity.SyncResult"}},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "422": {"description": "Unprocessable Entity"},
                    "502": {"description": "Bad Gateway"}
                }
            }
        },
        "/profiles/{handle}/sync/async": {
            "post": {
                "description": "Publishes a sync job for the ingest worker and returns immediately.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["profiles"],
                "summary": "Queue a profile sync",
                "parameters": [
                    {"type": "string", "description": "Profile handle, with or without @", "name": "handle", "in": "path", "required": true},
                    {"description": "Sync options", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/http.SyncRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Sync job queue depth",
                "responses": {
                    "200": {"description": "OK"},
                    "502": {"description": "Bad Gateway"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/assets/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "Get a cached asset",
                "parameters": [
                    {"type": "string", "description": "Asset id or storage key (slashes allowed)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/assets/{id}/url": {
            "get": {
                "description": "Returns a presigned URL for a cached asset, its public URL when presigning fails, or the fallback URL unchanged.",
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "Resolve an asset to a fetchable URL",
                "parameters": [
                    {"type": "string", "description": "Asset id or storage key (slashes allowed)", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Original URL returned when the asset is not cached", "name": "fallback", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/assets/urls": {
            "post": {
                "description": "Batched form of GET /assets/{id}/url. The result is index-aligned with ids.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "Resolve many assets to fetchable URLs",
                "parameters": [
                    {"description": "Asset ids and fallback URLs", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.AssetURLsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/cache": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Clear the upstream response cache",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "http.SyncRequest": {
            "type": "object",
            "properties": {
                "force_recache": {"type": "boolean"},
                "max_pages": {"type": "integer", "minimum": 0, "maximum": 500}
            }
        },
        "http.AssetURLsRequest": {
            "type": "object",
            "required": ["ids"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "fallbacks": {"type": "array", "items": {"type": "string"}}
            }
        },
        "entity.SyncResult": {
            "type": "object",
            "properties": {
                "profile_id": {"type": "string"},
                "handle": {"type": "string"},
                "pages": {"type": "integer"},
                "posts_created": {"type": "integer"},
                "posts_updated": {"type": "integer"},
                "total_posts": {"type": "integer"},
                "media_errors": {"type": "integer"},
                "last_cursor": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Ingest Service API",
	Description:      "Administrative API of the TikTok ingestion and media cache service",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
