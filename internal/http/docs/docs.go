// Package docs holds the OpenAPI document served on /swagger. Regenerate it
// with `swag init -g cmd/docchat/main.go -o internal/http/docs` after
// changing handler annotations.
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
        "/uploads": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Upload a file to blob storage",
                "parameters": [
                    {"type": "file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "413": {"description": "Payload Too Large"}}
            }
        },
        "/documentations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["documentations"],
                "summary": "List documentations (paginated)",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}
            }
        },
        "/documentations/files": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["documentations"],
                "summary": "Create a files documentation",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "429": {"description": "Too Many Requests"}}
            }
        },
        "/documentations/web": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["documentations"],
                "summary": "Create a web documentation from a site map",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/documentations/{id}/pages/scan-all": {
            "post": {
                "produces": ["application/json"],
                "tags": ["documentations"],
                "summary": "Scan every unscanned link of a web documentation",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"202": {"description": "Accepted"}, "402": {"description": "Payment Required"}, "404": {"description": "Not Found"}}
            }
        },
        "/threads": {
            "get": {
                "produces": ["application/json"],
                "tags": ["threads"],
                "summary": "List threads (paginated)",
                "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["threads"],
                "summary": "Create a thread",
                "responses": {"201": {"description": "Created"}, "429": {"description": "Too Many Requests"}}
            }
        },
        "/threads/{id}/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "List messages of a thread (newest first)",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Send a message and start a streamed answer",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {"200": {"description": "Replayed"}, "202": {"description": "Accepted"}, "429": {"description": "Too Many Requests"}}
            }
        },
        "/streams/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["streams"],
                "summary": "Snapshot of a stream's fragments",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "after", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/streams/{id}/events": {
            "get": {
                "produces": ["text/event-stream"],
                "tags": ["streams"],
                "summary": "Follow a stream over Server-Sent Events",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Last-Event-ID", "in": "header"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "DocChat API",
	Description:      "Documentation ingestion and retrieval-augmented chat with resumable streams.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
