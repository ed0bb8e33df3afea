//go:build swagger

package httpapi

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/rkllm_chat": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json", "text/event-stream"],
                "summary": "Chat with the engine",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ChatRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ChatCompletion"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/models": {"get": {"produces": ["application/json"], "summary": "List models", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}}},
        "/status": {"get": {"produces": ["application/json"], "summary": "Engine status", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}}
    },
    "definitions": {
        "types.Message": {"type": "object", "properties": {"role": {"type": "string"}, "content": {"type": "string"}}},
        "types.ChatRequest": {"type": "object", "properties": {"messages": {"type": "array", "items": {"$ref": "#/definitions/types.Message"}}, "stream": {"type": "boolean"}}},
        "types.CompletionChoice": {"type": "object", "properties": {"index": {"type": "integer"}, "message": {"$ref": "#/definitions/types.Message"}, "finish_reason": {"type": "string"}}},
        "types.ChatCompletion": {"type": "object", "properties": {"id": {"type": "string"}, "object": {"type": "string"}, "created": {"type": "integer"}, "choices": {"type": "array", "items": {"$ref": "#/definitions/types.CompletionChoice"}}}},
        "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}},
        "types.Model": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "backend": {"type": "string"}, "loaded": {"type": "boolean"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.StatusResponse": {"type": "object", "properties": {"state": {"type": "string"}, "backend": {"type": "string"}, "model": {"type": "string"}, "busy": {"type": "boolean"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "rkllmd API",
	Description:      "HTTP chat API over a single RKLLM engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
