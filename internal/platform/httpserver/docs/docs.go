// Package docs registers the OpenAPI document served under /swagger/.
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
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/protocol-types/{type_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["protocols"],
                "summary": "Get a protocol type with its phases",
                "parameters": [
                    {"type": "string", "description": "Protocol type ID", "name": "type_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ProtocolTypeResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/protocols/{protocol_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["protocols"],
                "summary": "Get a protocol and its current phase",
                "parameters": [
                    {"type": "string", "description": "Protocol ID", "name": "protocol_id", "in": "path", "required": true},
                    {"type": "string", "description": "Restrict to a meeting", "name": "meeting_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ProtocolResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/protocols/{protocol_id}/items": {
            "get": {
                "produces": ["application/json"],
                "tags": ["protocols"],
                "summary": "List a protocol's items in creation order",
                "parameters": [
                    {"type": "string", "description": "Protocol ID", "name": "protocol_id", "in": "path", "required": true},
                    {"type": "string", "description": "Restrict to a meeting", "name": "meeting_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ItemsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/protocols/{protocol_id}/results": {
            "get": {
                "produces": ["application/json"],
                "tags": ["protocols"],
                "summary": "Review results computed with the protocol type's strategy",
                "parameters": [
                    {"type": "string", "description": "Protocol ID", "name": "protocol_id", "in": "path", "required": true},
                    {"type": "string", "description": "Restrict to a meeting", "name": "meeting_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ReviewResultsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "PhaseResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "index": {"type": "integer"},
                "kind": {"type": "string"},
                "is_collective": {"type": "boolean"},
                "data": {"type": "object"}
            }
        },
        "ProtocolTypeResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "strategy": {"type": "string"},
                "phases": {"type": "array", "items": {"$ref": "#/definitions/PhaseResponse"}}
            }
        },
        "ProtocolResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "meeting_id": {"type": "string"},
                "type_id": {"type": "string"},
                "creator_id": {"type": "string"},
                "title": {"type": "string"},
                "current_phase_index": {"type": "integer"},
                "current_phase": {"$ref": "#/definitions/PhaseResponse"},
                "is_completed": {"type": "boolean"},
                "ready_for_next_phase": {"type": "boolean"},
                "last_phase_change_date": {"type": "string", "format": "date-time"},
                "data": {"type": "object"}
            }
        },
        "ItemResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "creator_id": {"type": "string"},
                "protocol_id": {"type": "string"},
                "protocol_phase_id": {"type": "string"},
                "text": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "data": {"type": "object"},
                "parent_id": {"type": "string"},
                "is_forcefully_prioritized": {"type": "boolean"},
                "is_forcefully_deprioritized": {"type": "boolean"},
                "vote_count": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "ItemsResponse": {
            "type": "object",
            "properties": {
                "protocol_id": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/ItemResponse"}}
            }
        },
        "ResultRowResponse": {
            "allOf": [
                {"$ref": "#/definitions/ItemResponse"},
                {
                    "type": "object",
                    "properties": {
                        "is_prioritized": {"type": "boolean"},
                        "is_reprioritized": {"type": "boolean"},
                        "is_deprioritized": {"type": "boolean"},
                        "bucket": {"type": "string"}
                    }
                }
            ]
        },
        "ReviewResultsResponse": {
            "type": "object",
            "properties": {
                "protocol_id": {"type": "string"},
                "strategy": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/ResultRowResponse"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Parley API",
	Description:      "Read API of the Parley protocol engine. Mutations travel over the meeting websocket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
