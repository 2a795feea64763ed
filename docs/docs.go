// Package docs holds the OpenAPI description of the worker API, served by gin-swagger.
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
        "/": {
            "get": {
                "description": "Get basic worker information and capabilities",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Worker information",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Check if the worker and its dependencies are healthy",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "description": "Frame, threat and alert counters of the running pipeline",
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "Pipeline status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StatusResponse"}}
                }
            }
        },
        "/tracks": {
            "get": {
                "description": "Tracker state and confirmed detections of the last processed frame",
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "Live tracks",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        },
        "/alerts": {
            "get": {
                "description": "Most recent alert dispatch attempts, newest first",
                "produces": ["application/json"],
                "tags": ["alerts"],
                "summary": "Alert history",
                "parameters": [
                    {"type": "integer", "default": 50, "description": "Maximum number of records", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/stream": {
            "get": {
                "description": "Annotated frames as multipart/x-mixed-replace MJPEG",
                "produces": ["multipart/x-mixed-replace"],
                "tags": ["stream"],
                "summary": "Live stream",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/snapshot": {
            "get": {
                "description": "The last annotated frame as JPEG",
                "produces": ["image/jpeg"],
                "tags": ["stream"],
                "summary": "Latest frame",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/system/stats": {
            "get": {
                "description": "Get process statistics of the worker",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Get system stats",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "limit must be a positive integer"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "worker_id": {"type": "string", "example": "guardiq-1"},
                "components": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "handlers.StatusResponse": {
            "type": "object",
            "properties": {
                "worker_id": {"type": "string", "example": "guardiq-1"},
                "cooldown_seconds": {"type": "number", "example": 5},
                "stats": {"type": "object"}
            }
        },
        "handlers.WorkerInfoResponse": {
            "type": "object",
            "properties": {
                "worker_id": {"type": "string", "example": "guardiq-1"},
                "status": {"type": "string", "example": "running"},
                "version": {"type": "string", "example": "1.0.0"},
                "capabilities": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "GuardIQ Worker API",
	Description:      "Bank surveillance worker: object tracking, threat evaluation and rate-limited alerting",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
