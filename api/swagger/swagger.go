package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Equipment Loan API",
        "description": "Borrow-request lifecycle and cross-building allocation service",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Requests", "description": "Borrow-request lifecycle"},
        {"name": "Response Forms", "description": "No-login building response forms"},
        {"name": "Allocations", "description": "Cross-building allocation plans"},
        {"name": "Slips", "description": "Borrow-slip downloads"},
        {"name": "Catalog", "description": "Buildings and equipment reference data"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/api/v1/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List borrow requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma-separated status filter"},
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string", "format": "date"},
                    {"name": "dateTo", "in": "query", "type": "string", "format": "date"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Submit a borrow request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get a borrow request with items, responses and allocations",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}/approve": {
            "post": {
                "tags": ["Requests"],
                "summary": "Approve a pending request and open the building response round",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or concurrent modification", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}/reject": {
            "post": {
                "tags": ["Requests"],
                "summary": "Reject a pending request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}/close": {
            "post": {
                "tags": ["Requests"],
                "summary": "Close a request administratively",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/APIError"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}/allocations": {
            "post": {
                "tags": ["Allocations"],
                "summary": "Validate and commit an allocation plan, completing the request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AllocationPlanInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or concurrent modification", "schema": {"$ref": "#/definitions/APIError"}},
                    "422": {"description": "Plan validation failure", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}/responses": {
            "get": {
                "tags": ["Requests"],
                "summary": "List building responses with the aggregated availability view",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/requests/{id}/slip": {
            "get": {
                "tags": ["Slips"],
                "summary": "Download the borrow slip for a completed request",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF slip"},
                    "409": {"description": "Request not completed", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/requests/{id}/resend-email": {
            "post": {
                "tags": ["Slips"],
                "summary": "Resend the completion email with the slip link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/requests/export": {
            "get": {
                "tags": ["Requests"],
                "summary": "Export requests as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string", "format": "date"},
                    {"name": "dateTo", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "CSV export"}
                }
            }
        },
        "/api/v1/response-forms/{secret}": {
            "get": {
                "tags": ["Response Forms"],
                "summary": "Fetch the response form for a building token (no login)",
                "parameters": [
                    {"name": "secret", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown token", "schema": {"$ref": "#/definitions/APIError"}},
                    "409": {"description": "Token already used", "schema": {"$ref": "#/definitions/APIError"}},
                    "410": {"description": "Token expired", "schema": {"$ref": "#/definitions/APIError"}}
                }
            },
            "post": {
                "tags": ["Response Forms"],
                "summary": "Submit building availability (consumes the token)",
                "parameters": [
                    {"name": "secret", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResponseFormInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown token", "schema": {"$ref": "#/definitions/APIError"}},
                    "409": {"description": "Token already used or window closed", "schema": {"$ref": "#/definitions/APIError"}},
                    "410": {"description": "Token expired", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/slips/{token}": {
            "get": {
                "tags": ["Slips"],
                "summary": "Download a borrow slip via a signed link (no login)",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF slip"},
                    "410": {"description": "Link expired", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/v1/buildings": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List active buildings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/equipment": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List enabled equipment types",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateRequestInput": {
            "type": "object",
            "required": ["purpose", "neededBy", "items"],
            "properties": {
                "purpose": {"type": "string"},
                "neededBy": {"type": "string", "format": "date"},
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "required": ["equipmentId", "quantity"],
                        "properties": {
                            "equipmentId": {"type": "string"},
                            "quantity": {"type": "integer", "minimum": 1}
                        }
                    }
                }
            }
        },
        "DecisionInput": {
            "type": "object",
            "properties": {
                "note": {"type": "string"}
            }
        },
        "AllocationPlanInput": {
            "type": "object",
            "required": ["allocations"],
            "properties": {
                "note": {"type": "string"},
                "allocations": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "required": ["equipmentId", "buildingId", "quantity"],
                        "properties": {
                            "equipmentId": {"type": "string"},
                            "buildingId": {"type": "string"},
                            "quantity": {"type": "integer", "minimum": 1}
                        }
                    }
                }
            }
        },
        "ResponseFormInput": {
            "type": "object",
            "required": ["items"],
            "properties": {
                "note": {"type": "string"},
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "required": ["equipmentId", "availableQuantity"],
                        "properties": {
                            "equipmentId": {"type": "string"},
                            "availableQuantity": {"type": "integer", "minimum": 0}
                        }
                    }
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "total": {"type": "integer"},
                "totalPages": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
