package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Room Scheduler API",
        "description": "Room booking and schedule display service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Departments", "description": "Departments owning rooms"},
        {"name": "Rooms", "description": "Bookable rooms, availability and QR codes"},
        {"name": "Schedules", "description": "Room reservations"},
        {"name": "Exports", "description": "Asynchronous room schedule exports"}
    ],
    "paths": {
        "/departments": {
            "get": {
                "tags": ["Departments"],
                "summary": "List departments",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Departments"],
                "summary": "Create department",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DepartmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Code already used", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/departments/{id}": {
            "get": {
                "tags": ["Departments"],
                "summary": "Get department",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Departments"],
                "summary": "Update department",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DepartmentRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "delete": {
                "tags": ["Departments"],
                "summary": "Delete department and its rooms",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/rooms": {
            "get": {
                "tags": ["Rooms"],
                "summary": "List active rooms",
                "parameters": [
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Rooms"],
                "summary": "Create room",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RoomRequest"}}
                ],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Number already used in department"}}
            }
        },
        "/rooms/{id}": {
            "get": {
                "tags": ["Rooms"],
                "summary": "Get room with QR code and upcoming reservations",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Rooms"],
                "summary": "Update room",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RoomRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "delete": {
                "tags": ["Rooms"],
                "summary": "Delete room and its reservations",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/rooms/{id}/availability": {
            "get": {
                "tags": ["Rooms"],
                "summary": "Current and next reservation for today",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Room missing or inactive"}}
            }
        },
        "/rooms/{id}/schedule": {
            "get": {
                "tags": ["Rooms"],
                "summary": "Reservations grouped by date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "start_date", "in": "query", "type": "string", "format": "date"},
                    {"name": "end_date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/rooms/{id}/qr-code": {
            "get": {
                "tags": ["Rooms"],
                "summary": "PNG QR code linking to the room display",
                "produces": ["image/png"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "PNG image"}, "404": {"description": "Not found"}}
            }
        },
        "/rooms/{id}/schedule/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a schedule export",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleExportRequest"}}
                ],
                "responses": {"202": {"description": "Accepted"}, "503": {"description": "Queue unavailable"}}
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export job status",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export through its signed token",
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "File"}, "403": {"description": "Invalid or expired token"}}
            }
        },
        "/schedules": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List reservations",
                "parameters": [
                    {"name": "room", "in": "query", "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Schedules"],
                "summary": "Book a room",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReservationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid interval or status"},
                    "409": {"description": "Overlaps an active reservation"}
                }
            }
        },
        "/schedules/today": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Today's reservations across rooms",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/schedules/status": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Set the status of many reservations",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown status"}}
            }
        },
        "/schedules/{id}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Get reservation",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Schedules"],
                "summary": "Replace reservation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReservationRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Overlaps an active reservation"}}
            },
            "patch": {
                "tags": ["Schedules"],
                "summary": "Partially update reservation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReservationRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Overlaps an active reservation"}}
            },
            "delete": {
                "tags": ["Schedules"],
                "summary": "Delete reservation",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/schedules/{id}/status": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Set reservation status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StatusUpdateRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown status"}}
            }
        }
    },
    "definitions": {
        "DepartmentRequest": {
            "type": "object",
            "required": ["name", "code"],
            "properties": {
                "name": {"type": "string"},
                "code": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "RoomRequest": {
            "type": "object",
            "required": ["name", "number", "department_id", "capacity"],
            "properties": {
                "name": {"type": "string"},
                "number": {"type": "string"},
                "department_id": {"type": "string"},
                "room_type": {"type": "string", "enum": ["classroom", "laboratory", "auditorium", "conference", "office", "other"]},
                "capacity": {"type": "integer"},
                "equipment": {"type": "string"},
                "floor": {"type": "string"},
                "building": {"type": "string"},
                "is_active": {"type": "boolean"}
            }
        },
        "ReservationRequest": {
            "type": "object",
            "required": ["room_id", "title", "date", "start_time", "end_time"],
            "properties": {
                "room_id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "instructor": {"type": "string"},
                "course_code": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "start_time": {"type": "string", "example": "09:00"},
                "end_time": {"type": "string", "example": "10:30"},
                "status": {"type": "string", "enum": ["scheduled", "in_progress", "completed", "cancelled"]}
            }
        },
        "StatusUpdateRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["scheduled", "in_progress", "completed", "cancelled"]}
            }
        },
        "BulkStatusRequest": {
            "type": "object",
            "required": ["ids", "status"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "enum": ["scheduled", "in_progress", "completed", "cancelled"]}
            }
        },
        "ScheduleExportRequest": {
            "type": "object",
            "required": ["format"],
            "properties": {
                "start_date": {"type": "string", "format": "date"},
                "end_date": {"type": "string", "format": "date"},
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "include_inactive": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
