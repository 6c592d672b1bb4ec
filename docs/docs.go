// Package docs holds the OpenAPI description served at /swagger/index.html.
// Regenerate with: swag init -g cmd/uploader-service/main.go -o docs
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
		"/messages": {
			"get": {
				"description": "List records by status and age, oldest update first. older_than takes a Go duration such as 10m or an RFC 3339 instant",
				"produces": [
					"application/json"
				],
				"tags": [
					"messages"
				],
				"summary": "List message records",
				"parameters": [
					{
						"enum": [
							"SENT_TO_ROUTER",
							"RECEIVED",
							"DELIVERED"
						],
						"type": "string",
						"description": "Status filter",
						"name": "status",
						"in": "query"
					},
					{
						"type": "string",
						"description": "Only records last updated before this age or instant",
						"name": "older_than",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page size (default 100, max 1000)",
						"name": "limit",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/query.ListResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"500": {
						"description": "Internal Server Error",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					}
				}
			}
		},
		"/messages/{businessId}": {
			"get": {
				"description": "Get the delivery record for one business id",
				"produces": [
					"application/json"
				],
				"tags": [
					"messages"
				],
				"summary": "Get a message record",
				"parameters": [
					{
						"type": "string",
						"description": "Business id",
						"name": "businessId",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/record.MessageRecord"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"500": {
						"description": "Internal Server Error",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					}
				}
			}
		},
		"/messages/{businessId}/audit": {
			"get": {
				"description": "List the status decisions recorded for one business id, oldest first",
				"produces": [
					"application/json"
				],
				"tags": [
					"messages"
				],
				"summary": "Reconciliation history",
				"parameters": [
					{
						"type": "string",
						"description": "Business id",
						"name": "businessId",
						"in": "path",
						"required": true
					},
					{
						"type": "integer",
						"description": "Maximum entries (default 100)",
						"name": "limit",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"$ref": "#/definitions/reconcile.AuditEntry"
							}
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"500": {
						"description": "Internal Server Error",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					}
				}
			}
		},
		"/messages/{businessId}/content": {
			"get": {
				"description": "Stream the uploaded payload file for one business id",
				"produces": [
					"application/octet-stream"
				],
				"tags": [
					"messages"
				],
				"summary": "Download the stored file",
				"parameters": [
					{
						"type": "string",
						"description": "Business id",
						"name": "businessId",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "file"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					}
				}
			}
		},
		"/stats": {
			"get": {
				"description": "Pending and delivered counts and mean upload to acknowledgment latency",
				"produces": [
					"application/json"
				],
				"tags": [
					"stats"
				],
				"summary": "Delivery statistics",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/record.Stats"
						}
					},
					"500": {
						"description": "Internal Server Error",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					}
				}
			}
		},
		"/upload": {
			"post": {
				"description": "Store the file, record it as SENT_TO_ROUTER and publish an upload event. The business id is taken from the filename",
				"consumes": [
					"multipart/form-data"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"uploads"
				],
				"summary": "Submit a payment file",
				"parameters": [
					{
						"type": "file",
						"description": "Payment file, e.g. 7654321_sample_pain001.xml",
						"name": "file",
						"in": "formData",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/ingress.UploadResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"413": {
						"description": "Request Entity Too Large",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"429": {
						"description": "Too Many Requests",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"502": {
						"description": "Bad Gateway",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/errors.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"errors.ErrorResponse": {
			"type": "object",
			"properties": {
				"details": {
					"type": "object",
					"additionalProperties": true
				},
				"error": {
					"type": "string"
				},
				"error_code": {
					"type": "string"
				}
			}
		},
		"ingress.UploadResponse": {
			"type": "object",
			"properties": {
				"blob_ref": {
					"type": "string"
				},
				"business_id": {
					"type": "string"
				},
				"status": {
					"type": "string"
				}
			}
		},
		"query.ListResponse": {
			"type": "object",
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/record.MessageRecord"
					}
				},
				"total": {
					"type": "integer"
				}
			}
		},
		"reconcile.AuditEntry": {
			"type": "object",
			"properties": {
				"business_id": {
					"type": "string"
				},
				"decided_at": {
					"type": "string"
				},
				"event_id": {
					"type": "string"
				},
				"from": {
					"$ref": "#/definitions/record.Status"
				},
				"outcome": {
					"type": "string"
				},
				"reason": {
					"type": "string"
				},
				"service": {
					"type": "string"
				},
				"target": {
					"$ref": "#/definitions/record.Status"
				}
			}
		},
		"record.MessageRecord": {
			"type": "object",
			"properties": {
				"blob_ref": {
					"type": "string"
				},
				"business_id": {
					"type": "string"
				},
				"created_at": {
					"type": "string"
				},
				"id": {
					"type": "integer"
				},
				"status": {
					"$ref": "#/definitions/record.Status"
				},
				"updated_at": {
					"type": "string"
				}
			}
		},
		"record.Stats": {
			"type": "object",
			"properties": {
				"avg_delivery_latency_ms": {
					"type": "number"
				},
				"delivered": {
					"type": "integer"
				},
				"delivered_today": {
					"type": "integer"
				},
				"pending": {
					"type": "integer"
				}
			}
		},
		"record.Status": {
			"type": "string",
			"enum": [
				"SENT_TO_ROUTER",
				"RECEIVED",
				"DELIVERED"
			],
			"x-enum-varnames": [
				"StatusSentToRouter",
				"StatusReceived",
				"StatusDelivered"
			]
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "localhost:8080",
	BasePath:		 "/api",
	Schemes:		  []string{"http", "https"},
	Title:			"finpasser API",
	Description:	  "Payment file upload, delivery tracking and status queries for the uploader and router services",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
