// Package docs holds the Swagger document served under /swagger.
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
        "/auth/login": {
            "post": {
                "description": "Authenticate and issue an access token; the refresh token is set as an httpOnly cookie",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [
                    {
                        "description": "Login credentials",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/authentication.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.LoginResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "description": "Revoke the refresh token and clear the cookie; always succeeds",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Logout",
                "parameters": [
                    {
                        "description": "Refresh token when no cookie is sent",
                        "name": "payload",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/authentication.RefreshRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.SuccessResponse"}}
                }
            }
        },
        "/auth/logout-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Revoke every refresh session of the authenticated user",
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Logout everywhere",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.SuccessResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Profile of the user identified by the bearer access token",
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/user.Profile"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "description": "Exchange the refresh token (cookie, or body as fallback) for a new access token and rotate it",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Refresh",
                "parameters": [
                    {
                        "description": "Refresh token when no cookie is sent",
                        "name": "payload",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/authentication.RefreshRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.AccessTokenResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Create an account with the USER role",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register",
                "parameters": [
                    {
                        "description": "Account details",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/authentication.RegisterRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/authentication.RegisterResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Get user by ID",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/user.Profile"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["users"],
                "summary": "Delete user",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/users/{id}/active": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Activate or deactivate a user",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Active flag",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/user.UpdateActiveRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/user.Profile"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/users/{id}/password": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Replaces the password and revokes every refresh session of the user",
                "consumes": ["application/json"],
                "tags": ["users"],
                "summary": "Reset a user's password",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "New password",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/user.UpdatePasswordRequest"}
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        },
        "/users/{id}/role": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Change a user's role",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "New role",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/user.UpdateRoleRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/user.Profile"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/apierror.Body"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/apierror.Body"}}
                }
            }
        }
    },
    "definitions": {
        "apierror.Body": {
            "type": "object",
            "properties": {
                "details": {"type": "array", "items": {"$ref": "#/definitions/apierror.FieldError"}},
                "error": {"type": "string"}
            }
        },
        "apierror.FieldError": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "authentication.AccessTokenResponse": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"}
            }
        },
        "authentication.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "authentication.LoginResponse": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"},
                "user": {"$ref": "#/definitions/user.Profile"}
            }
        },
        "authentication.RefreshRequest": {
            "type": "object",
            "properties": {
                "refreshToken": {"type": "string"}
            }
        },
        "authentication.RegisterRequest": {
            "type": "object",
            "required": ["email", "name", "password"],
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string", "maxLength": 100},
                "password": {"type": "string", "maxLength": 72, "minLength": 8}
            }
        },
        "authentication.RegisterResponse": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "email": {"type": "string"},
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "role": {"$ref": "#/definitions/user.Role"}
            }
        },
        "authentication.SuccessResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"}
            }
        },
        "user.Profile": {
            "description": "public user profile (never includes the password hash)",
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "email": {"type": "string"},
                "emailVerified": {"type": "boolean"},
                "id": {"type": "integer"},
                "isActive": {"type": "boolean"},
                "lastLoginAt": {"type": "string"},
                "name": {"type": "string"},
                "role": {"$ref": "#/definitions/user.Role"},
                "updatedAt": {"type": "string"}
            }
        },
        "user.Role": {
            "description": "user role: ADMIN, MANAGER, TECHNICIAN or USER",
            "type": "string",
            "enum": ["ADMIN", "MANAGER", "TECHNICIAN", "USER"],
            "x-enum-varnames": ["RoleAdmin", "RoleManager", "RoleTechnician", "RoleUser"]
        },
        "user.UpdateActiveRequest": {
            "description": "payload to toggle the active flag",
            "type": "object",
            "required": ["active"],
            "properties": {
                "active": {"type": "boolean"}
            }
        },
        "user.UpdatePasswordRequest": {
            "description": "payload to change password",
            "type": "object",
            "required": ["password"],
            "properties": {
                "password": {"type": "string", "maxLength": 72, "minLength": 8}
            }
        },
        "user.UpdateRoleRequest": {
            "description": "payload to change a role",
            "type": "object",
            "required": ["role"],
            "properties": {
                "role": {"type": "string", "enum": ["ADMIN", "MANAGER", "TECHNICIAN", "USER"]}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Calibration Auth Service API",
	Description:      "Credential issuance and session lifecycle for the calibration platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
