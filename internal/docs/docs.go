// Package docs registers the bridge's OpenAPI document with swag so
// gin-swagger can serve it at /swagger/index.html.
//
// Regenerate the template with `swag init -g internal/http/router.go -o internal/docs`
// after changing handler annotations.
package docs

import (
	"sync"

	"github.com/swaggo/swag"
)

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
        "/session/login": {"post": {"tags": ["Session"], "summary": "Sign in", "operationId": "login",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/session/register": {"post": {"tags": ["Session"], "summary": "Create an account", "operationId": "register",
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}}}}},
        "/session/password-reset": {"post": {"tags": ["Session"], "summary": "Request a password reset", "operationId": "requestPasswordReset",
            "responses": {"202": {"description": "Accepted"}}}},
        "/session": {"get": {"tags": ["Session"], "summary": "Current session", "operationId": "getSession",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "401": {"description": "Sign in again", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/session/profile": {"patch": {"tags": ["Session"], "summary": "Update the profile", "operationId": "updateProfile",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}}}}},
        "/session/logout": {"post": {"tags": ["Session"], "summary": "Sign out", "operationId": "logout",
            "responses": {"204": {"description": "No Content"}}}},
        "/session/account": {"delete": {"tags": ["Session"], "summary": "Delete the account", "operationId": "deleteAccount",
            "responses": {"204": {"description": "No Content"}}}},
        "/events": {"get": {"tags": ["Catalog"], "summary": "List events", "operationId": "listEvents",
            "parameters": [{"type": "integer", "default": 1, "minimum": 1, "name": "page", "in": "query"}],
            "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"},
                "502": {"description": "Café service unreachable and nothing cached", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/cafes": {"get": {"tags": ["Catalog"], "summary": "List cafés", "operationId": "listCafes",
            "parameters": [{"type": "integer", "default": 1, "minimum": 1, "name": "page", "in": "query"}],
            "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}}},
        "/cafes/{id}": {"get": {"tags": ["Catalog"], "summary": "Café detail", "operationId": "getCafe",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Café not found"}}}},
        "/cafes/{id}/menu": {"get": {"tags": ["Catalog"], "summary": "Café menu", "operationId": "getMenu",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true},
                {"type": "string", "description": "Free-text filter; results are ranked by relevance", "name": "q", "in": "query"}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "Café not found"}}}},
        "/favorites": {"get": {"tags": ["Favorites"], "summary": "Favorites snapshot", "operationId": "getFavorites",
            "responses": {"200": {"description": "OK"}}}},
        "/favorites/sync": {"post": {"tags": ["Favorites"], "summary": "Reconcile favorites", "operationId": "syncFavorites",
            "responses": {"200": {"description": "OK"}, "502": {"description": "Café service unreachable"}}}},
        "/favorites/articles/toggle": {"post": {"tags": ["Favorites"], "summary": "Toggle an article favorite", "operationId": "toggleArticleFavorite",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ToggleResponse"}}}}},
        "/favorites/cafes/{id}/toggle": {"post": {"tags": ["Favorites"], "summary": "Toggle a café favorite", "operationId": "toggleCafeFavorite",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ToggleResponse"}}}}},
        "/cart": {
            "get": {"tags": ["Cart"], "summary": "Cart contents", "operationId": "getCart", "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["Cart"], "summary": "Empty the cart", "operationId": "clearCart", "responses": {"204": {"description": "No Content"}}}},
        "/cart/items": {"post": {"tags": ["Cart"], "summary": "Add an item", "operationId": "addCartItem",
            "parameters": [{"type": "string", "name": "Idempotency-Key", "in": "header"}],
            "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid item"}}}},
        "/cart/items/{hash}": {
            "patch": {"tags": ["Cart"], "summary": "Adjust a line's quantity", "operationId": "updateCartItem",
                "parameters": [{"type": "string", "name": "hash", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Line not found"}}},
            "delete": {"tags": ["Cart"], "summary": "Remove a line", "operationId": "removeCartItem",
                "parameters": [{"type": "string", "name": "hash", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Line not found"}}}},
        "/location": {
            "get": {"tags": ["Location"], "summary": "Current position", "operationId": "getLocation", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Location"], "summary": "Report a device fix", "operationId": "reportLocation",
                "responses": {"204": {"description": "No Content"}, "400": {"description": "Bad request"}}}}
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {
            "request_id": {"type": "string"}, "code": {"type": "string"}, "message": {"type": "string"}}},
        "handlers.LoginRequest": {"type": "object", "required": ["username", "password"], "properties": {
            "username": {"type": "string"}, "password": {"type": "string"}}},
        "handlers.SessionResponse": {"type": "object", "properties": {
            "state": {"type": "string"}, "profile": {"type": "object"}}},
        "handlers.ToggleResponse": {"type": "object", "properties": {"favorite": {"type": "boolean"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "Campus Café Sync bridge",
	Description:      "Local HTTP bridge over the campus café client sync core.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

var registerOnce sync.Once

// Register publishes the document with basePath as its base path. swag keeps
// a pointer to SwaggerInfo, so later calls only update the base path.
func Register(basePath string) {
	if basePath != "" {
		SwaggerInfo.BasePath = basePath
	}
	registerOnce.Do(func() { swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo) })
}
