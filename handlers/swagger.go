package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the highscore API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>browserbird - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "browserbird-highscores", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Score": { "type": "object", "properties": { "timestamp": {"type":"string","format":"date-time"}, "value": {"type":"integer","format":"int32"}, "userId": {"type":"string"} } }
    }
  },
  "paths": {
    "/liveness": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "alive" } } } },
    "/jwt/{code}": {
      "post": {
        "summary": "Exchange a Discord authorization code for a bearer token",
        "parameters": [ { "name": "code", "in": "path", "required": true, "schema": {"type":"string"} } ],
        "responses": {
          "201": { "description": "token", "content": { "application/json": { "schema": {"type":"string"} } } },
          "401": { "description": "code rejected" },
          "424": { "description": "OAuth client not configured" }
        }
      }
    },
    "/score/{score}": {
      "post": {
        "summary": "Submit a score for the authenticated user",
        "security": [ { "bearer": [] } ],
        "parameters": [ { "name": "score", "in": "path", "required": true, "schema": {"type":"integer","format":"int32"} } ],
        "responses": {
          "201": { "description": "stored" },
          "400": { "description": "score is not a 32-bit integer" },
          "401": { "description": "missing, invalid or expired token" },
          "424": { "description": "signing secret or store not configured" },
          "500": { "description": "store write failed" }
        }
      }
    },
    "/scores": {
      "get": {
        "summary": "Ten best scores of the authenticated user, best first",
        "security": [ { "bearer": [] } ],
        "responses": {
          "200": { "description": "scores", "content": { "application/json": { "schema": {"type":"array","items":{"$ref":"#/components/schemas/Score"}} } } },
          "401": { "description": "missing, invalid or expired token" },
          "404": { "description": "store read failed" },
          "424": { "description": "signing secret or store not configured" }
        }
      }
    },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "exposition" } } } }
  }
}`
