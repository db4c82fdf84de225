// Package docs registers the OpenAPI document served at /swagger/*any.
//
// The resource endpoints are generic, so their paths are generated from the
// resource descriptors instead of from per-handler annotations.
package docs

import (
	"encoding/json"

	"github.com/swaggo/swag"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
)

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Restaurant Back-Office API",
	Description:      "CRUD, search and pagination over the restaurant back-office resources.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  buildTemplate(domain.Descriptors()),
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

type obj = map[string]any

func param(name, in, typ, desc string, required bool) obj {
	p := obj{"name": name, "in": in, "type": typ, "description": desc, "required": required}
	return p
}

func ref(name string) obj { return obj{"$ref": "#/definitions/" + name} }

func responses(success int, extra ...int) obj {
	out := obj{}
	switch success {
	case 200:
		out["200"] = obj{"description": "OK", "schema": ref("Envelope")}
	case 201:
		out["201"] = obj{"description": "Created", "schema": ref("Envelope")}
	}
	for _, code := range extra {
		out[itoa(code)] = obj{"description": descFor(code), "schema": ref("ErrorResponse")}
	}
	return out
}

func descFor(code int) string {
	switch code {
	case 400:
		return "Bad request"
	case 404:
		return "Not found"
	case 422:
		return "Validation failed"
	case 429:
		return "Rate limited"
	default:
		return "Internal error"
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func listParams(d domain.Descriptor) []obj {
	sort := param(api.ParamSortBy, "query", "string", "Sort field", false)
	sort["enum"] = d.SortFields()
	order := param(api.ParamSortOrder, "query", "string", "Sort order", false)
	order["enum"] = []string{api.SortAsc, api.SortDesc}
	out := []obj{
		param(api.ParamPage, "query", "integer", "Page number (1-based)", false),
		param(api.ParamLimit, "query", "integer", "Page size", false),
		param(api.ParamTerm, "query", "string", "Search term", false),
		sort, order,
	}
	for _, f := range d.FilterParams() {
		typ := "string"
		if d.Filters[f].Kind == domain.FilterBool {
			typ = "boolean"
		}
		out = append(out, param(f, "query", typ, "Filter", false))
	}
	return out
}

func buildTemplate(descs []domain.Descriptor) string {
	idParam := param("id", "path", "string", "Record ID", true)
	bodyParam := obj{"name": "body", "in": "body", "required": true, "schema": obj{"type": "object"}}
	idemParam := param(api.HeaderIdempotencyKey, "header", "string", "Key for safe create retries", false)

	paths := obj{}
	for _, d := range descs {
		tag := []string{d.Name}
		paths["/"+d.Name] = obj{
			"get": obj{
				"tags": tag, "summary": "List " + d.Name, "produces": []string{"application/json"},
				"parameters": listParams(d),
				"responses":  responses(200, 400, 500),
			},
			"post": obj{
				"tags": tag, "summary": "Create one of " + d.Name, "consumes": []string{"application/json"},
				"parameters": []obj{idemParam, bodyParam},
				"responses":  responses(201, 400, 422, 429),
			},
		}
		paths["/"+d.Name+"/{id}"] = obj{
			"get":    obj{"tags": tag, "summary": "Get", "parameters": []obj{idParam}, "responses": responses(200, 404)},
			"patch":  obj{"tags": tag, "summary": "Merge update", "parameters": []obj{idParam, bodyParam}, "responses": responses(200, 404, 422)},
			"put":    obj{"tags": tag, "summary": "Merge update", "parameters": []obj{idParam, bodyParam}, "responses": responses(200, 404, 422)},
			"delete": obj{"tags": tag, "summary": "Delete", "parameters": []obj{idParam}, "responses": responses(200, 404)},
		}
	}

	doc := obj{
		"swagger": "2.0",
		"info": obj{
			"title":       "{{.Title}}",
			"description": "{{escape .Description}}",
			"version":     "{{.Version}}",
		},
		"host":     "{{.Host}}",
		"basePath": "{{.BasePath}}",
		"paths":    paths,
		"definitions": obj{
			"Envelope": obj{"type": "object", "properties": obj{
				"data": obj{"type": "object"},
				"meta": obj{"type": "object", "properties": obj{
					"total": obj{"type": "integer"}, "page": obj{"type": "integer"}, "limit": obj{"type": "integer"},
				}},
			}},
			"ErrorResponse": obj{"type": "object", "properties": obj{
				"request_id": obj{"type": "string"},
				"code":       obj{"type": "string"},
				"message":    obj{"type": "string"},
				"fields":     obj{"type": "object", "additionalProperties": obj{"type": "string"}},
			}},
		},
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(raw)
}
