package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func schemaRef(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func jsonResponse(description, schema string) object {
	return object{
		"description": description,
		"content":     jsonContent(schemaRef(schema)),
	}
}

func queryParam(name, description string, required bool) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      object{"type": "string"},
	}
}

func gradeCounts() object {
	counts := object{}
	for _, g := range []string{"A", "B", "C", "S", "F"} {
		counts[g] = object{"type": "integer"}
	}
	return object{"type": "object", "properties": counts}
}

func nullableGrade() object {
	return object{"type": "string", "enum": []interface{}{"A", "B", "C", "S", "F", nil}, "nullable": true}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Results Portal API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	errorResponses := func(codes ...string) object {
		out := object{}
		descriptions := map[string]string{
			"400": "Missing or malformed parameters",
			"401": "Invalid username or password",
			"404": "No data loaded or no matching result",
			"413": "Upload exceeds the configured size limit",
			"422": "File is not a valid results workbook",
			"503": "Results file could not be read or saved",
		}
		for _, code := range codes {
			out[code] = jsonResponse(descriptions[code], "Error")
		}
		return out
	}
	with := func(base object, extra object) object {
		for k, v := range extra {
			base[k] = v
		}
		return base
	}

	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Exam Results Portal API",
			"description": "Publishes examination results from an uploaded Excel workbook. Students search by zone and index number.",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"components": object{
			"securitySchemes": object{
				"adminBasic": object{"type": "http", "scheme": "basic"},
			},
			"schemas": object{
				"Error": object{
					"type": "object",
					"properties": object{
						"error":    object{"type": "string"},
						"category": object{"type": "string", "enum": []string{"config", "auth", "format", "io", "no_data", "not_found", "internal"}},
						"message":  object{"type": "string"},
						"code":     object{"type": "integer"},
					},
				},
				"SearchResult": object{
					"type": "object",
					"properties": object{
						"index_number":   object{"type": "string"},
						"name":           object{"type": "string"},
						"zone":           object{"type": "string"},
						"stream":         object{"type": "string", "enum": []string{"Physical Science", "Biological Science"}},
						"school":         object{"type": "string"},
						"combined_maths": nullableGrade(),
						"biology":        nullableGrade(),
						"chemistry":      nullableGrade(),
						"physics":        nullableGrade(),
						"z_score":        object{"type": "number", "nullable": true},
						"rank":           object{"type": "integer", "nullable": true},
					},
				},
				"GradeSummary": object{
					"type": "object",
					"properties": object{
						"Chemistry":      gradeCounts(),
						"Physics":        gradeCounts(),
						"Combined_Maths": gradeCounts(),
						"Biology":        gradeCounts(),
					},
				},
				"Status": object{
					"type": "object",
					"properties": object{
						"has_data":     object{"type": "boolean"},
						"last_updated": object{"type": "string", "format": "date-time", "nullable": true},
						"loaded_at":    object{"type": "string", "format": "date-time", "nullable": true},
						"record_count": object{"type": "integer"},
						"zone_count":   object{"type": "integer"},
						"version":      object{"type": "integer"},
					},
				},
			},
		},
		"paths": object{
			"/api/admin/login": object{
				"post": object{
					"summary": "Verify administrator credentials",
					"requestBody": object{
						"required": true,
						"content": jsonContent(object{
							"type": "object",
							"properties": object{
								"username": object{"type": "string"},
								"password": object{"type": "string"},
							},
						}),
					},
					"responses": with(object{
						"200": object{"description": "Credentials accepted"},
					}, errorResponses("400", "401")),
				},
			},
			"/api/admin/upload": object{
				"post": object{
					"summary":     "Upload a results workbook",
					"description": "Replaces the published results. The workbook must contain the Physical Science and Biological Science sheets. A rejected workbook leaves the previous results in place.",
					"security":    []object{{"adminBasic": []string{}}},
					"requestBody": object{
						"required": true,
						"content": object{
							"multipart/form-data": object{
								"schema": object{
									"type": "object",
									"properties": object{
										"file": object{"type": "string", "format": "binary"},
									},
								},
							},
						},
					},
					"responses": with(object{
						"200": object{"description": "Workbook published"},
					}, errorResponses("400", "401", "413", "422", "503")),
				},
			},
			"/api/status": object{
				"get": object{
					"summary":   "Current data status",
					"responses": with(object{"200": jsonResponse("Status", "Status")}, errorResponses("503")),
				},
			},
			"/api/zones": object{
				"get": object{
					"summary": "List zones",
					"responses": with(object{
						"200": object{
							"description": "Sorted distinct zones",
							"content": jsonContent(object{
								"type": "object",
								"properties": object{
									"zones": object{"type": "array", "items": object{"type": "string"}},
								},
							}),
						},
					}, errorResponses("404")),
				},
			},
			"/api/results": object{
				"get": object{
					"summary": "Search a student's result",
					"parameters": []object{
						queryParam("zone", "Zone the student sat the exam in", true),
						queryParam("index_number", "Student index number", true),
					},
					"responses": with(object{
						"200": object{
							"description": "Matching result",
							"content": jsonContent(object{
								"type": "object",
								"properties": object{
									"result": schemaRef("SearchResult"),
									"labels": object{"type": "array", "items": object{"type": "object"}},
								},
							}),
						},
					}, errorResponses("400", "404")),
				},
			},
			"/api/summary": object{
				"get": object{
					"summary":    "Grade counts per subject",
					"parameters": []object{queryParam("zone", "Zone to summarize; omit for all zones", false)},
					"responses": with(object{
						"200": object{
							"description": "Grade summary",
							"content": jsonContent(object{
								"type": "object",
								"properties": object{
									"zone":    object{"type": "string"},
									"overall": object{"type": "boolean"},
									"summary": schemaRef("GradeSummary"),
								},
							}),
						},
					}, errorResponses("404")),
				},
			},
			"/health": object{
				"get": object{
					"summary":   "Health check",
					"responses": object{"200": object{"description": "API is healthy"}},
				},
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
