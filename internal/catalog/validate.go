// internal/catalog/validate.go
package catalog

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	commonerrors "treasury-portal/internal/common/errors"
)

// vendorSchema is the contract a normalized vendor must satisfy before
// it is persisted. Relation fields are plain string arrays; anything
// else means normalization went wrong.
const vendorSchema = `{
	"type": "object",
	"required": ["id", "name"],
	"properties": {
		"id":               {"type": "string", "minLength": 1},
		"name":             {"type": "string", "minLength": 1},
		"vendor":           {"type": "string"},
		"description":      {"type": "string"},
		"website":          {"type": "string"},
		"full_website_url": {"type": "string"},
		"logo_url":         {"type": "string"},
		"video_url":        {"type": "string"},
		"status":           {"type": "string"},
		"hq_location":      {"type": "array", "items": {"type": "string"}},
		"founded_year":     {"type": "string"},
		"founders":         {"type": "array", "items": {"type": "string"}},
		"hosted_type":      {"type": "array", "items": {"type": "string"}},
		"domain":           {"type": "array", "items": {"type": "string"}},
		"regions":          {"type": "array", "items": {"type": "string"}},
		"categories":       {"type": "array", "items": {"type": "string"}},
		"sub_categories":   {"type": "array", "items": {"type": "string"}},
		"category":         {"type": "string"},
		"category_names":   {"type": "array", "items": {"type": "string"}},
		"capabilities":     {"type": "array", "items": {"type": "string"}}
	}
}`

var compiledVendorSchema = gojsonschema.NewStringLoader(vendorSchema)

// ValidateVendor checks a normalized vendor against the persistence
// contract.
func ValidateVendor(v Vendor) error {
	result, err := gojsonschema.Validate(compiledVendorSchema, gojsonschema.NewGoLoader(v))
	if err != nil {
		return commonerrors.NewVendorInvalidError(v.ID, err.Error())
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s", desc))
	}
	return commonerrors.NewVendorInvalidError(v.ID, strings.Join(problems, "; "))
}
