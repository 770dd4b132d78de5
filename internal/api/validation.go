package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

const bloodTypeEnum = `["O-","O+","A-","A+","B-","B+","AB-","AB+"]`

const weightsSchema = `{
	"type": "object",
	"properties": {
		"rus":      {"type": "number"},
		"drs":      {"type": "number"},
		"distance": {"type": "number"}
	},
	"required": ["rus", "drs", "distance"]
}`

const geoSchema = `{
	"type": "object",
	"properties": {
		"lat": {"type": "number", "minimum": -90, "maximum": 90},
		"lng": {"type": "number", "minimum": -180, "maximum": 180}
	},
	"required": ["lat", "lng"]
}`

var (
	urgencyScoreSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"urgency":   {"type": "string"},
			"createdAt": {"type": "string", "format": "date-time"},
			"tags":      {"type": "array", "items": {"type": "string"}},
			"bloodType": {"type": "string"}
		},
		"required": ["urgency", "bloodType"]
	}`)

	readinessScoreSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"lastDonation":        {"type": ["string", "null"], "format": "date-time"},
			"donationCount":       {"type": "integer", "minimum": 0},
			"distance":            {"type": ["number", "null"], "minimum": 0},
			"socialEngagement":    {"type": "number", "minimum": 0},
			"profileCompleteness": {"type": "number", "minimum": 0, "maximum": 100},
			"bloodType":           {"type": "string"}
		},
		"required": ["bloodType"]
	}`)

	matchScoreSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"rus":              {"type": "number"},
			"drs":              {"type": "number"},
			"distanceKm":       {"type": "number"},
			"weights":          ` + weightsSchema + `,
			"profileId":        {"type": "string"},
			"requestBloodType": {"type": "string"},
			"donorBloodType":   {"type": "string"}
		},
		"required": ["rus", "drs", "distanceKm", "requestBloodType", "donorBloodType"]
	}`)

	normalizeSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"scores": {"type": "array", "items": {"type": "number"}}
		},
		"required": ["scores"]
	}`)

	donorSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"id":                  {"type": "string"},
			"name":                {"type": "string"},
			"bloodType":           {"enum": ` + bloodTypeEnum + `},
			"location":            ` + geoSchema + `,
			"distanceHintKm":      {"type": "number", "minimum": 0},
			"lastDonation":        {"type": "string", "format": "date-time"},
			"donationCount":       {"type": "integer", "minimum": 0},
			"socialEngagement":    {"type": "number", "minimum": 0},
			"profileCompleteness": {"type": "number", "minimum": 0, "maximum": 100},
			"available":           {"type": "boolean"},
			"metadata":            {"type": "object"}
		},
		"required": ["bloodType"]
	}`)

	donationSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"requestId": {"type": "string"},
			"volumeMl":  {"type": "integer", "minimum": 0},
			"donatedAt": {"type": "string", "format": "date-time"}
		}
	}`)

	requestSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"id":         {"type": "string"},
			"patientRef": {"type": "string"},
			"hospital":   {"type": "string"},
			"bloodType":  {"enum": ` + bloodTypeEnum + `},
			"urgency":    {"enum": ["Standard", "High", "Urgent"]},
			"units":      {"type": "integer", "minimum": 1},
			"tags":       {"type": "array", "items": {"type": "string"}},
			"location":   ` + geoSchema + `,
			"profileId":  {"type": "string"},
			"async":      {"type": "boolean"}
		},
		"required": ["bloodType", "urgency"]
	}`)

	statusSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"status": {"enum": ["open", "fulfilled", "cancelled"]}
		},
		"required": ["status"]
	}`)

	matchRunSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"weights":   ` + weightsSchema + `,
			"profileId": {"type": "string"},
			"limit":     {"type": "integer", "minimum": 0}
		}
	}`)

	screeningRuleSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"id":          {"type": "string", "minLength": 1},
			"name":        {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"expression":  {"type": "string", "minLength": 1},
			"action":      {"enum": ["exclude", "flag"]},
			"reason":      {"type": "string"},
			"enabled":     {"type": "boolean"}
		},
		"required": ["id", "name", "expression", "action"]
	}`)

	profileSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"id":          {"type": "string"},
			"name":        {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"weights":     ` + weightsSchema + `,
			"minScore":    {"type": "number", "minimum": 0, "maximum": 100},
			"enabled":     {"type": "boolean"}
		},
		"required": ["name", "weights"]
	}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return schema
}

// decodeBody validates the request body against schema and decodes it
// into dst. An empty body is treated as {}.
func decodeBody(r *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: invalid JSON", errInvalidBody)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", errInvalidBody, strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}
