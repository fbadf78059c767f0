package upstream

import (
	"encoding/json"
	"strings"
	"testing"
)

type sampleProfile struct {
	Role   string `json:"role"`
	Skills struct {
		Languages []string `json:"languages"`
	} `json:"skills"`
	Years int `json:"years,omitempty"`
}

func TestJSONSchemaFormat(t *testing.T) {
	rf, err := JSONSchemaFormat("sample_profile", &sampleProfile{})
	if err != nil {
		t.Fatalf("JSONSchemaFormat: %v", err)
	}
	if rf.Type != "json_schema" || rf.JSONSchema.Name != "sample_profile" {
		t.Fatalf("unexpected format: %+v", rf)
	}

	raw := string(rf.JSONSchema.Schema)
	if strings.Contains(raw, "$ref") || strings.Contains(raw, "$schema") {
		t.Errorf("schema should be inlined without $schema: %s", raw)
	}

	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type       string                     `json:"type"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(rf.JSONSchema.Schema, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("root type = %q", schema.Type)
	}
	if schema.Properties["role"].Type != "string" || schema.Properties["years"].Type != "integer" {
		t.Errorf("unexpected properties: %+v", schema.Properties)
	}
	if _, ok := schema.Properties["skills"].Properties["languages"]; !ok {
		t.Errorf("nested struct not inlined: %s", raw)
	}
}

func TestChatRequestOmitsEmptyResponseFormat(t *testing.T) {
	b, _ := json.Marshal(ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if strings.Contains(string(b), "response_format") {
		t.Errorf("response_format should be omitted: %s", b)
	}

	rf, _ := JSONSchemaFormat("sample_profile", &sampleProfile{})
	b, _ = json.Marshal(ChatRequest{ResponseFormat: rf})
	if !strings.Contains(string(b), `"response_format":{"type":"json_schema","json_schema":{"name":"sample_profile"`) {
		t.Errorf("response_format missing: %s", b)
	}
}
