package renteasy

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"monthlyRent", "monthly_rent"},
		{"propertyID", "property_id"},
		{"URLPath", "url_path"},
		{"id", "id"},
		{"already_snake", "already_snake"},
		{"", ""},
		{"HTMLBody", "html_body"},
	}
	for _, tt := range tests {
		if got := snakeCase(tt.in); got != tt.want {
			t.Errorf("snakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCamelCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"monthly_rent", "monthlyRent"},
		{"property_id", "propertyId"},
		{"id", "id"},
		{"alreadyCamel", "alreadyCamel"},
		{"", ""},
		{"_private", "_private"},
	}
	for _, tt := range tests {
		if got := camelCase(tt.in); got != tt.want {
			t.Errorf("camelCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToWireNested(t *testing.T) {
	in := json.RawMessage(`{"monthlyRent":1200,"landlord":{"fullName":"Ada","contactInfo":{"phoneNumber":"123"}},"photoUrls":["a","b"],"rooms":[{"floorArea":12}]}`)

	out, err := ToWire(in)
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	if _, ok := got["monthly_rent"]; !ok {
		t.Error("top-level key not converted")
	}
	landlord := got["landlord"].(map[string]any)
	if _, ok := landlord["full_name"]; !ok {
		t.Error("nested key not converted")
	}
	contact := landlord["contact_info"].(map[string]any)
	if _, ok := contact["phone_number"]; !ok {
		t.Error("deeply nested key not converted")
	}
	rooms := got["rooms"].([]any)
	if _, ok := rooms[0].(map[string]any)["floor_area"]; !ok {
		t.Error("key inside array element not converted")
	}
	if !reflect.DeepEqual(got["photo_urls"], []any{"a", "b"}) {
		t.Error("array values should pass through untouched")
	}
}

func TestFromWireRoundTrip(t *testing.T) {
	in := json.RawMessage(`{"monthlyRent":1200,"propertyId":"p1"}`)

	wire, err := ToWire(in)
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	back, err := FromWire(wire)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}

	var want, got map[string]any
	if err := json.Unmarshal(in, &want); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(back, &got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip changed document: got %v, want %v", got, want)
	}
}

func TestTransformIdempotent(t *testing.T) {
	in := json.RawMessage(`{"monthly_rent":1200}`)
	once, err := ToWire(in)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := ToWire(once)
	if err != nil {
		t.Fatal(err)
	}
	if string(once) != string(twice) {
		t.Errorf("ToWire not idempotent: %s vs %s", once, twice)
	}
}

func TestTransformEdgeInputs(t *testing.T) {
	if out, err := ToWire(nil); err != nil || out != nil {
		t.Errorf("empty input: out=%s err=%v", out, err)
	}

	// Non-object documents pass through.
	out, err := FromWire(json.RawMessage(`[1,2,3]`))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[1,2,3]" {
		t.Errorf("array document = %s, want unchanged", out)
	}

	if _, err := ToWire(json.RawMessage(`not json`)); err == nil {
		t.Error("invalid JSON should error")
	}
}
