package format

import "regexp"

// forbiddenSchemaKeys is the exact key list spec §4.4 requires stripped,
// recursively, anywhere they appear in a tool's input_schema.
var forbiddenSchemaKeys = map[string]bool{
	"$schema": true, "$id": true, "$ref": true, "$defs": true, "definitions": true,
	"default": true, "examples": true, "title": true,
	"minLength": true, "maxLength": true, "pattern": true, "format": true,
	"minimum": true, "maximum": true, "exclusiveMinimum": true, "exclusiveMaximum": true,
	"multipleOf": true, "minItems": true, "maxItems": true, "uniqueItems": true,
	"minProperties": true, "maxProperties": true, "propertyNames": true,
	"contentMediaType": true, "contentEncoding": true, "additionalProperties": true,
}

// SanitizeSchema recursively strips forbidden keys and rewrites const->enum,
// per spec §4.4/P7. Operates on an already-decoded JSON value tree
// (map[string]interface{} / []interface{} / scalars).
func SanitizeSchema(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if forbiddenSchemaKeys[k] {
				continue
			}
			if k == "const" {
				out["enum"] = []interface{}{val}
				continue
			}
			out[k] = SanitizeSchema(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = SanitizeSchema(e)
		}
		return out
	default:
		return v
	}
}

var toolNameAllowed = regexp.MustCompile(`[^A-Za-z0-9_.:-]`)

// CleanToolName sanitizes a tool name per spec §4.4: replace "/" and space
// with "_", prepend "_" if the first character is a digit, then drop any
// character outside [A-Za-z0-9_.:-].
func CleanToolName(name string) string {
	b := []rune(name)
	for i, r := range b {
		if r == '/' || r == ' ' {
			b[i] = '_'
		}
	}
	name = string(b)
	name = toolNameAllowed.ReplaceAllString(name, "")
	if len(name) > 0 && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}
