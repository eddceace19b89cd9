// Package schema renders tool contracts into provider-agnostic function
// declarations and validates them against the JSON Schema meta-schema
// before they are ever sent to a model provider.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fletchway/agentcore/internal/tools"
)

// Declaration is the provider-agnostic function declaration shape from
// spec.md §6.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FromTool renders a single Declaration from a Tool.
func FromTool(t tools.Tool) Declaration {
	return Declaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.ParametersSchema(),
	}
}

// FromRegistry renders every enabled tool in r as a Declaration, in the
// registry's deterministic (name-sorted) order.
func FromRegistry(r *tools.Registry) []Declaration {
	enabled := r.ListEnabled()
	out := make([]Declaration, 0, len(enabled))
	for _, t := range enabled {
		out = append(out, FromTool(t))
	}
	return out
}

// ValidationError reports why a declaration is not acceptable to send to a
// provider.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Reason)
}

// Validate checks structural requirements from spec.md §4.1: top-level
// name/description/parameters are present, parameters.type == "object",
// and every name in parameters.required appears in parameters.properties.
// It additionally compiles Parameters as a JSON Schema document so that
// malformed schemas (bad regex patterns, invalid keyword values) are caught
// before the declarations reach a provider (cmd/agentcore runs ValidateAll
// at startup) instead of surfacing as a provider-side 400. Registry.Register
// does not call it.
func Validate(d Declaration) error {
	if d.Name == "" {
		return &ValidationError{Tool: d.Name, Reason: "missing name"}
	}
	if d.Description == "" {
		return &ValidationError{Tool: d.Name, Reason: "missing description"}
	}
	if d.Parameters == nil {
		return &ValidationError{Tool: d.Name, Reason: "missing parameters"}
	}
	typ, _ := d.Parameters["type"].(string)
	if typ != "object" {
		return &ValidationError{Tool: d.Name, Reason: "parameters.type must be \"object\""}
	}
	properties, _ := d.Parameters["properties"].(map[string]any)
	if required, ok := d.Parameters["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, ok := properties[name]; !ok {
				return &ValidationError{Tool: d.Name, Reason: fmt.Sprintf("required field %q not in properties", name)}
			}
		}
	}

	raw, err := json.Marshal(d.Parameters)
	if err != nil {
		return &ValidationError{Tool: d.Name, Reason: fmt.Sprintf("parameters not JSON-encodable: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Tool: d.Name, Reason: fmt.Sprintf("parameters round-trip failed: %v", err)}
	}
	resourceName := "agentcore://tool/" + d.Name + "/parameters.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return &ValidationError{Tool: d.Name, Reason: fmt.Sprintf("invalid JSON Schema: %v", err)}
	}
	if _, err := compiler.Compile(resourceName); err != nil {
		return &ValidationError{Tool: d.Name, Reason: fmt.Sprintf("schema does not compile: %v", err)}
	}
	return nil
}

// ValidateAll validates every declaration and returns the first error
// encountered, or nil if all are acceptable.
func ValidateAll(decls []Declaration) error {
	for _, d := range decls {
		if err := Validate(d); err != nil {
			return err
		}
	}
	return nil
}

// ValidateArgs checks a decoded tool-call argument map against the tool's
// declared parameter schema, surfacing provider-side "the model sent
// arguments that don't match the schema" failures before Tool.Validate ever
// runs.
func ValidateArgs(d Declaration, args map[string]any) error {
	raw, err := json.Marshal(d.Parameters)
	if err != nil {
		return fmt.Errorf("marshal schema for %q: %w", d.Name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode schema for %q: %w", d.Name, err)
	}
	resourceName := "agentcore://tool/" + d.Name + "/args-check.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("invalid schema for %q: %w", d.Name, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema for %q: %w", d.Name, err)
	}
	argsRaw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args for %q: %w", d.Name, err)
	}
	var argsDoc any
	if err := json.Unmarshal(argsRaw, &argsDoc); err != nil {
		return fmt.Errorf("decode args for %q: %w", d.Name, err)
	}
	if err := schema.Validate(argsDoc); err != nil {
		return fmt.Errorf("arguments for %q do not match schema: %w", d.Name, err)
	}
	return nil
}

// NativeWrapper wraps declarations the way native-structured providers
// (Anthropic, and Gemini-family APIs) expect: a top-level
// "function_declarations" array.
type NativeWrapper struct {
	FunctionDeclarations []Declaration `json:"function_declarations"`
}

// WrapNative wraps decls for a native-structured provider request.
func WrapNative(decls []Declaration) NativeWrapper {
	return NativeWrapper{FunctionDeclarations: decls}
}
