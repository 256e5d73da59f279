// internal/payload/validator.go
//
// Schema validation and decoding of raw block payloads.
//
// Context
// -------
// Validation runs in two passes before anything is derived or written:
//
//  1. JSON Schema (santhosh-tekuri/jsonschema) rejects wrong shapes, such
//     as a string where a number is mandated or unknown keys on a canonical
//     block.
//  2. Struct rules (go-playground/validator) enforce value ranges on the
//     decoded, typed payload.
//
// Both passes report every failing field in one *apperr.ValidationError so
// an editor sees all problems at once.
//
// Notes
// -----
//   - Schemas are compiled once in NewValidator.
//   - Soft blocks only need to be a JSON object.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/registry"
)

/*──────────────────────────── schemas ─────────────────────────────────────*/

func numberProps(names ...string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = `"` + n + `":{"type":"number"}`
	}
	return strings.Join(parts, ",")
}

func objectSchema(props string) string {
	return `{"type":"object","additionalProperties":false,"properties":{` + props + `}}`
}

var domainSchemas = map[registry.Domain]string{
	registry.DomainAdmissions: objectSchema(numberProps(
		"applications", "accepted", "math25", "math75", "verbal25", "verbal75",
		"composite25", "composite75", "gpa25", "gpa75", "satPercentile25", "satPercentile75",
	)),
	registry.DomainFinancials: objectSchema(numberProps(
		"inStateTuition", "outStatePremium", "fees", "internationalTuition",
		"onCampusHousing", "mealPlan", "books", "miscPersonal",
	)),
	registry.DomainGeography: objectSchema(
		`"address":{"type":"string"},"city":{"type":"string"},"state":{"type":"string"},` +
			`"country":{"type":"string"},"airportOverride":{"type":"string"}`,
	),
	registry.DomainOutcomes: objectSchema(numberProps(
		"graduationRate", "retentionRate", "employmentRate", "avgStartingSalary",
	)),
}

const softSchema = `{"type":"object"}`

/*──────────────────────────── validator ───────────────────────────────────*/

// Validator decodes raw block data into a Payload.  Safe for concurrent use.
type Validator struct {
	reg     *registry.Registry
	schemas map[registry.Domain]*jsonschema.Schema
	soft    *jsonschema.Schema
	rules   *validator.Validate
}

// NewValidator compiles one schema per canonical domain.
func NewValidator(reg *registry.Registry) (*Validator, error) {
	v := &Validator{
		reg:     reg,
		schemas: make(map[registry.Domain]*jsonschema.Schema, len(domainSchemas)),
		rules:   validator.New(),
	}
	v.rules.RegisterTagNameFunc(jsonName)

	for domain, src := range domainSchemas {
		sch, err := compile(string(domain)+".json", src)
		if err != nil {
			return nil, err
		}
		v.schemas[domain] = sch
	}
	sch, err := compile("soft.json", softSchema)
	if err != nil {
		return nil, err
	}
	v.soft = sch
	return v, nil
}

func compile(url, src string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Decode validates raw against blockType's schema and returns the typed
// payload.  Any failure is an *apperr.ValidationError.
func (v *Validator) Decode(blockType string, raw json.RawMessage) (Payload, error) {
	if blockType == "" {
		return nil, apperr.Invalid("blockType", "is required")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, apperr.Invalid("rawData", "is not valid JSON")
	}

	bs, hard := v.reg.Block(blockType)
	if !hard {
		if err := v.soft.Validate(doc); err != nil {
			return nil, schemaError(err)
		}
		return &Soft{Type: blockType, Data: raw}, nil
	}

	sch, ok := v.schemas[bs.Domain]
	if !ok {
		return nil, apperr.Invalid("blockType", "no schema for domain "+string(bs.Domain))
	}
	if err := sch.Validate(doc); err != nil {
		return nil, schemaError(err)
	}

	var p Payload
	switch bs.Domain {
	case registry.DomainAdmissions:
		p = &Admissions{Type: blockType}
	case registry.DomainFinancials:
		p = &Financials{Type: blockType}
	case registry.DomainGeography:
		p = &Geography{Type: blockType}
	case registry.DomainOutcomes:
		p = &Outcomes{Type: blockType}
	default:
		return nil, apperr.Invalid("blockType", "unknown domain "+string(bs.Domain))
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, apperr.Invalid("rawData", err.Error())
	}
	if err := v.rules.Struct(p); err != nil {
		return nil, ruleError(err)
	}
	return p, nil
}

/*──────────────────────────── error mapping ───────────────────────────────*/

// schemaError flattens the leaf causes of a jsonschema failure.
func schemaError(err error) error {
	var se *jsonschema.ValidationError
	if !errors.As(err, &se) {
		return apperr.Invalid("rawData", err.Error())
	}
	ve := &apperr.ValidationError{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			ve.Fields = append(ve.Fields, apperr.FieldError{
				Field:   strings.TrimPrefix(e.InstanceLocation, "/"),
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(se)
	return ve
}

func ruleError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.Invalid("rawData", err.Error())
	}
	out := &apperr.ValidationError{}
	for _, fe := range ves {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out.Fields = append(out.Fields, apperr.FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
