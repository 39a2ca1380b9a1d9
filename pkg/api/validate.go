package api

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const maxJSONBodyBytes int64 = 64 << 10

// Payload schema names; each maps to schemas/<name>.json.
const (
	schemaLogin       = "login"
	schemaRegister    = "register"
	schemaAgentCreate = "agent_create"
	schemaAgentUpdate = "agent_update"
)

// schemaMessages are the operator-facing messages for rejected payloads.
var schemaMessages = map[string]string{
	schemaLogin:       "A valid email and a password of at least 6 characters are required",
	schemaRegister:    "A valid email and a password of at least 6 characters are required",
	schemaAgentCreate: "Name, valid email, mobile and a password of at least 6 characters are required",
	schemaAgentUpdate: "Email must be valid and password at least 6 characters",
}

type validators map[string]*jsonschema.Schema

func compileSchemas() (validators, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	out := make(validators, len(schemaMessages))
	for name := range schemaMessages {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		schema, err := compiler.Compile(data)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = schema
	}
	return out, nil
}

// decodeValidated reads a JSON body, checks it against the named schema and
// decodes it into dst.
func (v validators) decodeValidated(w http.ResponseWriter, r *http.Request, name string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "request body too large").
				WithUserMessage(fmt.Sprintf("Request body too large (max %d bytes)", maxJSONBodyBytes))
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "read request body").
			WithUserMessage("Could not read request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "empty request body").
			WithUserMessage(schemaMessages[name])
	}

	schema, ok := v[name]
	if !ok {
		return apperrors.New(apperrors.ErrCodeInternal, "unknown payload schema").WithContext("schema", name)
	}
	result := schema.ValidateJSON(data)
	if !result.IsValid() {
		keys := make([]string, 0, len(result.Errors))
		for k := range result.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return apperrors.New(apperrors.ErrCodeInvalidInput, "payload failed schema validation").
			WithContext("schema", name).
			WithContext("violations", strings.Join(keys, ",")).
			WithUserMessage(schemaMessages[name])
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "decode payload").
			WithContext("schema", name).
			WithUserMessage(schemaMessages[name])
	}
	return nil
}
