// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	_ "embed"
	"sync"

	"github.com/sigil-dev/extpolicy/internal/prefs"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/extension_settings.json
var settingsSchema []byte

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(settingsSchema))
	})
	return compiledSchema, compileErr
}

// ValidateSettingsSchema checks an ExtensionSettings document against its
// JSON schema. Violations are returned as messages; the resolver still
// parses documents that fail, dropping only the malformed entries.
func ValidateSettingsSchema(jsonData []byte) ([]string, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeSettingsSchemaCompileFailure,
			"compiling extension settings schema")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeSettingsSchemaInvalid,
			"validating extension settings")
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}

// ValidateSettingsValue is ValidateSettingsSchema over a decoded value.
func ValidateSettingsValue(v *prefs.Value) ([]string, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeSettingsSchemaInvalid,
			"encoding extension settings")
	}
	return ValidateSettingsSchema(data)
}
