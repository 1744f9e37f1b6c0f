// Package schema validates event payloads against optional CUE schemas.
//
// If <root>/schemas/<event_type>.cue exists, a published payload must unify
// with it and be complete; otherwise publish fails before anything is
// appended. Absence of a schema file means the event type is unvalidated.
// Producers and consumers evolve independently, so schemas are opt-in per
// event type rather than a registry the engine enforces globally.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ValidationError reports a payload that does not satisfy its event type's
// schema. This is a caller error, not an engine failure.
type ValidationError struct {
	EventType string
	Detail    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload for %q violates schema: %s", e.EventType, e.Detail)
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks payloads against per-event-type schema files.
type Validator struct {
	dir string
	ctx *cue.Context
}

// New creates a validator reading schemas from dir. The directory need not
// exist; a missing directory validates everything.
func New(dir string) *Validator {
	return &Validator{dir: dir, ctx: cuecontext.New()}
}

// Validate checks payload against the schema for eventType, if one exists.
func (v *Validator) Validate(eventType string, payload map[string]any) error {
	path := filepath.Join(v.dir, eventType+".cue")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read schema for %q: %w", eventType, err)
	}

	schemaVal := v.ctx.CompileBytes(data, cue.Filename(path))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("compile schema for %q: %s", eventType, cueerrors.Details(err, nil))
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payloadVal := v.ctx.Encode(payload)
	if err := payloadVal.Err(); err != nil {
		return fmt.Errorf("encode payload for %q: %w", eventType, err)
	}

	unified := schemaVal.Unify(payloadVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{
			EventType: eventType,
			Detail:    cueerrors.Details(err, &cueerrors.Config{Cwd: v.dir}),
		}
	}
	return nil
}
