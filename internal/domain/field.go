/**
 * @description
 * Typed field definitions and answer values. Each event declares its own field
 * schema; subscription answers are stored as a map keyed by field id (never by
 * display name) so renaming a field cannot orphan or collide answers.
 */

package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the tagged variant discriminator for answer values.
type FieldType string

const (
	FieldText          FieldType = "text"
	FieldNumber        FieldType = "number"
	FieldBoolean       FieldType = "boolean"
	FieldSingleChoice  FieldType = "single_choice"
	FieldMultiChoice   FieldType = "multi_choice"
	FieldDate          FieldType = "date"
	FieldPhone         FieldType = "phone"
	FieldESNCardNumber FieldType = "esncard_number"
)

// Valid reports whether t is a recognised field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldBoolean, FieldSingleChoice,
		FieldMultiChoice, FieldDate, FieldPhone, FieldESNCardNumber:
		return true
	}
	return false
}

// FieldDefinition is one typed field of an event's sign-up form (kind "form")
// or office-only data (kind "additional").
type FieldDefinition struct {
	ID       uuid.UUID `json:"id"`
	EventID  uuid.UUID `json:"event_id"`
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Type     FieldType `json:"type"`
	Options  []string  `json:"options,omitempty"`
	Required bool      `json:"required"`
}

// FieldValue is a tagged answer value. Exactly the member matching Type is
// meaningful; the rest stay at their zero value.
type FieldValue struct {
	Type    FieldType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Number  *float64  `json:"number,omitempty"`
	Bool    *bool     `json:"bool,omitempty"`
	Choice  string    `json:"choice,omitempty"`
	Choices []string  `json:"choices,omitempty"`
}

// dateLayout is the wire format for date answers.
const dateLayout = "2006-01-02"

var (
	phonePattern   = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,19}$`)
	esncardPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,16}$`)
)

// Validate checks an answer value against this field definition. It returns a
// human-readable message suitable for the per-field error map of a 400 response.
func (d FieldDefinition) Validate(v FieldValue) error {
	if v.Type != d.Type {
		return fmt.Errorf("expected a %s value, got %s", d.Type, v.Type)
	}

	switch d.Type {
	case FieldText:
		if d.Required && strings.TrimSpace(v.Text) == "" {
			return fmt.Errorf("field is required")
		}
	case FieldNumber:
		if v.Number == nil {
			if d.Required {
				return fmt.Errorf("field is required")
			}
			return nil
		}
		if math.IsNaN(*v.Number) || math.IsInf(*v.Number, 0) {
			return fmt.Errorf("number is not finite")
		}
	case FieldBoolean:
		if d.Required && v.Bool == nil {
			return fmt.Errorf("field is required")
		}
	case FieldSingleChoice:
		if v.Choice == "" {
			if d.Required {
				return fmt.Errorf("field is required")
			}
			return nil
		}
		if !containsOption(d.Options, v.Choice) {
			return fmt.Errorf("%q is not one of the allowed options", v.Choice)
		}
	case FieldMultiChoice:
		if d.Required && len(v.Choices) == 0 {
			return fmt.Errorf("field is required")
		}
		for _, c := range v.Choices {
			if !containsOption(d.Options, c) {
				return fmt.Errorf("%q is not one of the allowed options", c)
			}
		}
	case FieldDate:
		if v.Text == "" {
			if d.Required {
				return fmt.Errorf("field is required")
			}
			return nil
		}
		if _, err := time.Parse(dateLayout, v.Text); err != nil {
			return fmt.Errorf("invalid date, expected YYYY-MM-DD")
		}
	case FieldPhone:
		if v.Text == "" {
			if d.Required {
				return fmt.Errorf("field is required")
			}
			return nil
		}
		if !phonePattern.MatchString(v.Text) {
			return fmt.Errorf("invalid phone number")
		}
	case FieldESNCardNumber:
		if v.Text == "" {
			if d.Required {
				return fmt.Errorf("field is required")
			}
			return nil
		}
		if !esncardPattern.MatchString(v.Text) {
			return fmt.Errorf("invalid ESNcard number")
		}
	default:
		return fmt.Errorf("unknown field type %q", d.Type)
	}

	return nil
}

func containsOption(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}
