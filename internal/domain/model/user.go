//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

const (
	// SecretField is the record key holding the stored credential. It is never returned to callers.
	SecretField = "password"
	// UsernameField is the unique login name key.
	UsernameField = "username"
	// IDField is the record identifier key.
	IDField = "id"

	createdAtField = "created_at"
	updatedAtField = "updated_at"
)

// User is a record in the user collection.
// Properties holds the free-form fields of the record; they are flattened
// next to the fixed columns when the record is rendered as JSON.
type User struct {
	ID         string         `db:"id"`
	Username   string         `db:"username"`
	Password   *string        `db:"password"`
	Properties map[string]any `db:"properties"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`

	// projection limits the keys emitted by MarshalJSON; nil emits everything.
	projection Fields
}

// HasPassword reports whether the record carries a stored credential.
func (u *User) HasPassword() bool {
	return u.Password != nil && *u.Password != ""
}

// WithoutSecret returns a copy of the record with the stored credential removed.
func (u *User) WithoutSecret() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Password = nil
	cp.Properties = maps.Clone(u.Properties)
	if cp.projection != nil {
		cp.projection = maps.Clone(u.projection)
	}
	return &cp
}

// Project returns a copy of the record limited to the given projection.
// The id is always kept. A nil projection keeps every field.
func (u *User) Project(fields Fields) *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Properties = maps.Clone(u.Properties)
	if fields == nil {
		cp.projection = nil
		return &cp
	}
	cp.projection = maps.Clone(fields)
	if !fields.Allows(SecretField) {
		cp.Password = nil
	}
	return &cp
}

// Document renders the record as a flat map honoring the current projection.
func (u *User) Document() map[string]any {
	doc := make(map[string]any, len(u.Properties)+5)
	for k, v := range u.Properties {
		doc[k] = v
	}
	doc[IDField] = u.ID
	doc[UsernameField] = u.Username
	if u.Password != nil {
		doc[SecretField] = *u.Password
	}
	if !u.CreatedAt.IsZero() {
		doc[createdAtField] = u.CreatedAt
	}
	if !u.UpdatedAt.IsZero() {
		doc[updatedAtField] = u.UpdatedAt
	}
	if u.projection == nil {
		return doc
	}
	for k := range doc {
		if k != IDField && !u.projection.Allows(k) {
			delete(doc, k)
		}
	}
	return doc
}

// MarshalJSON flattens properties alongside the fixed fields.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Document())
}

// UserInput is the writable portion of a user record decoded from a request body.
// Nil pointers mean "leave unchanged" on update.
type UserInput struct {
	Username   *string
	Password   *string
	Properties map[string]any
}

// IsEmpty reports whether the input carries nothing to write.
func (in UserInput) IsEmpty() bool {
	return in.Username == nil && in.Password == nil && len(in.Properties) == 0
}

// ParseUserInput converts a generic request body into a UserInput.
// The id and timestamp keys are owned by the store and ignored here.
func ParseUserInput(body map[string]any) (UserInput, error) {
	var in UserInput
	for k, v := range body {
		switch k {
		case IDField, createdAtField, updatedAtField:
			continue
		case UsernameField:
			s, ok := v.(string)
			if !ok {
				return UserInput{}, fmt.Errorf("%s must be a string", UsernameField)
			}
			in.Username = &s
		case SecretField:
			s, ok := v.(string)
			if !ok {
				return UserInput{}, fmt.Errorf("%s must be a string", SecretField)
			}
			in.Password = &s
		default:
			if in.Properties == nil {
				in.Properties = make(map[string]any)
			}
			in.Properties[k] = v
		}
	}
	return in, nil
}

// Credentials is the body of a login request.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
