package service

import (
	"maps"

	"github.com/target/ldap-user-collection/internal/domain/model"
)

// RedactFields rewrites a requested projection so the secret field can never be selected.
//
//   - no projection excludes the secret only;
//   - a projection with a positive non-secret field stays an inclusion projection minus the secret;
//   - anything else keeps its exclusions and adds the secret.
func RedactFields(fields model.Fields) model.Fields {
	if fields == nil {
		return model.Fields{model.SecretField: 0}
	}

	for k, v := range fields {
		if v > 0 && k != model.SecretField {
			out := maps.Clone(fields)
			delete(out, model.SecretField)
			return out
		}
	}

	out := make(model.Fields, len(fields)+1)
	for k, v := range fields {
		if v <= 0 {
			out[k] = 0
		}
	}
	out[model.SecretField] = 0
	return out
}

// redact strips the secret from a record and applies the projection.
func redact(u *model.User, fields model.Fields) *model.User {
	if u == nil {
		return nil
	}
	return u.Project(fields).WithoutSecret()
}

func redactAll(users []*model.User, fields model.Fields) []*model.User {
	out := make([]*model.User, 0, len(users))
	for _, u := range users {
		out = append(out, redact(u, fields))
	}
	return out
}
