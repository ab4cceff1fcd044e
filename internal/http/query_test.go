package httpx

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/ldap-user-collection/internal/domain/model"
	apperrors "github.com/target/ldap-user-collection/internal/errors"
)

func TestParseQuery(t *testing.T) {
	values := url.Values{
		"id":       {"abc"},
		"username": {"alice"},
		"$fields":  {`{"username":1}`},
		"$sort":    {`{"created_at":-1}`},
		"$limit":   {"5000"},
		"$skip":    {"10"},
		"team":     {"red"},
	}

	q, err := parseQuery(values)
	require.NoError(t, err)

	assert.Equal(t, "abc", q.ID)
	assert.Equal(t, "abc", q.Filter.ID)
	require.NotNil(t, q.Filter.Username)
	assert.Equal(t, "alice", *q.Filter.Username)
	assert.Equal(t, model.Fields{"username": 1}, q.Fields)
	assert.Equal(t, []model.SortKey{{Field: "created_at", Desc: true}}, q.Sort)
	assert.Equal(t, maxLimit, q.Limit)
	assert.Equal(t, 10, q.Skip)
	assert.Equal(t, map[string]any{"team": "red"}, q.Filter.Properties)
}

func TestParseQuery_Empty(t *testing.T) {
	q, err := parseQuery(url.Values{})
	require.NoError(t, err)
	assert.Empty(t, q.ID)
	assert.Nil(t, q.Filter.Username)
	assert.Nil(t, q.Filter.Properties)
	assert.Zero(t, q.Limit)
}

func TestParseQuery_Invalid(t *testing.T) {
	values := url.Values{
		"$fields": {`{"username":"yes"}`},
		"$sort":   {`{"password":1}`},
		"$limit":  {"ten"},
		"$skip":   {"-3"},
		"$where":  {"1=1"},
	}

	_, err := parseQuery(values)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	fields := appErr.FieldErrors()
	for _, key := range []string{"$fields", "$sort", "$limit", "$skip", "$where"} {
		assert.Contains(t, fields, key)
	}
}
