package httpx

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/target/ldap-user-collection/internal/domain/model"
	apperrors "github.com/target/ldap-user-collection/internal/errors"
	"github.com/target/ldap-user-collection/internal/service"
)

// maxLimit bounds a single page of results.
const maxLimit = 1000

// parseQuery turns URL parameters into a collection query.
// Unknown $-prefixed parameters are rejected; other plain parameters filter on record properties.
func parseQuery(values url.Values) (service.Query, error) {
	var q service.Query
	fieldErrs := map[string]string{}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch key {
		case paramID:
			q.ID = val
			q.Filter.ID = val
		case paramUsername:
			username := val
			q.Filter.Username = &username
		case paramFields:
			fields, err := model.ParseFields(val)
			if err != nil {
				fieldErrs[key] = err.Error()
				continue
			}
			q.Fields = fields
		case paramSort:
			sort, err := model.ParseSort(val)
			if err != nil {
				fieldErrs[key] = err.Error()
				continue
			}
			q.Sort = sort
		case paramLimit:
			n, ok := parseCount(val)
			if !ok {
				fieldErrs[key] = "must be a non-negative integer"
				continue
			}
			q.Limit = min(n, maxLimit)
		case paramSkip:
			n, ok := parseCount(val)
			if !ok {
				fieldErrs[key] = "must be a non-negative integer"
				continue
			}
			q.Skip = n
		default:
			if strings.HasPrefix(key, "$") {
				fieldErrs[key] = "is not a supported parameter"
				continue
			}
			if q.Filter.Properties == nil {
				q.Filter.Properties = make(map[string]any)
			}
			q.Filter.Properties[key] = val
		}
	}

	if len(fieldErrs) > 0 {
		return service.Query{}, apperrors.ValidationFields("invalid query", fieldErrs)
	}
	return q, nil
}

func parseCount(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
