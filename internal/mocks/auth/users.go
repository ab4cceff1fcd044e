package auth

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/ldap-user-collection/internal/domain/model"
	apperrors "github.com/target/ldap-user-collection/internal/errors"
	"github.com/target/ldap-user-collection/internal/ports"
)

var _ ports.UserStore = (*MemoryUserStore)(nil)

// MemoryUserStore is an in-memory user store for unit tests.
// Like a plain record store it does not enforce username uniqueness.
type MemoryUserStore struct {
	mu    sync.Mutex
	users []*model.User
	now   func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

// NewMemoryUserStore creates an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{now: time.Now}
}

// Seed inserts records as-is, assigning ids to those without one.
func (s *MemoryUserStore) Seed(users ...*model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		cp := *u
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}
		cp.Properties = maps.Clone(u.Properties)
		s.users = append(s.users, &cp)
	}
}

// All returns copies of every stored record, secrets included.
func (s *MemoryUserStore) All() []*model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Project(nil))
	}
	return out
}

func matches(u *model.User, f model.UserFilter) bool {
	if f.ID != "" && u.ID != f.ID {
		return false
	}
	if f.Username != nil && u.Username != *f.Username {
		return false
	}
	for k, v := range f.Properties {
		if !reflect.DeepEqual(u.Properties[k], v) {
			return false
		}
	}
	return true
}

func (s *MemoryUserStore) FindFirst(_ context.Context, filter model.UserFilter) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if matches(u, filter) {
			return u.Project(nil), nil
		}
	}
	return nil, nil
}

// ordered returns the filtered records in query order without paging.
func (s *MemoryUserStore) ordered(q model.UserQuery) []*model.User {
	var out []*model.User
	for _, u := range s.users {
		if matches(u, q.Filter) {
			out = append(out, u)
		}
	}
	if len(q.Sort) > 0 {
		slices.SortStableFunc(out, func(a, b *model.User) int {
			for _, k := range q.Sort {
				var c int
				switch k.Field {
				case model.UsernameField:
					c = strings.Compare(a.Username, b.Username)
				default:
					c = a.CreatedAt.Compare(b.CreatedAt)
				}
				if k.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	return out
}

func (s *MemoryUserStore) Find(_ context.Context, q model.UserQuery) ([]*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.ordered(q)
	if q.Skip > 0 {
		if q.Skip >= len(all) {
			all = nil
		} else {
			all = all[q.Skip:]
		}
	}
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	out := make([]*model.User, 0, len(all))
	for _, u := range all {
		out = append(out, u.Project(q.Fields))
	}
	return out, nil
}

func (s *MemoryUserStore) Get(_ context.Context, id string, fields model.Fields) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u.Project(fields), nil
		}
	}
	return nil, apperrors.NotFoundf("user %s not found", id)
}

func (s *MemoryUserStore) Count(_ context.Context, filter model.UserFilter) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if matches(u, filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryUserStore) IndexOf(_ context.Context, id string, q model.UserQuery) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.ordered(q) {
		if u.ID == id {
			return i, nil
		}
	}
	return -1, nil
}

func (s *MemoryUserStore) Create(_ context.Context, in model.UserInput) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if in.Username == nil || *in.Username == "" {
		return nil, apperrors.ValidationField(model.UsernameField, "is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u := &model.User{
		ID:         uuid.New().String(),
		Username:   *in.Username,
		Properties: maps.Clone(in.Properties),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Password != nil {
		pw := *in.Password
		u.Password = &pw
	}
	s.users = append(s.users, u)
	return u.Project(nil), nil
}

func (s *MemoryUserStore) Update(_ context.Context, id string, in model.UserInput) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID != id {
			continue
		}
		if in.Username != nil {
			u.Username = *in.Username
		}
		if in.Password != nil {
			pw := *in.Password
			u.Password = &pw
		}
		if len(in.Properties) > 0 {
			if u.Properties == nil {
				u.Properties = make(map[string]any, len(in.Properties))
			}
			maps.Copy(u.Properties, in.Properties)
		}
		u.UpdatedAt = s.now()
		return u.Project(nil), nil
	}
	return nil, apperrors.NotFoundf("user %s not found", id)
}

func (s *MemoryUserStore) Remove(_ context.Context, id string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u.ID == id {
			s.users = slices.Delete(s.users, i, i+1)
			return nil
		}
	}
	return apperrors.NotFoundf("user %s not found", id)
}
