// Package mocks provides mock implementations for testing the user collection service.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockUserStore(ctrl)
//	store.EXPECT().FindFirst(gomock.Any(), gomock.Any()).Return(nil, nil)
package mocks

// Generate mock for UserStore interface from internal/ports package.
// This creates MockUserStore with methods for all UserStore interface methods:
// FindFirst, Find, Get, Count, IndexOf, Create, Update, Remove
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_store_mock.go github.com/target/ldap-user-collection/internal/ports UserStore

// Generate mock for Directory interface from internal/ports package.
// This creates MockDirectory with methods for all Directory interface methods:
// Authenticate
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=directory_mock.go github.com/target/ldap-user-collection/internal/ports Directory

// Generate mock for SessionStore interface from internal/ports package.
// This creates MockSessionStore with methods for all SessionStore interface methods:
// Save, Get, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/ldap-user-collection/internal/ports SessionStore
