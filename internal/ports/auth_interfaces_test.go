package ports_test

import (
	"testing"

	"github.com/target/ldap-user-collection/internal/mocks"
	mockauth "github.com/target/ldap-user-collection/internal/mocks/auth"
	"github.com/target/ldap-user-collection/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.Directory = (*mockauth.StaticDirectory)(nil)
	var _ ports.SessionStore = (*mockauth.MemorySessionStore)(nil)
	var _ ports.SessionManager = (*mockauth.MemorySession)(nil)
	var _ ports.UserStore = (*mockauth.MemoryUserStore)(nil)
	var _ ports.UserStore = (*mocks.MockUserStore)(nil)
	var _ ports.Directory = (*mocks.MockDirectory)(nil)
}
