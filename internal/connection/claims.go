package connection

import (
	"strings"

	"github.com/cornelk/hashmap"
)

// claims records which Manager owns the link to each address in this
// process. At most one live link per address.
var claims = hashmap.New[string, *Manager]()

func claimKey(address string) string { return strings.ToUpper(strings.TrimSpace(address)) }

func claim(address string, m *Manager) bool {
	return claims.Insert(claimKey(address), m)
}

func release(address string, m *Manager) {
	key := claimKey(address)
	if owner, ok := claims.Get(key); ok && owner == m {
		claims.Del(key)
	}
}
