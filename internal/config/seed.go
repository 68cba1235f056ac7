package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultRoles is the bootstrap role set of the reader study.
var DefaultRoles = []string{"GP", "Dermatology Specialist", "Nurse"}

type roleSeed struct {
	Roles []string `toml:"roles"`
}

// LoadRoles returns the roles listed in a TOML seed file (`roles = [...]`), or DefaultRoles when
// path is empty or the file lists none.
func LoadRoles(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return append([]string(nil), DefaultRoles...), nil
	}
	var seed roleSeed
	if _, err := toml.DecodeFile(path, &seed); err != nil {
		return nil, fmt.Errorf("decode roles seed %s: %w", path, err)
	}
	out := make([]string, 0, len(seed.Roles))
	for _, r := range seed.Roles {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultRoles...), nil
	}
	return out, nil
}
