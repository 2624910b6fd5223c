package authstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileUser is the on-disk YAML shape of one user entry in a users file,
// e.g.:
//
//	users:
//	  - accessKeyId: AKIAEXAMPLE
//	    secretAccessKey: supersecret
//	    name: alice
//	    permissions:
//	      - pattern: "prod-*"
//	        actions: [read, write]
type fileUser struct {
	AccessKeyID     string   `yaml:"accessKeyId"`
	SecretAccessKey string   `yaml:"secretAccessKey"`
	Name            string   `yaml:"name"`
	Permissions     []filePermission `yaml:"permissions"`
}

type filePermission struct {
	Pattern string   `yaml:"pattern"`
	Actions []string `yaml:"actions"`
}

type usersFile struct {
	Users []fileUser `yaml:"users"`
}

// LoadUsersFile reads and parses a YAML users file into the UserConfig
// shape New consumes, the configuration-at-startup path for the embedded
// credential store.
func LoadUsersFile(path string) ([]UserConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authstore: read users file: %w", err)
	}

	var doc usersFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("authstore: parse users file: %w", err)
	}

	out := make([]UserConfig, 0, len(doc.Users))
	for _, u := range doc.Users {
		uc := UserConfig{AccessKeyID: u.AccessKeyID, SecretAccessKey: u.SecretAccessKey, Name: u.Name}
		for _, p := range u.Permissions {
			actions := make(map[Action]bool, len(p.Actions))
			for _, a := range p.Actions {
				actions[Action(a)] = true
			}
			uc.Permissions = append(uc.Permissions, Permission{Pattern: p.Pattern, Actions: actions})
		}
		out = append(out, uc)
	}
	return out, nil
}
