package rbac

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Role string
type Action string

const (
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	ActionReadAdmin        Action = "read_admin"
	ActionModerateComments Action = "moderate_comments"
	ActionManagePosts      Action = "manage_posts"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionReadAdmin || action == ActionModerateComments
	default:
		return false
	}
}

func ParseRole(role string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleModerator:
		return RoleModerator, true
	default:
		return "", false
	}
}

// Grant binds one verified email address to a role.
type Grant struct {
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// Policy is an immutable email to role table built once at startup.
type Policy struct {
	roles map[string]Role
}

func NewPolicy(grants []Grant) (*Policy, error) {
	roles := make(map[string]Role, len(grants))
	for _, grant := range grants {
		email := normalizeEmail(grant.Email)
		if email == "" {
			return nil, fmt.Errorf("policy grant with empty email")
		}
		role := RoleAdmin
		if strings.TrimSpace(grant.Role) != "" {
			parsed, ok := ParseRole(grant.Role)
			if !ok {
				return nil, fmt.Errorf("policy grant %s: unknown role %q", email, grant.Role)
			}
			role = parsed
		}
		roles[email] = role
	}
	return &Policy{roles: roles}, nil
}

// FromAdminEmails grants the admin role to every non-blank address.
func FromAdminEmails(emails []string) *Policy {
	roles := make(map[string]Role, len(emails))
	for _, email := range emails {
		if normalized := normalizeEmail(email); normalized != "" {
			roles[normalized] = RoleAdmin
		}
	}
	return &Policy{roles: roles}
}

type policyFile struct {
	Grants []Grant `yaml:"grants"`
}

// LoadPolicyFile reads a YAML table of the form:
//
//	grants:
//	  - email: owner@example.com
//	    role: admin
func LoadPolicyFile(path string) (*Policy, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("decode policy file: %w", err)
	}
	return NewPolicy(file.Grants)
}

// Merge returns a policy holding both tables; grants in other win.
func (p *Policy) Merge(other *Policy) *Policy {
	roles := make(map[string]Role, p.Len()+other.Len())
	if p != nil {
		for email, role := range p.roles {
			roles[email] = role
		}
	}
	if other != nil {
		for email, role := range other.roles {
			roles[email] = role
		}
	}
	return &Policy{roles: roles}
}

func (p *Policy) Role(email string) (Role, bool) {
	if p == nil {
		return "", false
	}
	role, ok := p.roles[normalizeEmail(email)]
	return role, ok
}

func (p *Policy) Allows(email string, action Action) bool {
	role, ok := p.Role(email)
	return ok && Can(role, action)
}

func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.roles)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
