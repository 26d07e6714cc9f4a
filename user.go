package dofigen

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// User is a Dockerfile USER, parsed from "name[:group]" or numeric form.
type User struct {
	User  string `yaml:"user" json:"user"`
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
}

// String renders the canonical "user[:group]" textual form.
func (u User) String() string {
	if u.Group == "" {
		return u.User
	}
	return u.User + ":" + u.Group
}

// ParseUser parses the "user[:group]" shortcut grammar. Both user and
// group may be names or numeric IDs.
func ParseUser(s string) (User, error) {
	if s == "" {
		return User{}, errors.New("empty user")
	}
	name, group, _ := strings.Cut(s, ":")
	return User{User: name, Group: group}, nil
}

// IsNumeric reports whether the user component is a plain numeric UID.
func (u User) IsNumeric() bool {
	_, err := strconv.Atoi(u.User)
	return err == nil
}

func (u *User) UnmarshalAny(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := ParseUser(val)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case int, int64, uint64, float64:
		n, _ := asInt(val)
		*u = User{User: strconv.Itoa(n)}
		return nil
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return err
		}
		type plain User
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*u = User(p)
		return nil
	default:
		return errors.Errorf("cannot decode user from %T", v)
	}
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return u.UnmarshalAny(raw)
}
