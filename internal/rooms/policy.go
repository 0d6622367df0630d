// Package rooms holds the fixed room catalog and the access rule that gates
// both live membership and history reads.
package rooms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

type RoomID string

// AccessClass is a closed set. Adding a class means extending CanAccess.
type AccessClass int

const (
	Open AccessClass = iota
	Restricted
)

func (c AccessClass) String() string {
	switch c {
	case Open:
		return "open"
	case Restricted:
		return "restricted"
	default:
		return "unknown"
	}
}

type Rule struct {
	Class AccessClass
	Group string
}

type Room struct {
	ID   RoomID `json:"id"`
	Rule Rule   `json:"-"`
}

// DefaultCatalog is the room table the service has always shipped with.
const DefaultCatalog = "introvert:open,extrovert:open,male:group=male,female:group=female"

var ErrInvalidCatalog = errors.New("invalid room catalog")

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	order []RoomID
	rules map[RoomID]Rule
}

func NewCatalog(rooms ...Room) (*Catalog, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("%w: no rooms", ErrInvalidCatalog)
	}
	c := &Catalog{rules: make(map[RoomID]Rule, len(rooms))}
	for _, r := range rooms {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: empty room id", ErrInvalidCatalog)
		}
		if _, dup := c.rules[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate room %q", ErrInvalidCatalog, r.ID)
		}
		switch r.Rule.Class {
		case Open:
			r.Rule.Group = ""
		case Restricted:
			if r.Rule.Group == "" {
				return nil, fmt.Errorf("%w: room %q is restricted without a group", ErrInvalidCatalog, r.ID)
			}
		default:
			return nil, fmt.Errorf("%w: room %q has unknown access class", ErrInvalidCatalog, r.ID)
		}
		c.order = append(c.order, r.ID)
		c.rules[r.ID] = r.Rule
	}
	return c, nil
}

// ParseCatalog reads "id:open,id:group=X" entries.
func ParseCatalog(def string) (*Catalog, error) {
	entries := lo.Filter(strings.Split(def, ","), func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})
	rooms := make([]Room, 0, len(entries))
	for _, entry := range entries {
		id, access, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q has no access class", ErrInvalidCatalog, entry)
		}
		id, access = strings.TrimSpace(id), strings.TrimSpace(access)

		switch {
		case access == "open":
			rooms = append(rooms, Room{ID: RoomID(id), Rule: Rule{Class: Open}})
		case strings.HasPrefix(access, "group="):
			group := strings.TrimPrefix(access, "group=")
			rooms = append(rooms, Room{ID: RoomID(id), Rule: Rule{Class: Restricted, Group: group}})
		default:
			return nil, fmt.Errorf("%w: entry %q has unknown access class %q", ErrInvalidCatalog, entry, access)
		}
	}
	return NewCatalog(rooms...)
}

// CanAccess decides join, send and history access. Unknown rooms are denied.
func (c *Catalog) CanAccess(group string, id RoomID) bool {
	rule, ok := c.rules[id]
	if !ok {
		return false
	}
	switch rule.Class {
	case Open:
		return true
	case Restricted:
		return group == rule.Group
	default:
		return false
	}
}

func (c *Catalog) Contains(id RoomID) bool {
	_, ok := c.rules[id]
	return ok
}

func (c *Catalog) Rule(id RoomID) (Rule, bool) {
	rule, ok := c.rules[id]
	return rule, ok
}

// Rooms returns the catalog in declaration order.
func (c *Catalog) Rooms() []Room {
	return lo.Map(c.order, func(id RoomID, _ int) Room {
		return Room{ID: id, Rule: c.rules[id]}
	})
}

// Groups lists the groups named by restricted rooms, in declaration order.
func (c *Catalog) Groups() []string {
	groups := lo.FilterMap(c.order, func(id RoomID, _ int) (string, bool) {
		rule := c.rules[id]
		return rule.Group, rule.Class == Restricted
	})
	return lo.Uniq(groups)
}
