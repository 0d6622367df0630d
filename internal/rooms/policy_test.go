package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog(DefaultCatalog)
	require.NoError(t, err)
	return c
}

func TestCatalog_CanAccess(t *testing.T) {
	c := defaultCatalog(t)
	tests := []struct {
		name  string
		group string
		room  RoomID
		want  bool
	}{
		{"open room for male", "male", "introvert", true},
		{"open room for female", "female", "extrovert", true},
		{"open room for empty group", "", "introvert", true},
		{"restricted room with matching group", "male", "male", true},
		{"restricted room with other group", "male", "female", false},
		{"restricted room is case sensitive", "Female", "female", false},
		{"restricted room with empty group", "", "male", false},
		{"unknown room", "male", "lobby", false},
		{"empty room id", "male", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			req.Equal(tt.want, c.CanAccess(tt.group, tt.room))
			// Same inputs always agree
			req.Equal(tt.want, c.CanAccess(tt.group, tt.room))
		})
	}
}

func TestParseCatalog_KeepsDeclarationOrder(t *testing.T) {
	req := require.New(t)
	c := defaultCatalog(t)

	ids := make([]RoomID, 0)
	for _, r := range c.Rooms() {
		ids = append(ids, r.ID)
	}
	req.Equal([]RoomID{"introvert", "extrovert", "male", "female"}, ids)

	rule, ok := c.Rule("female")
	req.True(ok)
	req.Equal(Restricted, rule.Class)
	req.Equal("female", rule.Group)
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  string
	}{
		{"empty", ""},
		{"missing class", "lobby"},
		{"unknown class", "lobby:private"},
		{"restricted without group", "lobby:group="},
		{"duplicate room", "lobby:open,lobby:open"},
		{"empty id", ":open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog(tt.def)
			require.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestCatalog_RoomsReturnsCopy(t *testing.T) {
	req := require.New(t)
	c := defaultCatalog(t)

	listed := c.Rooms()
	listed[0].ID = "hijacked"

	req.True(c.Contains("introvert"))
	req.False(c.Contains("hijacked"))
}

func TestCatalog_Groups(t *testing.T) {
	req := require.New(t)
	req.Equal([]string{"male", "female"}, defaultCatalog(t).Groups())

	c, err := ParseCatalog("a:group=staff,b:open,c:group=staff,d:group=guests")
	req.NoError(err)
	req.Equal([]string{"staff", "guests"}, c.Groups())
}
