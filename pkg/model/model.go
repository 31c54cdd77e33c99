// Package model defines API resources decoded by apijson.
//
// Models carry no json tags: apijson's SnakeCase naming maps each field to
// its wire name. All sub-resource references are pointers and stay nil when
// the response omits them.
package model

// Connection references a sub-resource of a parent resource.
type Connection struct {
	URI     string
	Options []string
	Total   int
}

// Connections is the set of sub-resources an API resource links to.
// Any subset may be present, depending on the resource type and the caller's
// permissions. Treat a decoded value as read-only.
//
//nolint:govet // fieldalignment: field order mirrors the API documentation
type Connections struct {
	Videos          *Connection
	Comments        *Connection
	Credits         *Connection
	Likes           *Connection
	Pictures        *Connection
	Texttracks      *Connection
	Activities      *Connection
	Albums          *Connection
	Channels        *Connection
	Feed            *Connection
	Followers       *Connection
	Following       *Connection
	Groups          *Connection
	Portfolios      *Connection
	Shared          *Connection
	Recommendations *Connection
	Related         *Connection
	Replies         *Connection
	Users           *Connection
	Watchlater      *Connection
}

// Metadata is the envelope under which the API returns connections.
type Metadata struct {
	Connections *Connections
}

// Names returns the wire names of the present connections in declaration order.
func (c *Connections) Names() []string {
	if c == nil {
		return nil
	}
	var names []string
	for _, e := range c.entries() {
		if e.conn != nil {
			names = append(names, e.name)
		}
	}
	return names
}

// Get returns the connection with the given wire name, or nil.
func (c *Connections) Get(name string) *Connection {
	if c == nil {
		return nil
	}
	for _, e := range c.entries() {
		if e.name == name {
			return e.conn
		}
	}
	return nil
}

type entry struct {
	conn *Connection
	name string
}

func (c *Connections) entries() []entry {
	return []entry{
		{c.Videos, "videos"},
		{c.Comments, "comments"},
		{c.Credits, "credits"},
		{c.Likes, "likes"},
		{c.Pictures, "pictures"},
		{c.Texttracks, "texttracks"},
		{c.Activities, "activities"},
		{c.Albums, "albums"},
		{c.Channels, "channels"},
		{c.Feed, "feed"},
		{c.Followers, "followers"},
		{c.Following, "following"},
		{c.Groups, "groups"},
		{c.Portfolios, "portfolios"},
		{c.Shared, "shared"},
		{c.Recommendations, "recommendations"},
		{c.Related, "related"},
		{c.Replies, "replies"},
		{c.Users, "users"},
		{c.Watchlater, "watchlater"},
	}
}
