package server

import "time"

// User is a registered user of the demo API.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity holds the request counters kept in AppState.
type Activity struct {
	TotalVisits  int64     `json:"totalVisits"`
	ActiveUsers  int       `json:"activeUsers"`
	LastActivity time.Time `json:"lastActivity"`
}

// AppState is the application state held by the server's state.Store.
type AppState struct {
	Users []User   `json:"users"`
	Stats Activity `json:"stats"`
}

func (s AppState) findUser(id string) (User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (s AppState) withUser(u User, at time.Time) AppState {
	users := make([]User, 0, len(s.Users)+1)
	users = append(users, s.Users...)
	s.Users = append(users, u)
	s.Stats.ActiveUsers = len(s.Users)
	s.Stats.LastActivity = at
	return s
}

func (s AppState) withVisit(at time.Time) AppState {
	s.Stats.TotalVisits++
	s.Stats.LastActivity = at
	return s
}

// DemoUsers are seeded into a fresh server when enabled.
func DemoUsers(now time.Time) []User {
	return []User{
		{ID: "1", Name: "Alice", Email: "alice@example.com", CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "2", Name: "Bob", Email: "bob@example.com", CreatedAt: now.Add(-12 * time.Hour)},
	}
}
