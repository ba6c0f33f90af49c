// Package seed loads development fixtures for the user and connection
// tables, which are otherwise owned by the surrounding platform.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/npezzotti/go-alumnichat/internal/database"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

var (
	userNamespace       = uuid.NewSHA1(uuid.NameSpaceURL, []byte("alumnichat/users"))
	connectionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("alumnichat/connections"))
)

// Fixture is the YAML document read by Load.
type Fixture struct {
	Users       []User       `yaml:"users"`
	Connections []Connection `yaml:"connections"`
}

type User struct {
	Id    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// Connection links two users by email.
type Connection struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Status string `yaml:"status"`
}

type Result struct {
	Users       int
	Connections int
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}

	return f, nil
}

func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Validate normalizes the fixture in place. Emails are lowercased, missing
// user ids are derived from the email and connection status defaults to
// pending.
func (f *Fixture) Validate() error {
	emails := make(map[string]bool, len(f.Users))
	ids := make(map[string]bool, len(f.Users))

	for i := range f.Users {
		u := &f.Users[i]
		u.Email = normalizeEmail(u.Email)
		if u.Email == "" {
			return fmt.Errorf("user %d: email is required", i)
		}
		if emails[u.Email] {
			return fmt.Errorf("user %d: duplicate email %s", i, u.Email)
		}
		emails[u.Email] = true

		switch u.Role {
		case types.RoleStudent, types.RoleAlumni, types.RoleAdmin:
		default:
			return fmt.Errorf("user %s: unknown role %q", u.Email, u.Role)
		}

		if u.Name == "" {
			u.Name, _, _ = strings.Cut(u.Email, "@")
		}
		if u.Id == "" {
			u.Id = UserId(u.Email)
		}
		if ids[u.Id] {
			return fmt.Errorf("user %s: duplicate id %s", u.Email, u.Id)
		}
		ids[u.Id] = true
	}

	pairs := make(map[string]bool, len(f.Connections))
	for i := range f.Connections {
		c := &f.Connections[i]
		c.From, c.To = normalizeEmail(c.From), normalizeEmail(c.To)

		if !emails[c.From] {
			return fmt.Errorf("connection %d: unknown user %q", i, c.From)
		}
		if !emails[c.To] {
			return fmt.Errorf("connection %d: unknown user %q", i, c.To)
		}
		if c.From == c.To {
			return fmt.Errorf("connection %d: user %s cannot connect to themselves", i, c.From)
		}

		if c.Status == "" {
			c.Status = database.ConnectionPending
		}
		switch c.Status {
		case database.ConnectionPending, database.ConnectionAccepted, database.ConnectionRejected:
		default:
			return fmt.Errorf("connection %d: unknown status %q", i, c.Status)
		}

		key := pairKey(c.From, c.To)
		if pairs[key] {
			return fmt.Errorf("connection %d: duplicate connection between %s and %s", i, c.From, c.To)
		}
		pairs[key] = true
	}

	return nil
}

// Apply upserts every user and connection of a validated fixture. Running
// it twice leaves the tables unchanged.
func Apply(ctx context.Context, repo database.FixtureRepository, f *Fixture) (Result, error) {
	var res Result
	byEmail := make(map[string]string, len(f.Users))

	for _, u := range f.Users {
		stored, err := repo.UpsertUser(ctx, database.UpsertUserParams{
			Id:    u.Id,
			Name:  u.Name,
			Email: u.Email,
			Role:  u.Role,
		})
		if err != nil {
			return res, fmt.Errorf("upsert user %s: %w", u.Email, err)
		}
		byEmail[u.Email] = stored.Id
		res.Users++
	}

	for _, c := range f.Connections {
		from, to := byEmail[c.From], byEmail[c.To]
		_, err := repo.UpsertConnection(ctx, database.UpsertConnectionParams{
			Id:         ConnectionId(from, to),
			SenderId:   from,
			ReceiverId: to,
			Status:     c.Status,
		})
		if err != nil {
			return res, fmt.Errorf("upsert connection %s -> %s: %w", c.From, c.To, err)
		}
		res.Connections++
	}

	return res, nil
}

// UserId derives a stable id from an email address.
func UserId(email string) string {
	return uuid.NewSHA1(userNamespace, []byte(normalizeEmail(email))).String()
}

// ConnectionId derives a stable id for the unordered pair of users.
func ConnectionId(a, b string) string {
	return uuid.NewSHA1(connectionNamespace, []byte(pairKey(a, b))).String()
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
