package models

import "time"

// Person is a sample business entity served through the dispatch gateway.
type Person struct {
	ID        string
	Name      string
	Email     string
	Aliases   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
