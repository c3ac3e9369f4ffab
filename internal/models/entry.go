// Package models defines the domain types for the encyclopedia.
package models

import "time"

// Entry is a titled unit of Markdown content.
type Entry struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryMetadata is the lightweight form returned by listings.
type EntryMetadata struct {
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
