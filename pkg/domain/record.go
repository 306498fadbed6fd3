// Package domain defines the pedigree record, its persistence contract, and the
// rule evaluation primitives shared by the epibot stores and service layer.
package domain

import (
	"strings"
	"time"
)

// Sex enumerates the recorded sex of the primary subject.
type Sex string

// Supported sex values. The zero value is SexUnspecified.
const (
	SexUnspecified Sex = ""
	SexMale        Sex = "male"
	SexFemale      Sex = "female"
)

// Valid reports whether s is one of the enumerated values.
func (s Sex) Valid() bool {
	switch s {
	case SexUnspecified, SexMale, SexFemale:
		return true
	default:
		return false
	}
}

// ParseSex maps a stored value back to a Sex, treating unknown values as unspecified.
func ParseSex(v string) Sex {
	s := Sex(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return SexUnspecified
	}
	return s
}

// UserID identifies the chat user owning a session or a record.
type UserID int64

// Record is a completed pedigree entry: a dog, its two parents, and optional
// reference links into an external pedigree database.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Link       string    `json:"link,omitempty"`
	MotherName string    `json:"mother_name,omitempty"`
	MotherLink string    `json:"mother_link,omitempty"`
	FatherName string    `json:"father_name,omitempty"`
	FatherLink string    `json:"father_link,omitempty"`
	Sex        Sex       `json:"sex,omitempty"`
	BirthDate  string    `json:"birth_date,omitempty"`
	OwnerID    UserID    `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasLink reports whether any of the three reference links is present.
func (r Record) HasLink() bool {
	return r.Link != "" || r.MotherLink != "" || r.FatherLink != ""
}

// Eligible reports whether the record carries enough data to be persisted:
// a subject name plus either a reference link or both parent names.
func (r Record) Eligible() bool {
	if strings.TrimSpace(r.Name) == "" {
		return false
	}
	return r.HasLink() || (r.MotherName != "" && r.FatherName != "")
}

// Summary projects the record onto the fields shown in search result lists.
func (r Record) Summary() RecordSummary {
	return RecordSummary{
		ID:         r.ID,
		Name:       r.Name,
		MotherName: r.MotherName,
		FatherName: r.FatherName,
		CreatedAt:  r.CreatedAt,
	}
}

// RecordSummary is the list-view projection of a Record.
type RecordSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MotherName string    `json:"mother_name,omitempty"`
	FatherName string    `json:"father_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
