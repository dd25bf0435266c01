package repository

import "time"

// Document is the contract for every stored entity.
//
// The identity is generated client-side before the first save and never
// changes. The modification date is the only "is this document new" signal:
// a document without one has never been saved.
type Document interface {
	// GetID returns the document identity.
	GetID() string

	// SetID assigns the document identity.
	SetID(id string)

	// GetModifyDate returns the last save time, or nil for new documents.
	GetModifyDate() *time.Time

	// SetModifyDate records the save time. A zero t clears it.
	SetModifyDate(t time.Time)
}

// DocumentOf constrains P to be a pointer to T implementing Document.
type DocumentOf[T any] interface {
	*T
	Document
}

// Base implements Document and is meant to be embedded:
//
//	type Member struct {
//	    repository.Base `bson:",inline"`
//	    Title string `json:"title" bson:"title"`
//	}
//
// The bson inline tag is only needed for the MongoDB backend.
type Base struct {
	ID         string     `json:"id" bson:"_id"`
	ModifyDate *time.Time `json:"modify_date,omitempty" bson:"modify_date,omitempty"`
}

func (b *Base) GetID() string             { return b.ID }
func (b *Base) SetID(id string)           { b.ID = id }
func (b *Base) GetModifyDate() *time.Time { return b.ModifyDate }

func (b *Base) SetModifyDate(t time.Time) {
	if t.IsZero() {
		b.ModifyDate = nil
		return
	}
	b.ModifyDate = &t
}
