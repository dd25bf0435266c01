package main

import (
	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
)

// Member is the sample document the commands operate on.
type Member struct {
	repository.Base `bson:",inline"`
	Title           string `json:"title" bson:"title"`
	UserName        string `json:"user_name" bson:"user_name"`
	Email           string `json:"email" bson:"email"`
	Status          int    `json:"status" bson:"status"`
}

const (
	statusAvailable = 1
	statusInactive  = 2
)

type membersRepo = *repository.Repository[Member, *Member]

// newMembers opens a Member repository with the configured mode. Metrics are
// recorded when obs is non-nil.
func newMembers(client store.Client, obs repository.Observer) membersRepo {
	rc := repository.DefaultConfig()
	rc.ReadOnly = cfg.ReadOnly
	if obs != nil {
		rc.Observer = obs
	}
	members := repository.New[Member](client, rc)
	members.OnCreate(func(m *Member) {
		m.Status = statusAvailable
	})
	return members
}
