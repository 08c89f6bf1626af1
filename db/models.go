package db

import "time"

// Creator is a tracked streamer. Roster-seeded, never created at runtime.
type Creator struct {
	ID                int64
	FirstName         string
	LastName          string
	Emoji             string
	GroupName         string
	ExternalHandle    string
	ExternalChannelID string
}

// DisplayName is "<first> <last>", the form used in buttons and captions.
func (c Creator) DisplayName() string { return c.FirstName + " " + c.LastName }

// User is a chat participant recorded on first contact.
type User struct {
	ID             int64
	FirstName      string
	LastName       string
	Username       string
	ExternalUserID int64
	ChatID         int64
}

// GroupCount is one row of the root menu: how many of a group's members the user follows.
type GroupCount struct {
	Group      string
	Subscribed int
	Total      int
}

// MemberState is a creator plus whether the requesting user follows them.
type MemberState struct {
	Creator
	Subscribed bool
}

// LedgerEntry records that subscribers of CreatorID were notified about StreamID.
type LedgerEntry struct {
	ID             int64
	StreamID       string
	CreatorID      int64
	ScheduledStart time.Time
}

// Counts is a row-count snapshot for the status endpoint.
type Counts struct {
	Creators      int64 `json:"creators"`
	Users         int64 `json:"users"`
	Subscriptions int64 `json:"subscriptions"`
	LedgerEntries int64 `json:"ledger_entries"`
}
