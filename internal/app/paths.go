package app

import (
	"strconv"

	"festival-mileage/internal/docstore"
)

const (
	usersCollection      = "users"
	boothsCollection     = "booths"
	presenceCollection   = "presence"
	whitelistCollection  = "whitelist"
	classStatsCollection = "classStats"
	redemptionFlagPath   = "settings/redemption"
)

func userPath(uid string) string {
	return docstore.Join(usersCollection, uid)
}

func visitMarkerPath(uid string, boothIdx int) string {
	return docstore.Join(usersCollection, uid, "boothVisits", strconv.Itoa(boothIdx))
}

func quizMarkerPath(uid string, boothIdx int) string {
	return docstore.Join(usersCollection, uid, "quizRewards", strconv.Itoa(boothIdx))
}

func logPath(uid, id string) string {
	return docstore.Join(usersCollection, uid, "logs", id)
}

func boothPath(docID string) string {
	return docstore.Join(boothsCollection, docID)
}

func adminPath(uid string) string {
	return docstore.Join("admins", uid)
}

func presencePath(uid string) string {
	return docstore.Join(presenceCollection, uid)
}

func whitelistPath(studentID string) string {
	return docstore.Join(whitelistCollection, studentID)
}

// RoundScope addresses one live vote: its current state document, the shared
// ballot collection and the per-round snapshots. It is passed explicitly to
// every vote component instead of living in a package-level singleton.
type RoundScope struct {
	Root string
}

// DefaultRoundScope is the scope clients subscribe to.
var DefaultRoundScope = RoundScope{Root: "liveVote/current"}

func (s RoundScope) CurrentPath() string { return s.Root }

func (s RoundScope) VotesCollection() string { return docstore.Join(s.Root, "votes") }

func (s RoundScope) BallotPath(uid string) string { return docstore.Join(s.Root, "votes", uid) }

func (s RoundScope) RoundPath(round int) string {
	return docstore.Join(s.Root, "rounds", strconv.Itoa(round))
}
