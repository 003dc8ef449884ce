package domain

import "time"

// VisitReward is the base mileage granted once per booth visit.
const VisitReward = 100

// QuizReward is the base mileage granted for a correct booth quiz answer.
const QuizReward = 10

// DefaultMultiplier is the multiplier every new account starts with.
const DefaultMultiplier = 1.0

// Student is the structured identity parsed once from a display name.
type Student struct {
	Grade  int    `json:"grade"`
	Class  int    `json:"class"`
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// UserAccount mirrors users/{uid}.
type UserAccount struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	Student
	BaseMileage int64     `json:"baseMileage"`
	Multiplier  float64   `json:"multiplier"`
	StampCount  int64     `json:"stampCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Display returns the spendable balance shown to the user.
func (u UserAccount) Display() int64 {
	return DisplayMileage(u.BaseMileage, u.Multiplier)
}

// Quiz is the optional booth quiz.
type Quiz struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Booth mirrors booths/{docId}.
type Booth struct {
	DocID       string `json:"docId"`
	Index       int    `json:"boothIdx"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Floor       string `json:"floor,omitempty"`
	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	VisitCount  int64  `json:"visitCount"`
	Quiz        *Quiz  `json:"quiz,omitempty"`
}

// Reason explains why a redemption did not grant mileage.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonDuplicate Reason = "duplicate"
	ReasonDisabled  Reason = "disabled"
)

// RedeemResult is the outcome of a visit redemption.
type RedeemResult struct {
	Granted bool   `json:"granted"`
	Reason  Reason `json:"reason,omitempty"`
	Booth   Booth  `json:"booth"`
}

// RedeemStatus is the externally observable state of an NFC redemption.
type RedeemStatus string

const (
	StatusLoading   RedeemStatus = "loading"
	StatusSuccess   RedeemStatus = "success"
	StatusDuplicate RedeemStatus = "duplicate"
	StatusUsed      RedeemStatus = "used"
	StatusInvalid   RedeemStatus = "invalid"
	StatusDisabled  RedeemStatus = "disabled"
	StatusError     RedeemStatus = "error"
)

// QuizResult is the outcome of a quiz answer.
type QuizResult struct {
	Duplicate bool  `json:"duplicate"`
	Correct   bool  `json:"correct"`
	Awarded   int64 `json:"awarded"`
}

// SpendResult is the outcome of a spend transaction.
type SpendResult struct {
	OK         bool  `json:"ok"`
	Debited    int64 `json:"debited"`
	NewBase    int64 `json:"newBase"`
	NewDisplay int64 `json:"newDisplay"`
}

// LiveVoteState mirrors the current round document.
type LiveVoteState struct {
	Active     bool      `json:"active"`
	Round      int       `json:"round"`
	Candidates []string  `json:"candidates"`
	StartedAt  time.Time `json:"startedAt"`
	Duration   int       `json:"duration"`
	Ended      bool      `json:"ended"`
}

// Deadline is the instant the round stops accepting ballots.
func (s LiveVoteState) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.Duration) * time.Second)
}

// LiveVoteView is what a client renders on each poll tick.
type LiveVoteView struct {
	Active     bool          `json:"active"`
	Round      int           `json:"round"`
	Candidates []string      `json:"candidates"`
	StartedAt  time.Time     `json:"startedAt"`
	Remaining  time.Duration `json:"-"`
	RemainMS   int64         `json:"remainingMs"`
	Ended      bool          `json:"ended"`
}

// RoundResult mirrors liveVote/current/rounds/{round}.
type RoundResult struct {
	Round       int       `json:"round"`
	Candidates  []string  `json:"candidates"`
	Counts      [2]int    `json:"counts"`
	TotalVotes  int       `json:"totalVotes"`
	WinnerIndex int       `json:"winnerIndex"`
	WinnerName  string    `json:"winnerName"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
}

// Ballot mirrors liveVote/current/votes/{uid}.
type Ballot struct {
	UID         string    `json:"uid"`
	ChoiceIndex int       `json:"choiceIndex"`
	ChoiceName  string    `json:"choiceName"`
	Round       int       `json:"round"`
	VotedAt     time.Time `json:"votedAt"`
}

// Presence states.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// PresenceRecord mirrors presence/{uid}.
type PresenceRecord struct {
	UID         string    `json:"uid"`
	State       string    `json:"state"`
	LastChanged time.Time `json:"lastChanged"`
	Student
}

// WhitelistEntry mirrors whitelist/{studentId}.
type WhitelistEntry struct {
	StudentID string `json:"studentId"`
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Student
}

// ClassStat is one row of the class ranking.
type ClassStat struct {
	Grade   int     `json:"grade"`
	Class   int     `json:"class"`
	Members int     `json:"members"`
	Total   int64   `json:"total"`
	Average float64 `json:"average"`
}

// ClassSnapshot is a frozen class ranking.
type ClassSnapshot struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	Winner    *ClassStat  `json:"winner"`
	Top3      []ClassStat `json:"top3"`
	Rows      []ClassStat `json:"rows"`
}
