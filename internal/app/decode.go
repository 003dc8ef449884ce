package app

import (
	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
)

func studentFrom(d docstore.Data) domain.Student {
	return domain.Student{
		Grade:  d.Int("grade"),
		Class:  d.Int("class"),
		Number: d.Int("number"),
		Name:   d.String("name"),
	}
}

func studentData(s domain.Student) docstore.Data {
	return docstore.Data{"grade": s.Grade, "class": s.Class, "number": s.Number, "name": s.Name}
}

func decodeUser(snap docstore.Snapshot) domain.UserAccount {
	d := snap.Data
	base, _ := d.Int64("baseMileage")
	stamps, _ := d.Int64("stampCount")
	multiplier, ok := d.Float("multiplier")
	if !ok {
		multiplier = domain.DefaultMultiplier
	}
	return domain.UserAccount{
		UID:         snap.ID,
		Email:       d.String("email"),
		Student:     studentFrom(d),
		BaseMileage: base,
		Multiplier:  multiplier,
		StampCount:  stamps,
		CreatedAt:   d.Time("createdAt"),
		UpdatedAt:   d.Time("updatedAt"),
	}
}

func decodeBooth(snap docstore.Snapshot) domain.Booth {
	d := snap.Data
	visits, _ := d.Int64("visitCount")
	booth := domain.Booth{
		DocID:       snap.ID,
		Index:       d.Int("boothIdx"),
		Name:        d.String("name"),
		Description: d.String("description"),
		Floor:       d.String("floor"),
		Location:    d.String("location"),
		Category:    d.String("category"),
		ImageURL:    d.String("imageUrl"),
		VisitCount:  visits,
	}
	if q := d.Map("quiz"); q != nil && q.String("question") != "" {
		booth.Quiz = &domain.Quiz{
			Question:      q.String("question"),
			Options:       q.Strings("options"),
			CorrectAnswer: q.Int("correctAnswer"),
		}
	}
	return booth
}

func boothData(b domain.Booth) docstore.Data {
	d := docstore.Data{
		"boothIdx":    b.Index,
		"name":        b.Name,
		"description": b.Description,
		"floor":       b.Floor,
		"location":    b.Location,
		"category":    b.Category,
		"imageUrl":    b.ImageURL,
		"visitCount":  b.VisitCount,
	}
	if b.Quiz != nil {
		d["quiz"] = map[string]any{
			"question":      b.Quiz.Question,
			"options":       append([]string(nil), b.Quiz.Options...),
			"correctAnswer": b.Quiz.CorrectAnswer,
		}
	}
	return d
}

func decodeVoteState(snap docstore.Snapshot) domain.LiveVoteState {
	if !snap.Exists {
		return domain.LiveVoteState{}
	}
	d := snap.Data
	return domain.LiveVoteState{
		Active:     d.Bool("active"),
		Round:      d.Int("round"),
		Candidates: d.Strings("candidates"),
		StartedAt:  d.Time("startedAt"),
		Duration:   d.Int("duration"),
		Ended:      d.Bool("ended"),
	}
}

func decodeRound(snap docstore.Snapshot) domain.RoundResult {
	d := snap.Data
	r := domain.RoundResult{
		Round:       d.Int("round"),
		Candidates:  d.Strings("candidates"),
		TotalVotes:  d.Int("totalVotes"),
		WinnerIndex: d.Int("winnerIndex"),
		WinnerName:  d.String("winnerName"),
		StartedAt:   d.Time("startedAt"),
		EndedAt:     d.Time("endedAt"),
	}
	counts := d.Ints("counts")
	for i := 0; i < len(counts) && i < 2; i++ {
		r.Counts[i] = counts[i]
	}
	return r
}

func decodeBallot(snap docstore.Snapshot) (domain.Ballot, bool) {
	d := snap.Data
	idx, ok := d.Int64("choiceIndex")
	if !ok {
		return domain.Ballot{}, false
	}
	return domain.Ballot{
		UID:         snap.ID,
		ChoiceIndex: int(idx),
		ChoiceName:  d.String("choiceName"),
		Round:       d.Int("round"),
		VotedAt:     d.Time("votedAt"),
	}, true
}

func decodePresence(snap docstore.Snapshot) domain.PresenceRecord {
	d := snap.Data
	return domain.PresenceRecord{
		UID:         snap.ID,
		State:       d.String("state"),
		LastChanged: d.Time("lastChanged"),
		Student:     studentFrom(d),
	}
}

func decodeWhitelist(snap docstore.Snapshot) domain.WhitelistEntry {
	d := snap.Data
	return domain.WhitelistEntry{
		StudentID: snap.ID,
		UID:       d.String("uid"),
		Email:     d.String("email"),
		Student:   studentFrom(d),
	}
}
