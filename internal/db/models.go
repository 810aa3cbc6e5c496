package db

import (
	"time"
)

type Match struct {
	ID             string
	ExternalID     string
	CompetitionID  string
	Season         int64
	RoundLabel     string
	HomeTeam       string
	AwayTeam       string
	Kickoff        time.Time
	HomeGoals      *int64
	AwayGoals      *int64
	Status         string
	ProviderStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CompetitionWithCount struct {
	ID              string
	Name            string
	Country         string
	FinishedMatches int64
}
