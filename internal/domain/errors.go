package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCompetition = errors.New("invalid competition")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrTraining           = errors.New("training failed")
	ErrUnknownTeam        = errors.New("unknown team")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrProviderTimeout    = errors.New("provider timeout")
	ErrProviderData       = errors.New("provider returned malformed data")
	ErrProviderRequest    = errors.New("provider request failed")
	ErrAllDatesFailed     = errors.New("all sync dates failed")
	ErrRequiredDateFailed = errors.New("required sync date failed")
)

type InsufficientDataError struct {
	CompetitionID string
	Have          int
	Need          int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for competition %s: %d finished matches, need %d", e.CompetitionID, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

type UnknownTeamError struct {
	CompetitionID string
	Team          string
}

func (e *UnknownTeamError) Error() string {
	return fmt.Sprintf("unknown team %q in model for competition %s", e.Team, e.CompetitionID)
}

func (e *UnknownTeamError) Is(target error) bool {
	return target == ErrUnknownTeam
}

func TrainingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTraining, fmt.Sprintf(format, args...))
}
