package constant

import (
	"fmt"
	"meetmate-worker/errs"
)

type Stage string

const (
	StageNew         Stage = "NEW"
	StageTranscribed Stage = "TRANSCRIBED"
	StageSummarized  Stage = "SUMMARIZED"
	StagePublished   Stage = "PUBLISHED"
)

var stageOrder = []Stage{StageNew, StageTranscribed, StageSummarized, StagePublished}

func (s Stage) String() string {
	return string(s)
}

func (s Stage) Valid() bool {
	return s.index() >= 0
}

func (s Stage) Terminal() bool {
	return s == StagePublished
}

// Next returns the only stage s may advance to.
func (s Stage) Next() (Stage, bool) {
	i := s.index()
	if i < 0 || i == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[i+1], true
}

// Previous returns the stage that advances into s.
func (s Stage) Previous() (Stage, bool) {
	i := s.index()
	if i <= 0 {
		return "", false
	}
	return stageOrder[i-1], true
}

// Before reports whether s comes strictly earlier in the pipeline than other.
func (s Stage) Before(other Stage) bool {
	return s.index() >= 0 && s.index() < other.index()
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", v)
	}
	return s, nil
}

// ValidateTransition accepts only a single step forward.
func ValidateTransition(from, to Stage) error {
	next, ok := from.Next()
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, from, to)
	}
	return nil
}

type Platform string

const (
	PlatformZoom       Platform = "zoom"
	PlatformGoogleMeet Platform = "google_meet"
	PlatformTest       Platform = "test"
)

func (p Platform) String() string {
	return string(p)
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformZoom, PlatformGoogleMeet, PlatformTest:
		return true
	}
	return false
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
