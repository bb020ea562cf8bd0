package models

import (
	"time"

	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

// Competition distances.
const (
	Distance18 = 18
	Distance25 = 25
)

// DefaultMinScoresForRK is the number of regio scores needed to qualify for the RK.
const DefaultMinScoresForRK = 6

// PhaseFlag names one of the one-way switches on a Competition.
type PhaseFlag string

const (
	FlagClassBoundariesFixed PhaseFlag = "class_boundaries_fixed"
	FlagRegioClosed          PhaseFlag = "regio_closed"
	FlagRKIndivClosed        PhaseFlag = "rk_indiv_closed"
	FlagRKTeamsClosed        PhaseFlag = "rk_teams_closed"
	FlagBKIndivClosed        PhaseFlag = "bk_indiv_closed"
	FlagBKTeamsClosed        PhaseFlag = "bk_teams_closed"
)

// flagRequires lists the flag that must be set before a flag may be set.
var flagRequires = map[PhaseFlag]PhaseFlag{
	FlagRegioClosed:   FlagClassBoundariesFixed,
	FlagRKIndivClosed: FlagRegioClosed,
	FlagRKTeamsClosed: FlagRegioClosed,
	FlagBKIndivClosed: FlagRKIndivClosed,
	FlagBKTeamsClosed: FlagRKTeamsClosed,
}

// Valid reports whether f is a known flag.
func (f PhaseFlag) Valid() bool {
	if f == FlagClassBoundariesFixed {
		return true
	}
	_, ok := flagRequires[f]
	return ok
}

// Phase is the computed position of a competition in its season.
type Phase string

const (
	PhaseSetup     Phase = "SETUP"
	PhaseRegioOpen Phase = "REGIO_OPEN"
	PhaseRKOpen    Phase = "RK_OPEN"
	PhaseBKOpen    Phase = "BK_OPEN"
	PhaseDone      Phase = "DONE"
)

// Competition is one season of one distance.
type Competition struct {
	ID                   int64  `db:"id" json:"id"`
	StartYear            int    `db:"start_year" json:"startYear"`
	Distance             int    `db:"distance" json:"distance"`
	Name                 string `db:"name" json:"name"`
	MinScoresForRK       int    `db:"min_scores_rk" json:"minScoresForRk"`
	ClassBoundariesFixed bool   `db:"class_boundaries_fixed" json:"classBoundariesFixed"`
	RegioClosed          bool   `db:"regio_closed" json:"regioClosed"`
	RKIndivClosed        bool   `db:"rk_indiv_closed" json:"rkIndivClosed"`
	RKTeamsClosed        bool   `db:"rk_teams_closed" json:"rkTeamsClosed"`
	BKIndivClosed        bool   `db:"bk_indiv_closed" json:"bkIndivClosed"`
	BKTeamsClosed        bool   `db:"bk_teams_closed" json:"bkTeamsClosed"`
}

// Flag returns the value of f.
func (c *Competition) Flag(f PhaseFlag) bool {
	switch f {
	case FlagClassBoundariesFixed:
		return c.ClassBoundariesFixed
	case FlagRegioClosed:
		return c.RegioClosed
	case FlagRKIndivClosed:
		return c.RKIndivClosed
	case FlagRKTeamsClosed:
		return c.RKTeamsClosed
	case FlagBKIndivClosed:
		return c.BKIndivClosed
	case FlagBKTeamsClosed:
		return c.BKTeamsClosed
	}
	return false
}

func (c *Competition) setFlag(f PhaseFlag) {
	switch f {
	case FlagClassBoundariesFixed:
		c.ClassBoundariesFixed = true
	case FlagRegioClosed:
		c.RegioClosed = true
	case FlagRKIndivClosed:
		c.RKIndivClosed = true
	case FlagRKTeamsClosed:
		c.RKTeamsClosed = true
	case FlagBKIndivClosed:
		c.BKIndivClosed = true
	case FlagBKTeamsClosed:
		c.BKTeamsClosed = true
	}
}

// CanTransition checks whether f may be set now. It returns
// ErrAlreadyInState when f is already set and ErrPhasePrecondition when
// its predecessor is not.
func (c *Competition) CanTransition(f PhaseFlag) error {
	if !f.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown phase flag "+string(f))
	}
	if c.Flag(f) {
		return appErrors.ErrAlreadyInState
	}
	if req, ok := flagRequires[f]; ok && !c.Flag(req) {
		return appErrors.Clone(appErrors.ErrPhasePrecondition, string(f)+" requires "+string(req))
	}
	return nil
}

// Transition sets f after CanTransition succeeds. Flags never go back to false.
func (c *Competition) Transition(f PhaseFlag) error {
	if err := c.CanTransition(f); err != nil {
		return err
	}
	c.setFlag(f)
	return nil
}

// Phase computes the season phase from the flags.
func (c *Competition) Phase() Phase {
	switch {
	case !c.ClassBoundariesFixed:
		return PhaseSetup
	case !c.RegioClosed:
		return PhaseRegioOpen
	case !c.RKIndivClosed || !c.RKTeamsClosed:
		return PhaseRKOpen
	case !c.BKIndivClosed || !c.BKTeamsClosed:
		return PhaseBKOpen
	default:
		return PhaseDone
	}
}

// SeasonStartYear is the first year of the season a new competition is opened for.
// The BKO opens the next season during the spring of the running one.
func SeasonStartYear(now time.Time) int {
	return now.Year()
}
