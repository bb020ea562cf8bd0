package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// KampService applies the roster mutations of a running championship. The queue is
// the only writer of roster rows, so no row locks are taken.
type KampService struct {
	tx     TxFunc
	logger *zap.Logger
	roster RosterConfig
	clock  clock
}

// NewKampService constructs the service.
func NewKampService(tx TxFunc, cfg RosterConfig, logger *zap.Logger) *KampService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KampService{tx: tx, logger: logger, roster: cfg.withDefaults()}
}

// CutIndiv applies a new limit to one individual class and re-places its entrants.
func (s *KampService) CutIndiv(ctx context.Context, m *models.CompetitionMutation) error {
	if m.KampioenschapID == nil || m.IndivClassID == nil || m.CutOld == nil || m.CutNew == nil {
		return missingRef("kampioenschap, class or cut")
	}
	kampID, classID, oldCut, newCut := *m.KampioenschapID, *m.IndivClassID, *m.CutOld, *m.CutNew
	if oldCut == newCut {
		return nil
	}
	return s.tx(ctx, func(st Stores) error {
		if newCut > oldCut && newCut == s.roster.DefaultLimit {
			if err := st.Roster.DeleteIndivLimit(ctx, kampID, classID); err != nil {
				return err
			}
		} else if err := st.Roster.SetIndivLimit(ctx, kampID, classID, newCut); err != nil {
			return err
		}

		rows, err := st.Roster.ClassEntrants(ctx, kampID, classID)
		if err != nil {
			return err
		}
		ChangeCut(rows, oldCut, newCut)
		if err := st.Roster.SavePlacement(ctx, rows); err != nil {
			return err
		}
		s.logger.Info("indiv cut changed", zap.Int64("kampioenschap_id", kampID), zap.Int64("class_id", classID),
			zap.Int("old", oldCut), zap.Int("new", newCut))
		return st.Tasks.Log(ctx, &models.LogEntry{Actor: m.Actor, Topic: models.LogTopicCompetition,
			Message: fmt.Sprintf("Limiet klasse %d van kampioenschap %d aangepast van %d naar %d", classID, kampID, oldCut, newCut)})
	})
}

// CutTeam stores a new limit for one team class and renumbers its teams.
func (s *KampService) CutTeam(ctx context.Context, m *models.CompetitionMutation) error {
	if m.KampioenschapID == nil || m.TeamClassID == nil || m.CutNew == nil {
		return missingRef("kampioenschap, team class or cut")
	}
	kampID, classID, newCut := *m.KampioenschapID, *m.TeamClassID, *m.CutNew
	return s.tx(ctx, func(st Stores) error {
		if err := st.Roster.SetTeamLimit(ctx, kampID, classID, newCut); err != nil {
			return err
		}
		if err := s.renumberTeams(ctx, st, kampID, classID); err != nil {
			return err
		}
		return st.Tasks.Log(ctx, &models.LogEntry{Actor: m.Actor, Topic: models.LogTopicCompetition,
			Message: fmt.Sprintf("Limiet teamklasse %d van kampioenschap %d aangepast naar %d", classID, kampID, newCut)})
	})
}

// SignOn marks an entrant as participating.
func (s *KampService) SignOn(ctx context.Context, m *models.CompetitionMutation) error {
	return s.changeEntrant(ctx, m, SignOn)
}

// SignOff marks an entrant as not participating and lets the first reserve move up.
func (s *KampService) SignOff(ctx context.Context, m *models.CompetitionMutation) error {
	return s.changeEntrant(ctx, m, SignOff)
}

func (s *KampService) changeEntrant(ctx context.Context, m *models.CompetitionMutation, apply func([]models.KampEntrant, int64, int, string, time.Time) error) error {
	if m.ParticipantID == nil {
		return missingRef("participant")
	}
	return s.tx(ctx, func(st Stores) error {
		entrant, err := st.Roster.Get(ctx, *m.ParticipantID)
		if err != nil {
			return notFound("entrant", err)
		}
		rows, err := st.Roster.ClassEntrants(ctx, entrant.KampioenschapID, entrant.IndivClassID)
		if err != nil {
			return err
		}
		limit, err := st.Roster.IndivLimit(ctx, entrant.KampioenschapID, entrant.IndivClassID, s.roster.DefaultLimit)
		if err != nil {
			return err
		}
		if err := apply(rows, entrant.ID, limit, m.Actor, s.clock.now()); err != nil {
			return err
		}
		return st.Roster.SavePlacement(ctx, rows)
	})
}

// MoveClass moves an entrant to another class of the same championship. The target
// class is placed again from scratch and the gap in the old class is closed.
func (s *KampService) MoveClass(ctx context.Context, m *models.CompetitionMutation) error {
	if m.ParticipantID == nil || m.IndivClassID == nil {
		return missingRef("participant or class")
	}
	target := *m.IndivClassID
	return s.tx(ctx, func(st Stores) error {
		entrant, err := st.Roster.Get(ctx, *m.ParticipantID)
		if err != nil {
			return notFound("entrant", err)
		}
		if entrant.IndivClassID == target {
			return nil
		}
		from := entrant.IndivClassID
		kampID := entrant.KampioenschapID

		old, err := st.Roster.ClassEntrants(ctx, kampID, from)
		if err != nil {
			return err
		}
		remaining := make([]models.KampEntrant, 0, len(old))
		for _, e := range old {
			if e.ID != entrant.ID {
				remaining = append(remaining, e)
			}
		}
		closeGaps(remaining)

		rows, err := st.Roster.ClassEntrants(ctx, kampID, target)
		if err != nil {
			return err
		}
		entrant.IndivClassID = target
		entrant.AppendLog(fmt.Sprintf("[%s] Verplaatst van klasse %d naar klasse %d door %s", logStamp(s.clock.now()), from, target, m.Actor))
		rows = append(rows, *entrant)
		limit, err := st.Roster.IndivLimit(ctx, kampID, target, s.roster.DefaultLimit)
		if err != nil {
			return err
		}
		PlaceInitial(rows, limit, false)

		if err := st.Roster.SavePlacement(ctx, remaining); err != nil {
			return err
		}
		return st.Roster.SavePlacement(ctx, rows)
	})
}

// closeGaps renumbers volgorde 1..n in the current order and recomputes the ranks.
func closeGaps(rows []models.KampEntrant) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Volgorde < rows[j].Volgorde })
	for i := range rows {
		rows[i].Volgorde = i + 1
	}
	RenumberRanks(rows)
}

// TeamsRenumber gives the teams of one class their rank in volgorde order.
func (s *KampService) TeamsRenumber(ctx context.Context, m *models.CompetitionMutation) error {
	if m.KampioenschapID == nil || m.TeamClassID == nil {
		return missingRef("kampioenschap or team class")
	}
	return s.tx(ctx, func(st Stores) error {
		return s.renumberTeams(ctx, st, *m.KampioenschapID, *m.TeamClassID)
	})
}

func (s *KampService) renumberTeams(ctx context.Context, st Stores, kampID, classID int64) error {
	teams, err := st.Teams.ClassTeams(ctx, kampID, classID)
	if err != nil {
		return err
	}
	RenumberTeamRanks(teams)
	return st.Teams.SavePlacement(ctx, teams)
}
