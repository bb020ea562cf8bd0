package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

// taskDeadline is how long a role gets to act on a task created by a phase change.
const taskDeadline = 7 * 24 * time.Hour

// RosterConfig holds the federation roster rules.
type RosterConfig struct {
	Cap          int
	DefaultLimit int
}

func (c RosterConfig) withDefaults() RosterConfig {
	if c.Cap <= 0 {
		c.Cap = models.RosterCap
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = models.DefaultIndivLimit
	}
	return c
}

// PhaseService runs the competition phase transitions. Every handler runs in one
// transaction and persists its flag with a compare-and-set, so a repeated
// delivery finds the flag set and does nothing.
type PhaseService struct {
	tx       TxFunc
	notifier *TaskNotifier
	logger   *zap.Logger
	roster   RosterConfig
	clock    clock
}

// NewPhaseService constructs the service.
func NewPhaseService(tx TxFunc, notifier *TaskNotifier, cfg RosterConfig, logger *zap.Logger) *PhaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhaseService{tx: tx, notifier: notifier, logger: logger, roster: cfg.withDefaults()}
}

func missingRef(name string) error {
	return appErrors.Clone(appErrors.ErrValidation, "mutation has no "+name)
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return err
}

// OpenSeason creates the 18m and 25m competitions of the new season unless they exist.
func (s *PhaseService) OpenSeason(ctx context.Context, m *models.CompetitionMutation) error {
	year := models.SeasonStartYear(s.clock.now())
	return s.tx(ctx, func(st Stores) error {
		exists, err := st.Competitions.ExistsForYear(ctx, year)
		if err != nil {
			return err
		}
		if exists {
			s.logger.Info("season already open", zap.Int("start_year", year))
			return nil
		}
		created, err := st.Competitions.CreateSeason(ctx, year)
		if err != nil {
			return err
		}
		s.logger.Info("season opened", zap.Int("start_year", year), zap.Int("competitions", len(created)))
		return s.log(ctx, st, m.Actor, fmt.Sprintf("Competities van seizoen %d/%d aangemaakt", year, year+1))
	})
}

// FixSeedAverages returns the handler recomputing the seed averages of one distance.
func (s *PhaseService) FixSeedAverages(distance int) func(context.Context, *models.CompetitionMutation) error {
	return func(ctx context.Context, m *models.CompetitionMutation) error {
		return s.tx(ctx, func(st Stores) error {
			rows, err := st.Competitions.RecomputeSeedAverages(ctx, distance)
			if err != nil {
				return err
			}
			s.logger.Info("seed averages recomputed", zap.Int("distance", distance), zap.Int64("rows", rows))
			return s.log(ctx, st, m.Actor, fmt.Sprintf("Aanvangsgemiddelden %dm vastgesteld", distance))
		})
	}
}

// FixClassBoundaries freezes the class boundaries of a competition.
func (s *PhaseService) FixClassBoundaries(ctx context.Context, m *models.CompetitionMutation) error {
	return s.tx(ctx, func(st Stores) error {
		comp, changed, err := s.transition(ctx, st, m.CompetitionID, models.FlagClassBoundariesFixed)
		if err != nil || !changed {
			return err
		}
		return s.log(ctx, st, m.Actor, fmt.Sprintf("Klassengrenzen vastgesteld voor %s", comp.Name))
	})
}

// CloseRegioToRK closes the regio competition and builds the RK rosters, converts the
// RK teams, archives the regio results and hands each RKO a task. The flag is set in
// the same transaction, so a failure leaves the competition open for a retry.
func (s *PhaseService) CloseRegioToRK(ctx context.Context, m *models.CompetitionMutation) error {
	var tasks []models.Task
	err := s.tx(ctx, func(st Stores) error {
		comp, changed, err := s.transition(ctx, st, m.CompetitionID, models.FlagRegioClosed)
		if err != nil || !changed {
			return err
		}

		kamps, err := st.Competitions.Kampioenschappen(ctx, comp.ID, models.RoundRK)
		if err != nil {
			return err
		}
		entrants, err := s.buildRKRosters(ctx, st, comp, kamps)
		if err != nil {
			return err
		}
		if err := s.convertRKTeams(ctx, st, comp, entrants); err != nil {
			return err
		}
		archived, err := st.Archive.ArchiveRegio(ctx, comp.ID)
		if err != nil {
			return err
		}

		now := s.clock.now()
		for _, kamp := range kamps {
			rayon := kamp.RayonNr
			task := models.Task{
				Role:     models.RoleRKO,
				RayonNr:  &rayon,
				Subject:  "Deelnemerslijst RK vaststellen",
				Body:     fmt.Sprintf("De regiocompetitie van %s is afgesloten. Controleer de deelnemerslijst van het RK in rayon %d.", comp.Name, rayon),
				Deadline: now.Add(taskDeadline),
			}
			if err := st.Tasks.CreateTask(ctx, &task); err != nil {
				return err
			}
			tasks = append(tasks, task)
		}

		s.logger.Info("regio closed",
			zap.Int64("competition_id", comp.ID),
			zap.Int("rk_entrants", len(entrants)),
			zap.Int64("archived", archived))
		return s.log(ctx, st, m.Actor, fmt.Sprintf("Regiocompetitie %s afgesloten; RK deelnemerslijsten aangemaakt", comp.Name))
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, tasks)
	return nil
}

// buildRKRosters replaces the RK entrants of a competition and returns the rows that
// survived the roster cap.
func (s *PhaseService) buildRKRosters(ctx context.Context, st Stores, comp *models.Competition, kamps []models.Kampioenschap) ([]models.KampEntrant, error) {
	kampByRayon := make(map[int]int64, len(kamps))
	for _, k := range kamps {
		kampByRayon[k.RayonNr] = k.ID
	}

	regio, err := st.Roster.RegioEntrants(ctx, comp.ID)
	if err != nil {
		return nil, err
	}
	if _, err := st.Roster.DeleteRound(ctx, comp.ID, models.RoundRK); err != nil {
		return nil, err
	}

	roster := BuildRKRoster(regio, comp.MinScoresForRK, kampByRayon, s.clock.now())
	for _, id := range roster.Skipped {
		s.logger.Warn("regio entrant skipped, no club or rayon", zap.Int64("regio_entrant_id", id))
	}

	kept := make([]models.KampEntrant, 0, len(roster.Entrants))
	for _, group := range SplitByClass(roster.Entrants) {
		limit, err := st.Roster.IndivLimit(ctx, group[0].KampioenschapID, group[0].IndivClassID, s.roster.DefaultLimit)
		if err != nil {
			return nil, err
		}
		PlaceInitial(group, limit, false)
		if err := st.Roster.Insert(ctx, group); err != nil {
			return nil, err
		}
		for _, e := range group {
			if e.Volgorde <= s.roster.Cap {
				kept = append(kept, e)
			}
		}
	}

	for _, k := range kamps {
		if _, err := st.Roster.DeleteBeyond(ctx, k.ID, s.roster.Cap); err != nil {
			return nil, err
		}
		if err := st.Competitions.SetHasRoster(ctx, k.ID); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// convertRKTeams links the provisional team members to the new RK entrants, stores
// the team strengths and orders the teams of each class.
func (s *PhaseService) convertRKTeams(ctx context.Context, st Stores, comp *models.Competition, entrants []models.KampEntrant) error {
	teams, err := st.Teams.RoundTeams(ctx, comp.ID, models.RoundRK)
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		return nil
	}
	provisional, err := st.Teams.ProvisionalMembers(ctx, comp.ID)
	if err != nil {
		return err
	}
	classes, err := st.Competitions.TeamClasses(ctx, comp.ID)
	if err != nil {
		return err
	}
	descriptions := make(map[int64]string, len(classes))
	for _, c := range classes {
		descriptions[c.ID] = c.Description
	}

	links := LinkRKTeams(teams, provisional, entrants)
	byKamp := make(map[int64][]models.KampTeam)
	kampOrder := make([]int64, 0)
	for _, team := range teams {
		for _, entrantID := range links.Members[team.ID] {
			if err := st.Teams.LinkMember(ctx, team.ID, entrantID); err != nil {
				return err
			}
		}
		team.Average = links.Averages[team.ID]
		if err := st.Teams.SetAverage(ctx, team.ID, team.Average); err != nil {
			return err
		}
		if _, ok := byKamp[team.KampioenschapID]; !ok {
			kampOrder = append(kampOrder, team.KampioenschapID)
		}
		byKamp[team.KampioenschapID] = append(byKamp[team.KampioenschapID], team)
	}

	for _, kampID := range kampOrder {
		for _, group := range SplitTeamsByClass(byKamp[kampID]) {
			if err := s.placeTeamGroup(ctx, st, kampID, group, descriptions); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *PhaseService) placeTeamGroup(ctx context.Context, st Stores, kampID int64, group []models.KampTeam, descriptions map[int64]string) error {
	var classID int64
	if group[0].TeamClassID != nil {
		classID = *group[0].TeamClassID
	}
	limit, err := st.Roster.TeamLimit(ctx, kampID, classID, models.DefaultTeamLimitFor(descriptions[classID]))
	if err != nil {
		return err
	}
	PlaceTeams(group, limit)
	return st.Teams.SavePlacement(ctx, group)
}

// OpenRKToBKIndiv closes the individual RK, archives its results and builds the BK roster.
func (s *PhaseService) OpenRKToBKIndiv(ctx context.Context, m *models.CompetitionMutation) error {
	var tasks []models.Task
	err := s.tx(ctx, func(st Stores) error {
		comp, changed, err := s.transition(ctx, st, m.CompetitionID, models.FlagRKIndivClosed)
		if err != nil || !changed {
			return err
		}
		if _, err := st.Archive.ArchiveIndiv(ctx, comp.ID, models.RoundRK); err != nil {
			return err
		}
		bk, err := s.bkKampioenschap(ctx, st, comp.ID)
		if err != nil {
			return err
		}
		finishers, err := st.Roster.RKFinishers(ctx, comp.ID)
		if err != nil {
			return err
		}
		if _, err := st.Roster.DeleteRound(ctx, comp.ID, models.RoundBK); err != nil {
			return err
		}

		entrants := BuildBKIndiv(finishers, comp.Distance, bk.ID, s.clock.now())
		for _, group := range SplitByClass(entrants) {
			limit, err := st.Roster.IndivLimit(ctx, bk.ID, group[0].IndivClassID, s.roster.DefaultLimit)
			if err != nil {
				return err
			}
			PlaceInitial(group, limit, true)
			if err := st.Roster.Insert(ctx, group); err != nil {
				return err
			}
		}
		if _, err := st.Roster.DeleteBeyond(ctx, bk.ID, s.roster.Cap); err != nil {
			return err
		}
		if err := st.Competitions.SetHasRoster(ctx, bk.ID); err != nil {
			return err
		}

		task, err := s.bkoTask(ctx, st, fmt.Sprintf("De RK individueel van %s is afgesloten. Controleer de deelnemerslijst van het BK.", comp.Name))
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
		s.logger.Info("rk indiv closed", zap.Int64("competition_id", comp.ID), zap.Int("bk_entrants", len(entrants)))
		return s.log(ctx, st, m.Actor, fmt.Sprintf("RK individueel %s afgesloten; BK deelnemerslijst aangemaakt", comp.Name))
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, tasks)
	return nil
}

// OpenRKToBKTeams closes the RK teams, archives their results and builds the BK teams.
func (s *PhaseService) OpenRKToBKTeams(ctx context.Context, m *models.CompetitionMutation) error {
	var tasks []models.Task
	err := s.tx(ctx, func(st Stores) error {
		comp, changed, err := s.transition(ctx, st, m.CompetitionID, models.FlagRKTeamsClosed)
		if err != nil || !changed {
			return err
		}
		if _, err := st.Archive.ArchiveTeams(ctx, comp.ID, models.RoundRK); err != nil {
			return err
		}
		bk, err := s.bkKampioenschap(ctx, st, comp.ID)
		if err != nil {
			return err
		}
		candidates, err := st.Teams.BKCandidates(ctx, comp.ID)
		if err != nil {
			return err
		}
		ids := make([]int64, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		members, err := st.Teams.Members(ctx, ids)
		if err != nil {
			return err
		}
		if err := st.Teams.DeleteRound(ctx, comp.ID, models.RoundBK); err != nil {
			return err
		}

		out := BuildBKTeams(candidates, members, comp.Distance, bk.ID)
		for _, skipped := range out.Skipped {
			s.logger.Warn("rk team skipped, club already has two bk teams",
				zap.Int64("team_id", skipped.ID), zap.Int64("club_id", skipped.ClubID))
		}
		classes, err := st.Competitions.TeamClasses(ctx, comp.ID)
		if err != nil {
			return err
		}
		descriptions := make(map[int64]string, len(classes))
		for _, c := range classes {
			descriptions[c.ID] = c.Description
		}
		for _, group := range SplitTeamsByClass(out.Teams) {
			var classID int64
			if group[0].TeamClassID != nil {
				classID = *group[0].TeamClassID
			}
			limit, err := st.Roster.TeamLimit(ctx, bk.ID, classID, models.DefaultTeamLimitFor(descriptions[classID]))
			if err != nil {
				return err
			}
			PlaceTeams(group, limit)
			for i := range group {
				if err := st.Teams.Insert(ctx, &group[i]); err != nil {
					return err
				}
			}
		}

		task, err := s.bkoTask(ctx, st, fmt.Sprintf("De RK teams van %s zijn afgesloten. Controleer de teams van het BK.", comp.Name))
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
		s.logger.Info("rk teams closed", zap.Int64("competition_id", comp.ID), zap.Int("bk_teams", len(out.Teams)))
		return s.log(ctx, st, m.Actor, fmt.Sprintf("RK teams %s afgesloten; BK teams aangemaakt", comp.Name))
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, tasks)
	return nil
}

// CloseBKIndiv closes the individual BK and archives its results.
func (s *PhaseService) CloseBKIndiv(ctx context.Context, m *models.CompetitionMutation) error {
	return s.tx(ctx, func(st Stores) error {
		comp, changed, err := s.transition(ctx, st, m.CompetitionID, models.FlagBKIndivClosed)
		if err != nil || !changed {
			return err
		}
		if _, err := st.Archive.ArchiveIndiv(ctx, comp.ID, models.RoundBK); err != nil {
			return err
		}
		return s.log(ctx, st, m.Actor, fmt.Sprintf("BK individueel %s afgesloten", comp.Name))
	})
}

// CloseBKTeams closes the BK teams and archives their results.
func (s *PhaseService) CloseBKTeams(ctx context.Context, m *models.CompetitionMutation) error {
	return s.tx(ctx, func(st Stores) error {
		comp, changed, err := s.transition(ctx, st, m.CompetitionID, models.FlagBKTeamsClosed)
		if err != nil || !changed {
			return err
		}
		if _, err := st.Archive.ArchiveTeams(ctx, comp.ID, models.RoundBK); err != nil {
			return err
		}
		return s.log(ctx, st, m.Actor, fmt.Sprintf("BK teams %s afgesloten", comp.Name))
	})
}

// transition loads the competition and sets flag. changed is false when the flag
// was already set, either before the load or by a concurrent writer.
func (s *PhaseService) transition(ctx context.Context, st Stores, competitionID *int64, flag models.PhaseFlag) (*models.Competition, bool, error) {
	if competitionID == nil {
		return nil, false, missingRef("competition")
	}
	comp, err := st.Competitions.Get(ctx, *competitionID)
	if err != nil {
		return nil, false, notFound("competition", err)
	}
	if err := comp.Transition(flag); err != nil {
		if errors.Is(err, appErrors.ErrAlreadyInState) {
			s.logger.Info("competition already in state", zap.Int64("competition_id", comp.ID), zap.String("flag", string(flag)))
			return comp, false, nil
		}
		return nil, false, err
	}
	set, err := st.Competitions.SetFlag(ctx, comp.ID, flag)
	if err != nil {
		return nil, false, err
	}
	if !set {
		s.logger.Info("competition flag set concurrently", zap.Int64("competition_id", comp.ID), zap.String("flag", string(flag)))
		return comp, false, nil
	}
	return comp, true, nil
}

func (s *PhaseService) bkKampioenschap(ctx context.Context, st Stores, competitionID int64) (*models.Kampioenschap, error) {
	kamps, err := st.Competitions.Kampioenschappen(ctx, competitionID, models.RoundBK)
	if err != nil {
		return nil, err
	}
	if len(kamps) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "competition has no BK")
	}
	return &kamps[0], nil
}

func (s *PhaseService) bkoTask(ctx context.Context, st Stores, body string) (models.Task, error) {
	task := models.Task{
		Role:     models.RoleBKO,
		Subject:  "Deelnemerslijst BK vaststellen",
		Body:     body,
		Deadline: s.clock.now().Add(taskDeadline),
	}
	if err := st.Tasks.CreateTask(ctx, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *PhaseService) log(ctx context.Context, st Stores, actor, message string) error {
	return st.Tasks.Log(ctx, &models.LogEntry{Actor: actor, Topic: models.LogTopicCompetition, Message: message})
}
