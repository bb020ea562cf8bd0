package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

type competitionStoreStub struct {
	comps        map[int64]*models.Competition
	kamps        []models.Kampioenschap
	indivClasses []models.IndivClass
	teamClasses  []models.TeamClass
	years        map[int]bool
	created      []int
	seedRuns     []int
	hasRoster    []int64
	lostRace     bool
}

func (c *competitionStoreStub) Get(ctx context.Context, id int64) (*models.Competition, error) {
	comp, ok := c.comps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *comp
	return &copy, nil
}

func (c *competitionStoreStub) ExistsForYear(ctx context.Context, year int) (bool, error) {
	return c.years[year], nil
}

func (c *competitionStoreStub) CreateSeason(ctx context.Context, year int) ([]models.Competition, error) {
	if c.years == nil {
		c.years = map[int]bool{}
	}
	c.years[year] = true
	c.created = append(c.created, year)
	return []models.Competition{{StartYear: year, Distance: 18}, {StartYear: year, Distance: 25}}, nil
}

func (c *competitionStoreStub) SetFlag(ctx context.Context, id int64, flag models.PhaseFlag) (bool, error) {
	comp := c.comps[id]
	if c.lostRace || comp.Flag(flag) {
		return false, nil
	}
	return true, comp.Transition(flag)
}

func (c *competitionStoreStub) RecomputeSeedAverages(ctx context.Context, distance int) (int64, error) {
	c.seedRuns = append(c.seedRuns, distance)
	return 3, nil
}

func (c *competitionStoreStub) Kampioenschappen(ctx context.Context, competitionID int64, round models.Round) ([]models.Kampioenschap, error) {
	var out []models.Kampioenschap
	for _, k := range c.kamps {
		if k.CompetitionID == competitionID && k.Round == round {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *competitionStoreStub) GetKampioenschap(ctx context.Context, id int64) (*models.Kampioenschap, error) {
	for _, k := range c.kamps {
		if k.ID == id {
			kamp := k
			return &kamp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *competitionStoreStub) SetHasRoster(ctx context.Context, kampioenschapID int64) error {
	c.hasRoster = append(c.hasRoster, kampioenschapID)
	return nil
}

func (c *competitionStoreStub) IndivClasses(ctx context.Context, competitionID int64) ([]models.IndivClass, error) {
	return c.indivClasses, nil
}

func (c *competitionStoreStub) TeamClasses(ctx context.Context, competitionID int64) ([]models.TeamClass, error) {
	return c.teamClasses, nil
}

func (c *competitionStoreStub) GetTeamClass(ctx context.Context, id int64) (*models.TeamClass, error) {
	for _, tc := range c.teamClasses {
		if tc.ID == id {
			class := tc
			return &class, nil
		}
	}
	return nil, sql.ErrNoRows
}

type rosterStoreStub struct {
	rounds    map[int64]models.Round
	regio     []models.RegioEntrant
	finishers []models.RKFinisher
	entrants  map[int64]models.KampEntrant
	limits    map[[3]int64]int
	nextID    int64
	inserts   int
}

func newRosterStoreStub(rounds map[int64]models.Round) *rosterStoreStub {
	return &rosterStoreStub{rounds: rounds, entrants: map[int64]models.KampEntrant{}, limits: map[[3]int64]int{}}
}

func (r *rosterStoreStub) RegioEntrants(ctx context.Context, competitionID int64) ([]models.RegioEntrant, error) {
	return r.regio, nil
}

func (r *rosterStoreStub) DeleteRound(ctx context.Context, competitionID int64, round models.Round) (int64, error) {
	var n int64
	for id, e := range r.entrants {
		if r.rounds[e.KampioenschapID] == round {
			delete(r.entrants, id)
			n++
		}
	}
	return n, nil
}

func (r *rosterStoreStub) Insert(ctx context.Context, entrants []models.KampEntrant) error {
	for i := range entrants {
		r.nextID++
		r.inserts++
		entrants[i].ID = r.nextID
		r.entrants[r.nextID] = entrants[i]
	}
	return nil
}

func (r *rosterStoreStub) Get(ctx context.Context, id int64) (*models.KampEntrant, error) {
	e, ok := r.entrants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r *rosterStoreStub) ClassEntrants(ctx context.Context, kampioenschapID, classID int64) ([]models.KampEntrant, error) {
	var out []models.KampEntrant
	for _, e := range r.entrants {
		if e.KampioenschapID == kampioenschapID && e.IndivClassID == classID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Volgorde != out[j].Volgorde {
			return out[i].Volgorde < out[j].Volgorde
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *rosterStoreStub) SavePlacement(ctx context.Context, entrants []models.KampEntrant) error {
	for _, e := range entrants {
		r.entrants[e.ID] = e
	}
	return nil
}

func (r *rosterStoreStub) DeleteBeyond(ctx context.Context, kampioenschapID int64, maxVolgorde int) (int64, error) {
	var n int64
	for id, e := range r.entrants {
		if e.KampioenschapID == kampioenschapID && e.Volgorde > maxVolgorde {
			delete(r.entrants, id)
			n++
		}
	}
	return n, nil
}

func (r *rosterStoreStub) RKFinishers(ctx context.Context, competitionID int64) ([]models.RKFinisher, error) {
	return r.finishers, nil
}

func (r *rosterStoreStub) IndivLimit(ctx context.Context, kampioenschapID, classID int64, def int) (int, error) {
	if limit, ok := r.limits[[3]int64{kampioenschapID, classID, 0}]; ok {
		return limit, nil
	}
	return def, nil
}

func (r *rosterStoreStub) TeamLimit(ctx context.Context, kampioenschapID, classID int64, def int) (int, error) {
	if limit, ok := r.limits[[3]int64{kampioenschapID, classID, 1}]; ok {
		return limit, nil
	}
	return def, nil
}

func (r *rosterStoreStub) SetIndivLimit(ctx context.Context, kampioenschapID, classID int64, limit int) error {
	r.limits[[3]int64{kampioenschapID, classID, 0}] = limit
	return nil
}

func (r *rosterStoreStub) DeleteIndivLimit(ctx context.Context, kampioenschapID, classID int64) error {
	delete(r.limits, [3]int64{kampioenschapID, classID, 0})
	return nil
}

func (r *rosterStoreStub) SetTeamLimit(ctx context.Context, kampioenschapID, classID int64, limit int) error {
	r.limits[[3]int64{kampioenschapID, classID, 1}] = limit
	return nil
}

// classRowsOf returns the stored entrants of one class in volgorde order.
func (r *rosterStoreStub) classRowsOf(kampID, classID int64) []models.KampEntrant {
	rows, _ := r.ClassEntrants(context.Background(), kampID, classID)
	return rows
}

type teamStoreStub struct {
	teams       map[int64]models.KampTeam
	rounds      map[int64]models.Round
	provisional []models.ProvisionalMember
	candidates  []models.KampTeam
	links       map[int64][]int64
	nextID      int64
}

func newTeamStoreStub(rounds map[int64]models.Round) *teamStoreStub {
	return &teamStoreStub{teams: map[int64]models.KampTeam{}, rounds: rounds, links: map[int64][]int64{}, nextID: 1000}
}

func (t *teamStoreStub) RoundTeams(ctx context.Context, competitionID int64, round models.Round) ([]models.KampTeam, error) {
	var out []models.KampTeam
	for _, team := range t.teams {
		if t.rounds[team.KampioenschapID] == round {
			out = append(out, team)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *teamStoreStub) ProvisionalMembers(ctx context.Context, competitionID int64) ([]models.ProvisionalMember, error) {
	return t.provisional, nil
}

func (t *teamStoreStub) LinkMember(ctx context.Context, teamID, entrantID int64) error {
	t.links[teamID] = append(t.links[teamID], entrantID)
	return nil
}

func (t *teamStoreStub) Members(ctx context.Context, teamIDs []int64) (map[int64][]int64, error) {
	out := map[int64][]int64{}
	for _, id := range teamIDs {
		if members, ok := t.links[id]; ok {
			out[id] = members
		}
	}
	return out, nil
}

func (t *teamStoreStub) SetAverage(ctx context.Context, teamID int64, average float64) error {
	team := t.teams[teamID]
	team.Average = average
	t.teams[teamID] = team
	return nil
}

func (t *teamStoreStub) DeleteRound(ctx context.Context, competitionID int64, round models.Round) error {
	for id, team := range t.teams {
		if t.rounds[team.KampioenschapID] == round {
			delete(t.teams, id)
		}
	}
	return nil
}

func (t *teamStoreStub) Insert(ctx context.Context, team *models.KampTeam) error {
	t.nextID++
	team.ID = t.nextID
	t.teams[team.ID] = *team
	t.links[team.ID] = append([]int64(nil), team.Members...)
	return nil
}

func (t *teamStoreStub) BKCandidates(ctx context.Context, competitionID int64) ([]models.KampTeam, error) {
	return t.candidates, nil
}

func (t *teamStoreStub) ClassTeams(ctx context.Context, kampioenschapID, classID int64) ([]models.KampTeam, error) {
	var out []models.KampTeam
	for _, team := range t.teams {
		if team.KampioenschapID == kampioenschapID && team.TeamClassID != nil && *team.TeamClassID == classID {
			out = append(out, team)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volgorde < out[j].Volgorde })
	return out, nil
}

func (t *teamStoreStub) SavePlacement(ctx context.Context, teams []models.KampTeam) error {
	for _, team := range teams {
		stored := t.teams[team.ID]
		stored.Volgorde = team.Volgorde
		stored.Rank = team.Rank
		t.teams[team.ID] = stored
	}
	return nil
}

type archiveStoreStub struct {
	regio int
	indiv map[models.Round]int
	teams map[models.Round]int
}

func newArchiveStoreStub() *archiveStoreStub {
	return &archiveStoreStub{indiv: map[models.Round]int{}, teams: map[models.Round]int{}}
}

func (a *archiveStoreStub) ArchiveRegio(ctx context.Context, competitionID int64) (int64, error) {
	a.regio++
	return 10, nil
}

func (a *archiveStoreStub) ArchiveIndiv(ctx context.Context, competitionID int64, round models.Round) (int64, error) {
	a.indiv[round]++
	return 5, nil
}

func (a *archiveStoreStub) ArchiveTeams(ctx context.Context, competitionID int64, round models.Round) (int64, error) {
	a.teams[round]++
	return 2, nil
}

type taskStoreStub struct {
	tasks []models.Task
	logs  []models.LogEntry
}

func (t *taskStoreStub) CreateTask(ctx context.Context, task *models.Task) error {
	task.ID = int64(len(t.tasks) + 1)
	t.tasks = append(t.tasks, *task)
	return nil
}

func (t *taskStoreStub) Log(ctx context.Context, entry *models.LogEntry) error {
	t.logs = append(t.logs, *entry)
	return nil
}

type publisherStub struct {
	payloads []interface{}
	err      error
}

func (p *publisherStub) Publish(ctx context.Context, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func stubTx(st Stores) TxFunc {
	return func(ctx context.Context, fn func(Stores) error) error {
		return fn(st)
	}
}

type phaseFixture struct {
	comps     *competitionStoreStub
	roster    *rosterStoreStub
	teams     *teamStoreStub
	archive   *archiveStoreStub
	tasks     *taskStoreStub
	publisher *publisherStub
	svc       *PhaseService
}

func newPhaseFixture(comp models.Competition) *phaseFixture {
	kamps := []models.Kampioenschap{
		{ID: 11, CompetitionID: comp.ID, Round: models.RoundRK, RayonNr: 1, RayonName: "Rayon 1"},
		{ID: 12, CompetitionID: comp.ID, Round: models.RoundRK, RayonNr: 2, RayonName: "Rayon 2"},
		{ID: 20, CompetitionID: comp.ID, Round: models.RoundBK},
	}
	rounds := map[int64]models.Round{11: models.RoundRK, 12: models.RoundRK, 20: models.RoundBK}
	f := &phaseFixture{
		comps:     &competitionStoreStub{comps: map[int64]*models.Competition{comp.ID: &comp}, kamps: kamps},
		roster:    newRosterStoreStub(rounds),
		teams:     newTeamStoreStub(rounds),
		archive:   newArchiveStoreStub(),
		tasks:     &taskStoreStub{},
		publisher: &publisherStub{},
	}
	st := Stores{Competitions: f.comps, Roster: f.roster, Teams: f.teams, Archive: f.archive, Tasks: f.tasks}
	f.svc = NewPhaseService(stubTx(st), NewTaskNotifier(f.publisher, nil), RosterConfig{}, nil)
	f.svc.clock = func() time.Time { return rosterNow }
	return f
}

func openRegioCompetition() models.Competition {
	return models.Competition{ID: 1, Distance: models.Distance18, Name: "18m competitie 2026/2027",
		MinScoresForRK: models.DefaultMinScoresForRK, ClassBoundariesFixed: true}
}

func competitionMutation(code models.CompetitionMutationCode, compID int64) *models.CompetitionMutation {
	return &models.CompetitionMutation{ID: 1, Code: code, Actor: "BKO Jan", CompetitionID: &compID}
}

func regioFixtureEntrants() []models.RegioEntrant {
	return []models.RegioEntrant{
		regioEntrant(1, 3, 10, 101, 7, 9.5, clubPtr(1001), 1, true),
		regioEntrant(2, 3, 10, 101, 7, 9.4, clubPtr(1001), 1, true),
		regioEntrant(3, 3, 10, 102, 6, 9.2, clubPtr(1002), 1, true),
		regioEntrant(4, 3, 10, 102, 7, 9.45, clubPtr(1002), 1, true),
		regioEntrant(5, 3, 10, 105, 7, 8.0, clubPtr(1005), 2, true),
		regioEntrant(6, 3, 10, 105, 7, 7.5, clubPtr(1005), 2, true),
		regioEntrant(7, 4, 20, 101, 7, 9.0, clubPtr(1001), 1, true),
	}
}

func TestCloseRegioToRKBuildsRosters(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())
	f.roster.regio = regioFixtureEntrants()
	teamClass := int64(40)
	f.comps.teamClasses = []models.TeamClass{{ID: 40, Description: "Recurve klasse ERE"}}
	f.teams.teams[500] = models.KampTeam{ID: 500, KampioenschapID: 11, TeamClassID: &teamClass, ClubID: 1001, Deelname: models.DeelnameOnbekend}
	f.teams.provisional = []models.ProvisionalMember{
		{TeamID: 500, TeamClubID: 1001, RegioEntrantID: 1},
		{TeamID: 500, TeamClubID: 1001, RegioEntrantID: 2},
		{TeamID: 500, TeamClubID: 1001, RegioEntrantID: 7},
	}

	err := f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 1))
	require.NoError(t, err)

	assert.True(t, f.comps.comps[1].RegioClosed)
	assert.Len(t, f.roster.entrants, 7)
	for _, class := range [][2]int64{{11, 3}, {11, 4}, {12, 3}} {
		rows := f.roster.classRowsOf(class[0], class[1])
		require.NotEmpty(t, rows)
		require.NoError(t, ValidateRosterOrder(rows, models.DefaultIndivLimit))
	}
	assert.ElementsMatch(t, []int64{11, 12}, f.comps.hasRoster)
	assert.Equal(t, 1, f.archive.regio)

	team := f.teams.teams[500]
	assert.Len(t, f.teams.links[500], 3)
	assert.InDelta(t, 9.5+9.4+9.0, team.Average, 1e-9)
	assert.Equal(t, 1, team.Volgorde)
	assert.Equal(t, 1, team.Rank)

	require.Len(t, f.tasks.tasks, 2)
	assert.Equal(t, models.RoleRKO, f.tasks.tasks[0].Role)
	assert.Equal(t, 1, *f.tasks.tasks[0].RayonNr)
	assert.Equal(t, rosterNow.Add(taskDeadline), f.tasks.tasks[0].Deadline)
	require.Len(t, f.publisher.payloads, 2)
	event := f.publisher.payloads[0].(TaskCreatedEvent)
	assert.Equal(t, "task.created", event.Event)
	require.Len(t, f.tasks.logs, 1)
	assert.Equal(t, "BKO Jan", f.tasks.logs[0].Actor)
}

func TestCloseRegioToRKTwiceIsNoop(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())
	f.roster.regio = regioFixtureEntrants()
	m := competitionMutation(models.CompetitionMutationCloseRegioToRK, 1)

	require.NoError(t, f.svc.CloseRegioToRK(context.Background(), m))
	after := make(map[int64]models.KampEntrant, len(f.roster.entrants))
	for id, e := range f.roster.entrants {
		after[id] = e
	}
	inserts := f.roster.inserts

	require.NoError(t, f.svc.CloseRegioToRK(context.Background(), m))

	assert.Equal(t, after, f.roster.entrants)
	assert.Equal(t, inserts, f.roster.inserts)
	assert.Equal(t, 1, f.archive.regio)
	assert.Len(t, f.tasks.tasks, 2)
	assert.Len(t, f.publisher.payloads, 2)
}

func TestCloseRegioToRKAlreadyClosedHasNoSideEffects(t *testing.T) {
	comp := openRegioCompetition()
	comp.RegioClosed = true
	f := newPhaseFixture(comp)
	f.roster.regio = regioFixtureEntrants()

	err := f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 1))

	require.NoError(t, err)
	assert.Empty(t, f.roster.entrants)
	assert.Zero(t, f.roster.inserts)
	assert.Zero(t, f.archive.regio)
	assert.Empty(t, f.tasks.tasks)
	assert.Empty(t, f.publisher.payloads)
}

func TestCloseRegioToRKLostRaceIsNoop(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())
	f.roster.regio = regioFixtureEntrants()
	f.comps.lostRace = true

	require.NoError(t, f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 1)))

	assert.Zero(t, f.roster.inserts)
	assert.Zero(t, f.archive.regio)
}

func TestCloseRegioToRKRequiresFixedBoundaries(t *testing.T) {
	comp := openRegioCompetition()
	comp.ClassBoundariesFixed = false
	f := newPhaseFixture(comp)

	err := f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 1))

	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPhasePrecondition))
	assert.False(t, f.comps.comps[1].RegioClosed)
	assert.Zero(t, f.archive.regio)
}

func TestCloseRegioToRKUnknownCompetition(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())

	err := f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 99))

	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCloseRegioToRKMissingCompetitionRef(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())

	err := f.svc.CloseRegioToRK(context.Background(), &models.CompetitionMutation{Code: models.CompetitionMutationCloseRegioToRK})

	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCloseRegioToRKAppliesRosterCap(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())
	for i := int64(1); i <= 60; i++ {
		f.roster.regio = append(f.roster.regio,
			regioEntrant(i, 3, 10, 101+int(i%4), 7, 10-float64(i)/10, clubPtr(1001), 1, true))
	}

	require.NoError(t, f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 1)))

	rows := f.roster.classRowsOf(11, 3)
	assert.Len(t, rows, models.RosterCap)
	require.NoError(t, ValidateRosterOrder(rows, models.DefaultIndivLimit))
}

func TestCloseRegioToRKPublishFailureIsNotAnError(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())
	f.publisher.err = errors.New("broker down")

	err := f.svc.CloseRegioToRK(context.Background(), competitionMutation(models.CompetitionMutationCloseRegioToRK, 1))

	require.NoError(t, err)
	assert.Len(t, f.tasks.tasks, 2)
}

func TestOpenRKToBKIndiv(t *testing.T) {
	comp := openRegioCompetition()
	comp.RegioClosed = true
	f := newPhaseFixture(comp)
	f.roster.finishers = []models.RKFinisher{
		{KampEntrant: models.KampEntrant{SporterBoogID: 201, IndivClassID: 3, ClubID: 1001, ResultRank: 1, Score1: 280, Score2: 290}, RayonName: "Rayon 1"},
		{KampEntrant: models.KampEntrant{SporterBoogID: 202, IndivClassID: 3, ClubID: 1002, ResultRank: 2, Score1: 285, Score2: 280}, RayonName: "Rayon 2"},
		{KampEntrant: models.KampEntrant{SporterBoogID: 203, IndivClassID: 3, ClubID: 1003, ResultRank: 3, Score1: 270, Score2: 270}, RayonName: "Rayon 2"},
	}
	f.roster.limits[[3]int64{20, 3, 0}] = 2

	require.NoError(t, f.svc.OpenRKToBKIndiv(context.Background(), competitionMutation(models.CompetitionMutationOpenRKToBKIndiv, 1)))

	assert.True(t, f.comps.comps[1].RKIndivClosed)
	assert.Equal(t, 1, f.archive.indiv[models.RoundRK])
	rows := f.roster.classRowsOf(20, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(201), rows[0].SporterBoogID)
	assert.Equal(t, models.DeelnameJa, rows[0].Deelname)
	assert.Equal(t, models.DeelnameJa, rows[1].Deelname)
	assert.Equal(t, models.DeelnameOnbekend, rows[2].Deelname)
	assert.Contains(t, f.comps.hasRoster, int64(20))
	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, models.RoleBKO, f.tasks.tasks[0].Role)
}

func TestOpenRKToBKIndivRequiresClosedRegio(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())

	err := f.svc.OpenRKToBKIndiv(context.Background(), competitionMutation(models.CompetitionMutationOpenRKToBKIndiv, 1))

	assert.True(t, errors.Is(err, appErrors.ErrPhasePrecondition))
	assert.Zero(t, f.archive.indiv[models.RoundRK])
}

func TestOpenRKToBKTeams(t *testing.T) {
	comp := openRegioCompetition()
	comp.RegioClosed = true
	f := newPhaseFixture(comp)
	class := int64(40)
	f.teams.links[1] = []int64{11, 12, 13}
	f.teams.candidates = []models.KampTeam{
		{ID: 1, TeamClassID: &class, ClubID: 1001, Name: "A", ResultRank: 1, ResultScore: 1140, RayonName: "Rayon 1"},
		{ID: 2, TeamClassID: &class, ClubID: 1001, Name: "B", ResultRank: 2, ResultScore: 1100},
		{ID: 3, TeamClassID: &class, ClubID: 1001, Name: "C", ResultRank: 2, ResultScore: 1120},
	}

	require.NoError(t, f.svc.OpenRKToBKTeams(context.Background(), competitionMutation(models.CompetitionMutationOpenRKToBKTeams, 1)))

	assert.True(t, f.comps.comps[1].RKTeamsClosed)
	assert.Equal(t, 1, f.archive.teams[models.RoundRK])
	bk, err := f.teams.ClassTeams(context.Background(), 20, 40)
	require.NoError(t, err)
	require.Len(t, bk, 2)
	assert.Equal(t, "A", bk[0].Name)
	assert.Equal(t, []int64{11, 12, 13}, f.teams.links[bk[0].ID])
	assert.Equal(t, "B", bk[1].Name)
}

func TestCloseBKArchivesOnce(t *testing.T) {
	comp := openRegioCompetition()
	comp.RegioClosed = true
	comp.RKIndivClosed = true
	comp.RKTeamsClosed = true
	f := newPhaseFixture(comp)
	ctx := context.Background()

	require.NoError(t, f.svc.CloseBKIndiv(ctx, competitionMutation(models.CompetitionMutationCloseBKIndiv, 1)))
	require.NoError(t, f.svc.CloseBKIndiv(ctx, competitionMutation(models.CompetitionMutationCloseBKIndiv, 1)))
	require.NoError(t, f.svc.CloseBKTeams(ctx, competitionMutation(models.CompetitionMutationCloseBKTeams, 1)))

	assert.Equal(t, 1, f.archive.indiv[models.RoundBK])
	assert.Equal(t, 1, f.archive.teams[models.RoundBK])
	assert.Equal(t, models.PhaseDone, f.comps.comps[1].Phase())
}

func TestOpenSeason(t *testing.T) {
	f := newPhaseFixture(openRegioCompetition())
	m := &models.CompetitionMutation{Code: models.CompetitionMutationOpenSeason, Actor: "BKO"}

	require.NoError(t, f.svc.OpenSeason(context.Background(), m))
	require.NoError(t, f.svc.OpenSeason(context.Background(), m))

	assert.Equal(t, []int{2026}, f.comps.created)
	assert.Len(t, f.tasks.logs, 1)
}

func TestFixSeedAveragesAndBoundaries(t *testing.T) {
	comp := openRegioCompetition()
	comp.ClassBoundariesFixed = false
	f := newPhaseFixture(comp)
	ctx := context.Background()

	require.NoError(t, f.svc.FixSeedAverages(models.Distance25)(ctx, &models.CompetitionMutation{Actor: "BKO"}))
	require.NoError(t, f.svc.FixClassBoundaries(ctx, competitionMutation(models.CompetitionMutationFixClassBoundaries, 1)))

	assert.Equal(t, []int{models.Distance25}, f.comps.seedRuns)
	assert.True(t, f.comps.comps[1].ClassBoundariesFixed)
	assert.Equal(t, models.PhaseRegioOpen, f.comps.comps[1].Phase())
}
