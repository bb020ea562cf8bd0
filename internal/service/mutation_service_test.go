package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nhb-competitie-api/internal/dto"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
)

type competitionQueueStub struct {
	rows   map[int64]*models.CompetitionMutation
	nextID int64
}

func newCompetitionQueueStub() *competitionQueueStub {
	return &competitionQueueStub{rows: map[int64]*models.CompetitionMutation{}}
}

func (q *competitionQueueStub) Create(ctx context.Context, m *models.CompetitionMutation) error {
	q.nextID++
	m.ID = q.nextID
	m.Actor = models.TruncateActor(m.Actor)
	dup := *m
	q.rows[m.ID] = &dup
	return nil
}

func (q *competitionQueueStub) Get(ctx context.Context, id int64) (*models.CompetitionMutation, error) {
	m, ok := q.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	dup := *m
	return &dup, nil
}

func (q *competitionQueueStub) FindPending(ctx context.Context, code models.CompetitionMutationCode, competitionID *int64) (*models.CompetitionMutation, error) {
	for _, id := range q.ids() {
		m := q.rows[id]
		if m.IsProcessed || m.Code != code {
			continue
		}
		if (m.CompetitionID == nil) != (competitionID == nil) {
			continue
		}
		if competitionID != nil && *m.CompetitionID != *competitionID {
			continue
		}
		dup := *m
		return &dup, nil
	}
	return nil, sql.ErrNoRows
}

func (q *competitionQueueStub) ids() []int64 {
	ids := make([]int64, 0, len(q.rows))
	for id := range q.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (q *competitionQueueStub) Count(ctx context.Context) (int64, error) {
	return int64(len(q.rows)), nil
}

func (q *competitionQueueStub) LatestID(ctx context.Context) (int64, error) {
	return q.nextID, nil
}

func (q *competitionQueueStub) PendingIDs(ctx context.Context, afterID int64) ([]int64, error) {
	var out []int64
	for _, id := range q.ids() {
		if id > afterID && !q.rows[id].IsProcessed {
			out = append(out, id)
		}
	}
	return out, nil
}

func (q *competitionQueueStub) MarkProcessed(ctx context.Context, id int64, lastError *string) error {
	q.rows[id].IsProcessed = true
	q.rows[id].LastError = lastError
	return nil
}

func (q *competitionQueueStub) processAll() {
	for _, m := range q.rows {
		m.IsProcessed = true
	}
}

type cartQueueStub struct {
	rows   []*models.CartMutation
	failOn error
}

func (q *cartQueueStub) CreatePending(ctx context.Context, m *models.CartMutation) (bool, error) {
	if q.failOn != nil {
		return false, q.failOn
	}
	// only the account's newest unprocessed row may absorb a duplicate
	for i := len(q.rows) - 1; i >= 0; i-- {
		row := q.rows[i]
		if row.IsProcessed || !sameRef(row.AccountID, m.AccountID) {
			continue
		}
		if row.Code == m.Code && sameRef(row.RegistrationID, m.RegistrationID) &&
			sameRef(row.CartItemID, m.CartItemID) && sameString(row.DiscountCode, m.DiscountCode) {
			*m = *row
			return false, nil
		}
		break
	}
	m.ID = int64(len(q.rows) + 1)
	dup := *m
	q.rows = append(q.rows, &dup)
	return true, nil
}

func sameRef(a, b *int64) bool {
	return (a == nil && b == nil) || (a != nil && b != nil && *a == *b)
}

func sameString(a, b *string) bool {
	return (a == nil && b == nil) || (a != nil && b != nil && *a == *b)
}

func (q *cartQueueStub) Get(ctx context.Context, id int64) (*models.CartMutation, error) {
	if id < 1 || int(id) > len(q.rows) {
		return nil, sql.ErrNoRows
	}
	dup := *q.rows[id-1]
	return &dup, nil
}

func (q *cartQueueStub) Count(ctx context.Context) (int64, error) {
	return int64(len(q.rows)), nil
}

func (q *cartQueueStub) LatestID(ctx context.Context) (int64, error) {
	return int64(len(q.rows)), nil
}

func (q *cartQueueStub) PendingIDs(ctx context.Context, afterID int64) ([]int64, error) {
	var out []int64
	for _, row := range q.rows {
		if row.ID > afterID && !row.IsProcessed {
			out = append(out, row.ID)
		}
	}
	return out, nil
}

func (q *cartQueueStub) MarkProcessed(ctx context.Context, id int64, lastError *string) error {
	q.rows[id-1].IsProcessed = true
	q.rows[id-1].LastError = lastError
	return nil
}

type pingerStub struct {
	pings int
	err   error
}

func (p *pingerStub) Ping(ctx context.Context) error {
	p.pings++
	return p.err
}

type mutationFixture struct {
	comps     *competitionStoreStub
	roster    *rosterStoreStub
	carts     *cartStoreStub
	regs      *registrationStoreStub
	compQueue *competitionQueueStub
	cartQueue *cartQueueStub
	compPing  *pingerStub
	cartPing  *pingerStub
	metrics   *MetricsService
	sleeps    int
	onSleep   func()
	svc       *MutationService
}

func newMutationFixture(comp models.Competition) *mutationFixture {
	regs := newRegistrationStoreStub()
	f := &mutationFixture{
		comps: &competitionStoreStub{
			comps: map[int64]*models.Competition{comp.ID: &comp},
			kamps: []models.Kampioenschap{
				{ID: 11, CompetitionID: comp.ID, Round: models.RoundRK, RayonNr: 1},
				{ID: 20, CompetitionID: comp.ID, Round: models.RoundBK},
			},
			indivClasses: []models.IndivClass{{ID: 1100, CompetitionID: comp.ID}, {ID: 1101, CompetitionID: comp.ID}},
		},
		roster:    newRosterStoreStub(map[int64]models.Round{11: models.RoundRK, 20: models.RoundBK}),
		carts:     newCartStoreStub(regs),
		regs:      regs,
		compQueue: newCompetitionQueueStub(),
		cartQueue: &cartQueueStub{},
		compPing:  &pingerStub{},
		cartPing:  &pingerStub{},
		metrics:   NewMetricsService(),
	}
	f.roster.entrants[501] = models.KampEntrant{ID: 501, KampioenschapID: 11, IndivClassID: 1100, ClubID: 1001}

	st := Stores{
		Competitions: f.comps, Roster: f.roster, Carts: f.carts, Registrations: f.regs,
		CompetitionMutations: f.compQueue, CartMutations: f.cartQueue,
	}
	wait := jobs.WaitConfig{
		Initial: time.Millisecond,
		Budget:  3 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps++
			if f.onSleep != nil {
				f.onSleep()
			}
			return nil
		},
	}
	cfg := MutationServiceConfig{CompetitionPing: f.compPing, CartPing: f.cartPing, Wait: wait, Metrics: f.metrics}
	f.svc = NewMutationService(stubTx(st), st, nil, cfg, nil)
	f.svc.clock = func() time.Time { return cartNow }
	return f
}

var (
	bkoClaims     = &models.JWTClaims{AccountID: 1, Role: models.RoleBKO, FullName: "Jan de Vries"}
	rkoClaims     = &models.JWTClaims{AccountID: 2, Role: models.RoleRKO, FullName: "Els", RayonNr: 1}
	hwlClaims     = &models.JWTClaims{AccountID: 3, Role: models.RoleHWL, FullName: "Piet", ClubID: 1001}
	sporterClaims = &models.JWTClaims{AccountID: cartAccountID, Role: models.RoleSporter, FullName: "Anna"}
)

func TestMutationServiceTransitionEnqueues(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())

	resp, err := f.svc.Transition(context.Background(), 1, dto.TransitionRequest{Flag: "regio_closed", Snel: true}, bkoClaims)

	require.NoError(t, err)
	assert.False(t, resp.Processed)
	require.Contains(t, f.compQueue.rows, resp.ID)
	m := f.compQueue.rows[resp.ID]
	assert.Equal(t, models.CompetitionMutationCloseRegioToRK, m.Code)
	assert.Equal(t, int64(1), *m.CompetitionID)
	assert.Equal(t, "BKO Jan de Vries", m.Actor)
	assert.Equal(t, 1, f.compPing.pings)
	assert.Zero(t, f.sleeps, "snel does not wait")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.enqueued.WithLabelValues(QueueCompetition, "CLOSE_REGIO_TO_RK")))
}

func TestMutationServiceTransitionGuards(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, 1, dto.TransitionRequest{Flag: "rk_indiv_closed"}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrPhasePrecondition))

	_, err = f.svc.Transition(ctx, 1, dto.TransitionRequest{Flag: "class_boundaries_fixed"}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyInState))

	_, err = f.svc.Transition(ctx, 1, dto.TransitionRequest{Flag: "season_over"}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Transition(ctx, 99, dto.TransitionRequest{Flag: "regio_closed"}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	assert.Empty(t, f.compQueue.rows)
	assert.Zero(t, f.compPing.pings)
}

func TestMutationServiceTransitionReusesPending(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()
	req := dto.TransitionRequest{Flag: "regio_closed", Snel: true}

	first, err := f.svc.Transition(ctx, 1, req, bkoClaims)
	require.NoError(t, err)
	second, err := f.svc.Transition(ctx, 1, req, bkoClaims)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.compQueue.rows, 1)
	assert.Equal(t, 2, f.compPing.pings)
}

func TestMutationServiceWaitsForProcessing(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	f.onSleep = f.compQueue.processAll

	resp, err := f.svc.Transition(context.Background(), 1, dto.TransitionRequest{Flag: "regio_closed"}, bkoClaims)

	require.NoError(t, err)
	assert.True(t, resp.Processed)
	assert.Equal(t, 1, f.sleeps)
}

func TestMutationServiceWaitBudgetRunsOut(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	f.compPing.err = errors.New("broker down")

	resp, err := f.svc.Transition(context.Background(), 1, dto.TransitionRequest{Flag: "regio_closed"}, bkoClaims)

	require.NoError(t, err)
	assert.False(t, resp.Processed)
	assert.Equal(t, 2, f.sleeps, "1ms and 2ms fit the 3ms budget")
	assert.Len(t, f.compQueue.rows, 1, "a failed ping keeps the mutation")
}

func TestMutationServiceOpenSeason(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	resp, err := f.svc.OpenSeason(ctx, dto.SnelRequest{Snel: true}, bkoClaims)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionMutationOpenSeason, f.compQueue.rows[resp.ID].Code)

	f.comps.years = map[int]bool{2026: true}
	_, err = f.svc.OpenSeason(ctx, dto.SnelRequest{Snel: true}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestMutationServiceFixSeedAverages(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	resp, err := f.svc.FixSeedAverages(ctx, dto.SeedAveragesRequest{Distance: 25, Snel: true}, bkoClaims)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionMutationFixSeedAverages25, f.compQueue.rows[resp.ID].Code)

	_, err = f.svc.FixSeedAverages(ctx, dto.SeedAveragesRequest{Distance: 70}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestMutationServiceCutAccess(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()
	req := dto.CutRequest{ClassID: 1100, Old: 24, New: 16, Snel: true}

	resp, err := f.svc.Cut(ctx, 11, req, rkoClaims)
	require.NoError(t, err)
	m := f.compQueue.rows[resp.ID]
	assert.Equal(t, models.CompetitionMutationKampCutIndiv, m.Code)
	assert.Equal(t, int64(1100), *m.IndivClassID)
	assert.Nil(t, m.TeamClassID)
	assert.Equal(t, 24, *m.CutOld)
	assert.Equal(t, 16, *m.CutNew)

	_, err = f.svc.Cut(ctx, 20, req, rkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden), "an RKO cannot cut the BK")

	other := *rkoClaims
	other.RayonNr = 2
	_, err = f.svc.Cut(ctx, 11, req, &other)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	req.Team = true
	resp, err = f.svc.Cut(ctx, 20, req, bkoClaims)
	require.NoError(t, err)
	assert.Equal(t, models.CompetitionMutationKampCutTeam, f.compQueue.rows[resp.ID].Code)
}

func TestMutationServiceCutRejectsLimit(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())

	_, err := f.svc.Cut(context.Background(), 11, dto.CutRequest{ClassID: 1100, Old: 24, New: 10}, bkoClaims)

	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.compQueue.rows)
}

func TestMutationServiceSignOnByClub(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	resp, err := f.svc.SignOn(ctx, 501, dto.SnelRequest{Snel: true}, hwlClaims)
	require.NoError(t, err)
	m := f.compQueue.rows[resp.ID]
	assert.Equal(t, models.CompetitionMutationKampSignOn, m.Code)
	assert.Equal(t, int64(501), *m.ParticipantID)

	other := *hwlClaims
	other.ClubID = 1002
	_, err = f.svc.SignOff(ctx, 501, dto.SnelRequest{Snel: true}, &other)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.SignOff(ctx, 999, dto.SnelRequest{Snel: true}, bkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMutationServiceMoveClass(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	resp, err := f.svc.MoveClass(ctx, 501, dto.MoveClassRequest{ClassID: 1101, Snel: true}, rkoClaims)
	require.NoError(t, err)
	assert.Equal(t, int64(1101), *f.compQueue.rows[resp.ID].IndivClassID)

	_, err = f.svc.MoveClass(ctx, 501, dto.MoveClassRequest{ClassID: 4242, Snel: true}, rkoClaims)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMutationServiceAddRegistration(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()
	session := cartSessionID
	req := dto.AddRegistrationRequest{EventID: 10, SessionID: &session, SporterBoogID: 1300, Snel: true}

	resp, err := f.svc.AddRegistration(ctx, req, sporterClaims)
	require.NoError(t, err)
	require.Len(t, f.cartQueue.rows, 1)
	m := f.cartQueue.rows[0]
	assert.Equal(t, resp.ID, m.ID)
	assert.Equal(t, models.CartMutationRegister, m.Code)
	require.NotNil(t, m.RegistrationID)
	reg := f.regs.details[*m.RegistrationID]
	assert.Equal(t, models.RegistrationStatusCart, reg.Status)
	assert.Equal(t, cartAccountID, reg.AccountID)
	assert.Contains(t, reg.Log, "Toegevoegd aan het mandje door SPORTER Anna")
	assert.Equal(t, 1, f.cartPing.pings)

	_, err = f.svc.AddRegistration(ctx, req, sporterClaims)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Len(t, f.cartQueue.rows, 1)
}

func TestMutationServiceCartDeduplicates(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, dto.SnelRequest{Snel: true}, sporterClaims)
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, dto.SnelRequest{Snel: true}, sporterClaims)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.cartQueue.rows, 1)
}

func TestMutationServiceCartKeepsSubmissionOrder(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	var ids []int64
	for _, code := range []string{"ZOMER26", "WINTER26", "ZOMER26"} {
		res, err := f.svc.SetDiscountCode(ctx, dto.DiscountCodeRequest{Code: code, Snel: true}, sporterClaims)
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}
	again, err := f.svc.SetDiscountCode(ctx, dto.DiscountCodeRequest{Code: "ZOMER26", Snel: true}, sporterClaims)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, int64(3), again.ID, "repeat of the newest request is folded")
	require.Len(t, f.cartQueue.rows, 3)
	assert.Equal(t, "ZOMER26", *f.cartQueue.rows[2].DiscountCode)
}

func TestMutationServiceDiscountCodeTrimmed(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())

	_, err := f.svc.SetDiscountCode(context.Background(), dto.DiscountCodeRequest{Code: "  ZOMER26 ", Snel: true}, sporterClaims)

	require.NoError(t, err)
	require.Len(t, f.cartQueue.rows, 1)
	assert.Equal(t, "ZOMER26", *f.cartQueue.rows[0].DiscountCode)
}

func TestMutationServiceRemoveItemOwnership(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	_, err := f.svc.RemoveItem(ctx, 500, dto.SnelRequest{Snel: true}, sporterClaims)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound), "no cart yet")

	f.register(1, cartSporterID, 10, "10.00")
	cart := newCartFixtureOn(f)
	require.NoError(t, cart.AddRegistration(ctx, addMutation(1)))
	itemID := f.carts.inCart(cartAccountID * 10)[0].ID

	resp, err := f.svc.RemoveItem(ctx, itemID, dto.SnelRequest{Snel: true}, sporterClaims)
	require.NoError(t, err)
	assert.Equal(t, itemID, *f.cartQueue.rows[resp.ID-1].CartItemID)

	_, err = f.svc.RemoveItem(ctx, itemID+1, dto.SnelRequest{Snel: true}, sporterClaims)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMutationServiceCancelRegistrationOwnership(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()
	f.register(1, cartSporterID, 10, "10.00")

	_, err := f.svc.CancelRegistration(ctx, 1, dto.SnelRequest{Snel: true}, hwlClaims)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	resp, err := f.svc.CancelRegistration(ctx, 1, dto.SnelRequest{Snel: true}, sporterClaims)
	require.NoError(t, err)
	assert.Equal(t, models.CartMutationCancelRegistration, f.cartQueue.rows[resp.ID-1].Code)
}

func TestMutationServiceStatus(t *testing.T) {
	f := newMutationFixture(openRegioCompetition())
	ctx := context.Background()

	resp, err := f.svc.Transition(ctx, 1, dto.TransitionRequest{Flag: "regio_closed", Snel: true}, bkoClaims)
	require.NoError(t, err)
	msg := "competition has no BK"
	require.NoError(t, f.compQueue.MarkProcessed(ctx, resp.ID, &msg))

	status, err := f.svc.Status(ctx, QueueCompetition, resp.ID)
	require.NoError(t, err)
	assert.True(t, status.Processed)
	assert.Equal(t, "CLOSE_REGIO_TO_RK", status.Code)
	assert.Equal(t, msg, *status.LastError)

	_, err = f.svc.Status(ctx, QueueCart, 77)
	assert.True(t, errors.Is(err, appErrors.ErrMutationNotFound))

	_, err = f.svc.Status(ctx, "onbekend", 1)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

// register mirrors cartFixture.register on the shared registration stub.
func (f *mutationFixture) register(id, sporterID, eventID int64, price string) {
	(&cartFixture{regs: f.regs}).register(id, sporterID, eventID, price)
}

func newCartFixtureOn(f *mutationFixture) *CartService {
	st := Stores{Carts: f.carts, Registrations: f.regs, Discounts: &discountStoreStub{}}
	svc := NewCartService(stubTx(st), nil, cartFederation, nil)
	svc.clock = func() time.Time { return cartNow }
	return svc
}
