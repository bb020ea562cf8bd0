package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/internal/repository"
	"github.com/noah-isme/nhb-competitie-api/pkg/database"
	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
)

type competitionStore interface {
	Get(ctx context.Context, id int64) (*models.Competition, error)
	ExistsForYear(ctx context.Context, year int) (bool, error)
	CreateSeason(ctx context.Context, year int) ([]models.Competition, error)
	SetFlag(ctx context.Context, id int64, flag models.PhaseFlag) (bool, error)
	RecomputeSeedAverages(ctx context.Context, distance int) (int64, error)
	Kampioenschappen(ctx context.Context, competitionID int64, round models.Round) ([]models.Kampioenschap, error)
	GetKampioenschap(ctx context.Context, id int64) (*models.Kampioenschap, error)
	SetHasRoster(ctx context.Context, kampioenschapID int64) error
	IndivClasses(ctx context.Context, competitionID int64) ([]models.IndivClass, error)
	TeamClasses(ctx context.Context, competitionID int64) ([]models.TeamClass, error)
	GetTeamClass(ctx context.Context, id int64) (*models.TeamClass, error)
}

type rosterStore interface {
	RegioEntrants(ctx context.Context, competitionID int64) ([]models.RegioEntrant, error)
	DeleteRound(ctx context.Context, competitionID int64, round models.Round) (int64, error)
	Insert(ctx context.Context, entrants []models.KampEntrant) error
	Get(ctx context.Context, id int64) (*models.KampEntrant, error)
	ClassEntrants(ctx context.Context, kampioenschapID, classID int64) ([]models.KampEntrant, error)
	SavePlacement(ctx context.Context, entrants []models.KampEntrant) error
	DeleteBeyond(ctx context.Context, kampioenschapID int64, maxVolgorde int) (int64, error)
	RKFinishers(ctx context.Context, competitionID int64) ([]models.RKFinisher, error)
	IndivLimit(ctx context.Context, kampioenschapID, classID int64, def int) (int, error)
	TeamLimit(ctx context.Context, kampioenschapID, classID int64, def int) (int, error)
	SetIndivLimit(ctx context.Context, kampioenschapID, classID int64, limit int) error
	DeleteIndivLimit(ctx context.Context, kampioenschapID, classID int64) error
	SetTeamLimit(ctx context.Context, kampioenschapID, classID int64, limit int) error
}

type teamStore interface {
	RoundTeams(ctx context.Context, competitionID int64, round models.Round) ([]models.KampTeam, error)
	ProvisionalMembers(ctx context.Context, competitionID int64) ([]models.ProvisionalMember, error)
	LinkMember(ctx context.Context, teamID, entrantID int64) error
	Members(ctx context.Context, teamIDs []int64) (map[int64][]int64, error)
	SetAverage(ctx context.Context, teamID int64, average float64) error
	DeleteRound(ctx context.Context, competitionID int64, round models.Round) error
	Insert(ctx context.Context, team *models.KampTeam) error
	BKCandidates(ctx context.Context, competitionID int64) ([]models.KampTeam, error)
	ClassTeams(ctx context.Context, kampioenschapID, classID int64) ([]models.KampTeam, error)
	SavePlacement(ctx context.Context, teams []models.KampTeam) error
}

type archiveStore interface {
	ArchiveRegio(ctx context.Context, competitionID int64) (int64, error)
	ArchiveIndiv(ctx context.Context, competitionID int64, round models.Round) (int64, error)
	ArchiveTeams(ctx context.Context, competitionID int64, round models.Round) (int64, error)
}

type taskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	Log(ctx context.Context, entry *models.LogEntry) error
}

type cartStore interface {
	Lock(ctx context.Context, accountID int64) (*models.Cart, error)
	Find(ctx context.Context, accountID int64) (*models.Cart, error)
	EachItem(ctx context.Context, cartID int64, fn func(*models.CartItem) error) error
	Items(ctx context.Context, cartID int64) ([]models.CartItem, error)
	GetItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error)
	HasRegistration(ctx context.Context, registrationID int64) (bool, error)
	AddItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, itemID int64) error
	SaveDiscount(ctx context.Context, item *models.CartItem) error
	RecomputeTotal(ctx context.Context, cartID int64) (decimal.Decimal, error)
	SetDiscountCode(ctx context.Context, cartID int64, code *string) error
	CountItems(ctx context.Context, accountID int64) (int, error)
}

type registrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	Get(ctx context.Context, id int64) (*models.Registration, error)
	GetDetail(ctx context.Context, id int64) (*models.RegistrationDetail, error)
	FindActive(ctx context.Context, eventID, sporterBoogID int64) (*models.Registration, error)
	SetStatus(ctx context.Context, id int64, status models.RegistrationStatus, logLine string) error
	SetReceived(ctx context.Context, id int64, amount decimal.Decimal) error
	ReleaseSeat(ctx context.Context, sessionID *int64) error
	HeldEventIDs(ctx context.Context, sporterID int64, eventIDs []int64) ([]int64, error)
}

type orderStore interface {
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *models.Order) error
	MoveItems(ctx context.Context, orderID int64, itemIDs []int64) error
	PaymentSettings(ctx context.Context, clubIDs []int64) (map[int64]models.PaymentSettings, error)
}

type discountStore interface {
	Candidates(ctx context.Context, clubIDs []int64, codes []string) ([]models.DiscountCode, error)
	ByCode(ctx context.Context, code string) (*models.DiscountCode, error)
}

type competitionMutationStore interface {
	jobs.Store[*models.CompetitionMutation]
	Create(ctx context.Context, m *models.CompetitionMutation) error
	FindPending(ctx context.Context, code models.CompetitionMutationCode, competitionID *int64) (*models.CompetitionMutation, error)
}

type cartMutationStore interface {
	jobs.Store[*models.CartMutation]
	CreatePending(ctx context.Context, m *models.CartMutation) (bool, error)
}

// Stores bundles the repositories bound to one connection or transaction.
type Stores struct {
	Competitions         competitionStore
	Roster               rosterStore
	Teams                teamStore
	Archive              archiveStore
	Tasks                taskStore
	Carts                cartStore
	Registrations        registrationStore
	Orders               orderStore
	Discounts            discountStore
	CompetitionMutations competitionMutationStore
	CartMutations        cartMutationStore
}

// NewStores binds every repository to db, which may be a *sqlx.DB or a *sqlx.Tx.
func NewStores(db sqlx.ExtContext) Stores {
	return Stores{
		Competitions:         repository.NewCompetitionRepository(db),
		Roster:               repository.NewRosterRepository(db),
		Teams:                repository.NewTeamRepository(db),
		Archive:              repository.NewArchiveRepository(db),
		Tasks:                repository.NewTaskRepository(db),
		Carts:                repository.NewCartRepository(db),
		Registrations:        repository.NewRegistrationRepository(db),
		Orders:               repository.NewOrderRepository(db),
		Discounts:            repository.NewDiscountRepository(db),
		CompetitionMutations: repository.NewCompetitionMutationRepository(db),
		CartMutations:        repository.NewCartMutationRepository(db),
	}
}

// TxFunc runs fn with stores bound to a single transaction. fn's error rolls it back.
type TxFunc func(ctx context.Context, fn func(Stores) error) error

// NewSQLTx returns a TxFunc backed by PostgreSQL transactions.
func NewSQLTx(db *sqlx.DB) TxFunc {
	return func(ctx context.Context, fn func(Stores) error) error {
		return database.WithinTx(ctx, db, func(tx *sqlx.Tx) error {
			return fn(NewStores(tx))
		})
	}
}

// clock is swapped in tests.
type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
