package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/nhb-competitie-api/internal/dto"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
	"github.com/noah-isme/nhb-competitie-api/pkg/logger"
)

// Queue names, used for logs, metric labels and the ping channels.
const (
	QueueCompetition = "competitie"
	QueueCart        = "bestel"
)

// transitionCodes maps a phase flag to the mutation that sets it.
var transitionCodes = map[models.PhaseFlag]models.CompetitionMutationCode{
	models.FlagClassBoundariesFixed: models.CompetitionMutationFixClassBoundaries,
	models.FlagRegioClosed:          models.CompetitionMutationCloseRegioToRK,
	models.FlagRKIndivClosed:        models.CompetitionMutationOpenRKToBKIndiv,
	models.FlagRKTeamsClosed:        models.CompetitionMutationOpenRKToBKTeams,
	models.FlagBKIndivClosed:        models.CompetitionMutationCloseBKIndiv,
	models.FlagBKTeamsClosed:        models.CompetitionMutationCloseBKTeams,
}

// MutationServiceConfig wires the queues the service writes to.
type MutationServiceConfig struct {
	CompetitionPing jobs.Pinger
	CartPing        jobs.Pinger
	Wait            jobs.WaitConfig
	Metrics         *MetricsService
}

// MutationService validates requests, checks their preconditions and writes them to
// the mutation queues. It never runs a handler itself.
type MutationService struct {
	tx        TxFunc
	stores    Stores
	validator *validator.Validate
	cfg       MutationServiceConfig
	logger    *zap.Logger
	clock     clock
}

// NewMutationService constructs the service. stores serves the precondition reads.
func NewMutationService(tx TxFunc, stores Stores, validate *validator.Validate, cfg MutationServiceConfig, logger *zap.Logger) *MutationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &MutationService{tx: tx, stores: stores, validator: validate, cfg: cfg, logger: logger}
	svc.validator.RegisterValidation("phase_flag", func(fl validator.FieldLevel) bool {
		_, ok := transitionCodes[models.PhaseFlag(fl.Field().String())]
		return ok
	})
	return svc
}

func (s *MutationService) validate(req interface{}) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return nil
}

func internalErr(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// OpenSeason enqueues the creation of next season's competitions.
func (s *MutationService) OpenSeason(ctx context.Context, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	year := models.SeasonStartYear(s.clock.now())
	exists, err := s.stores.Competitions.ExistsForYear(ctx, year)
	if err != nil {
		return nil, internalErr(err, "failed to check season")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("season %d already opened", year))
	}
	return s.enqueueCompetition(ctx, &models.CompetitionMutation{Code: models.CompetitionMutationOpenSeason, Actor: actor.Actor()}, req.Snel)
}

// FixSeedAverages enqueues the seed average recomputation for one distance.
func (s *MutationService) FixSeedAverages(ctx context.Context, req dto.SeedAveragesRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	code := models.CompetitionMutationFixSeedAverages18
	if req.Distance == models.Distance25 {
		code = models.CompetitionMutationFixSeedAverages25
	}
	return s.enqueueCompetition(ctx, &models.CompetitionMutation{Code: code, Actor: actor.Actor()}, req.Snel)
}

// Transition checks that a phase flag may be set and enqueues the mutation that sets
// it. A pending mutation for the same step is reused.
func (s *MutationService) Transition(ctx context.Context, competitionID int64, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	flag := models.PhaseFlag(req.Flag)
	comp, err := s.stores.Competitions.Get(ctx, competitionID)
	if err != nil {
		return nil, notFound("competition", err)
	}
	if err := comp.CanTransition(flag); err != nil {
		return nil, err
	}

	code := transitionCodes[flag]
	pending, err := s.stores.CompetitionMutations.FindPending(ctx, code, &competitionID)
	switch {
	case err == nil:
		logger.FromContext(ctx, s.logger).Info("transition already queued", zap.Int64("mutation_id", pending.ID), zap.String("code", code.String()))
		return s.await(ctx, QueueCompetition, pending.ID, s.cfg.CompetitionPing, req.Snel, s.competitionProcessed(pending.ID))
	case !errors.Is(err, sql.ErrNoRows):
		return nil, internalErr(err, "failed to look up pending mutation")
	}
	return s.enqueueCompetition(ctx, &models.CompetitionMutation{Code: code, Actor: actor.Actor(), CompetitionID: &competitionID}, req.Snel)
}

// Cut enqueues a limit change for one class of a championship.
func (s *MutationService) Cut(ctx context.Context, kampioenschapID int64, req dto.CutRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	kamp, err := s.stores.Competitions.GetKampioenschap(ctx, kampioenschapID)
	if err != nil {
		return nil, notFound("kampioenschap", err)
	}
	if err := authorizeKamp(kamp, actor); err != nil {
		return nil, err
	}

	oldCut, newCut := req.Old, req.New
	m := &models.CompetitionMutation{Actor: actor.Actor(), KampioenschapID: &kampioenschapID, CutOld: &oldCut, CutNew: &newCut}
	classID := req.ClassID
	if req.Team {
		m.Code = models.CompetitionMutationKampCutTeam
		m.TeamClassID = &classID
	} else {
		m.Code = models.CompetitionMutationKampCutIndiv
		m.IndivClassID = &classID
	}
	return s.enqueueCompetition(ctx, m, req.Snel)
}

// SignOn enqueues the confirmation of an entrant.
func (s *MutationService) SignOn(ctx context.Context, entrantID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	return s.entrantMutation(ctx, models.CompetitionMutationKampSignOn, entrantID, nil, req.Snel, actor)
}

// SignOff enqueues the withdrawal of an entrant.
func (s *MutationService) SignOff(ctx context.Context, entrantID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	return s.entrantMutation(ctx, models.CompetitionMutationKampSignOff, entrantID, nil, req.Snel, actor)
}

// MoveClass enqueues the move of an entrant to another class.
func (s *MutationService) MoveClass(ctx context.Context, entrantID int64, req dto.MoveClassRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	classID := req.ClassID
	return s.entrantMutation(ctx, models.CompetitionMutationKampMoveClass, entrantID, &classID, req.Snel, actor)
}

func (s *MutationService) entrantMutation(ctx context.Context, code models.CompetitionMutationCode, entrantID int64, classID *int64, snel bool, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	entrant, err := s.stores.Roster.Get(ctx, entrantID)
	if err != nil {
		return nil, notFound("entrant", err)
	}
	kamp, err := s.stores.Competitions.GetKampioenschap(ctx, entrant.KampioenschapID)
	if err != nil {
		return nil, notFound("kampioenschap", err)
	}
	if actor.Role == models.RoleHWL {
		if entrant.ClubID != actor.ClubID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "entrant belongs to another club")
		}
	} else if err := authorizeKamp(kamp, actor); err != nil {
		return nil, err
	}

	if classID != nil {
		classes, err := s.stores.Competitions.IndivClasses(ctx, kamp.CompetitionID)
		if err != nil {
			return nil, internalErr(err, "failed to load classes")
		}
		found := false
		for _, c := range classes {
			if c.ID == *classID {
				found = true
				break
			}
		}
		if !found {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
	}

	m := &models.CompetitionMutation{Code: code, Actor: actor.Actor(), ParticipantID: &entrantID, IndivClassID: classID}
	return s.enqueueCompetition(ctx, m, snel)
}

// authorizeKamp lets the BKO manage every championship and an RKO only the RK of
// their own rayon.
func authorizeKamp(kamp *models.Kampioenschap, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleBKO:
		return nil
	case models.RoleRKO:
		if kamp.Round == models.RoundRK && kamp.RayonNr == actor.RayonNr {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("no access to kampioenschap %d", kamp.ID))
}

func (s *MutationService) enqueueCompetition(ctx context.Context, m *models.CompetitionMutation, snel bool) (*dto.EnqueueResponse, error) {
	if err := s.stores.CompetitionMutations.Create(ctx, m); err != nil {
		return nil, internalErr(err, "failed to enqueue mutation")
	}
	s.cfg.Metrics.RecordEnqueue(QueueCompetition, m.Code.String())
	logger.FromContext(ctx, s.logger).Info("mutation enqueued", zap.String("queue", QueueCompetition), zap.Int64("mutation_id", m.ID),
		zap.String("code", m.Code.String()), zap.String("actor", m.Actor))
	return s.await(ctx, QueueCompetition, m.ID, s.cfg.CompetitionPing, snel, s.competitionProcessed(m.ID))
}

func (s *MutationService) competitionProcessed(id int64) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		m, err := s.stores.CompetitionMutations.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return m.Processed(), nil
	}
}

func (s *MutationService) cartProcessed(id int64) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		m, err := s.stores.CartMutations.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return m.Processed(), nil
	}
}

// await wakes the processor and, unless snel is set, polls the mutation for a short
// while. Ping and poll failures only cost the caller the confirmation.
func (s *MutationService) await(ctx context.Context, queue string, id int64, pinger jobs.Pinger, snel bool, check func(context.Context) (bool, error)) (*dto.EnqueueResponse, error) {
	if pinger != nil {
		if err := pinger.Ping(ctx); err != nil {
			logger.FromContext(ctx, s.logger).Warn("mutation ping failed", zap.String("queue", queue), zap.Error(err))
		}
	}
	resp := &dto.EnqueueResponse{ID: id}
	if snel {
		return resp, nil
	}
	processed, err := jobs.WaitProcessed(ctx, s.cfg.Wait, check)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("waiting for mutation failed", zap.String("queue", queue), zap.Int64("mutation_id", id), zap.Error(err))
	}
	resp.Processed = processed
	return resp, nil
}

// AddRegistration creates a registration in cart state and enqueues adding it to the
// account's cart.
func (s *MutationService) AddRegistration(ctx context.Context, req dto.AddRegistrationRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	accountID := actor.AccountID
	m := &models.CartMutation{Code: models.CartMutationRegister, Actor: actor.Actor(), AccountID: &accountID}

	err := s.tx(ctx, func(st Stores) error {
		active, err := st.Registrations.FindActive(ctx, req.EventID, req.SporterBoogID)
		if err != nil {
			return err
		}
		if active != nil {
			return appErrors.Clone(appErrors.ErrConflict, "sporterboog is already registered for this event")
		}
		reg := &models.Registration{
			EventID:       req.EventID,
			SessionID:     req.SessionID,
			SporterBoogID: req.SporterBoogID,
			AccountID:     accountID,
			Status:        models.RegistrationStatusCart,
			Log:           fmt.Sprintf("[%s] Toegevoegd aan het mandje door %s\n", logStamp(s.clock.now()), m.Actor),
		}
		if err := st.Registrations.Create(ctx, reg); err != nil {
			return err
		}
		regID := reg.ID
		m.RegistrationID = &regID
		_, err = st.CartMutations.CreatePending(ctx, m)
		return err
	})
	if err != nil {
		return nil, internalErr(err, "failed to register")
	}
	return s.finishCart(ctx, m, req.Snel)
}

// RemoveItem enqueues the removal of a line item from the caller's cart.
func (s *MutationService) RemoveItem(ctx context.Context, itemID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	cart, err := s.stores.Carts.Find(ctx, actor.AccountID)
	if err != nil {
		return nil, notFound("cart", err)
	}
	if _, err := s.stores.Carts.GetItem(ctx, cart.ID, itemID); err != nil {
		return nil, notFound("cart item", err)
	}
	accountID := actor.AccountID
	m := &models.CartMutation{Code: models.CartMutationRemove, Actor: actor.Actor(), AccountID: &accountID, CartItemID: &itemID}
	return s.enqueueCart(ctx, m, req.Snel)
}

// SetDiscountCode enqueues entering a discount code on the caller's cart.
func (s *MutationService) SetDiscountCode(ctx context.Context, req dto.DiscountCodeRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	accountID := actor.AccountID
	code := strings.TrimSpace(req.Code)
	m := &models.CartMutation{Code: models.CartMutationDiscountCode, Actor: actor.Actor(), AccountID: &accountID, DiscountCode: &code}
	return s.enqueueCart(ctx, m, req.Snel)
}

// Checkout enqueues turning the caller's cart into orders.
func (s *MutationService) Checkout(ctx context.Context, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	accountID := actor.AccountID
	m := &models.CartMutation{Code: models.CartMutationPlaceOrders, Actor: actor.Actor(), AccountID: &accountID}
	return s.enqueueCart(ctx, m, req.Snel)
}

// CancelRegistration enqueues cancelling an ordered registration. Only the account that
// made the registration may cancel it.
func (s *MutationService) CancelRegistration(ctx context.Context, registrationID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error) {
	reg, err := s.stores.Registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, notFound("registration", err)
	}
	if reg.AccountID != actor.AccountID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another account")
	}
	accountID := actor.AccountID
	m := &models.CartMutation{Code: models.CartMutationCancelRegistration, Actor: actor.Actor(), AccountID: &accountID, RegistrationID: &registrationID}
	return s.enqueueCart(ctx, m, req.Snel)
}

func (s *MutationService) enqueueCart(ctx context.Context, m *models.CartMutation, snel bool) (*dto.EnqueueResponse, error) {
	created, err := s.stores.CartMutations.CreatePending(ctx, m)
	if err != nil {
		return nil, internalErr(err, "failed to enqueue mutation")
	}
	if !created {
		logger.FromContext(ctx, s.logger).Info("cart mutation already queued", zap.Int64("mutation_id", m.ID), zap.String("code", m.Code.String()))
	}
	return s.finishCart(ctx, m, snel)
}

func (s *MutationService) finishCart(ctx context.Context, m *models.CartMutation, snel bool) (*dto.EnqueueResponse, error) {
	s.cfg.Metrics.RecordEnqueue(QueueCart, m.Code.String())
	logger.FromContext(ctx, s.logger).Info("mutation enqueued", zap.String("queue", QueueCart), zap.Int64("mutation_id", m.ID),
		zap.String("code", m.Code.String()), zap.String("actor", m.Actor))
	return s.await(ctx, QueueCart, m.ID, s.cfg.CartPing, snel, s.cartProcessed(m.ID))
}

// Status reports whether a mutation of queue has been processed.
func (s *MutationService) Status(ctx context.Context, queue string, id int64) (*models.MutationStatus, error) {
	switch queue {
	case QueueCompetition:
		m, err := s.stores.CompetitionMutations.Get(ctx, id)
		if err != nil {
			return nil, mutationNotFound(err)
		}
		return &models.MutationStatus{ID: m.ID, Code: m.Code.String(), Processed: m.IsProcessed, LastError: m.LastError}, nil
	case QueueCart:
		m, err := s.stores.CartMutations.Get(ctx, id)
		if err != nil {
			return nil, mutationNotFound(err)
		}
		return &models.MutationStatus{ID: m.ID, Code: m.Code.String(), Processed: m.IsProcessed, LastError: m.LastError}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown queue "+queue)
	}
}

func mutationNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrMutationNotFound, "")
	}
	return internalErr(err, "failed to load mutation")
}
