package service

import (
	"context"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/pkg/jobs"
)

type competitionHandler = func(context.Context, *models.CompetitionMutation) error

type phaseHandlers interface {
	OpenSeason(ctx context.Context, m *models.CompetitionMutation) error
	FixSeedAverages(distance int) func(context.Context, *models.CompetitionMutation) error
	FixClassBoundaries(ctx context.Context, m *models.CompetitionMutation) error
	CloseRegioToRK(ctx context.Context, m *models.CompetitionMutation) error
	OpenRKToBKIndiv(ctx context.Context, m *models.CompetitionMutation) error
	OpenRKToBKTeams(ctx context.Context, m *models.CompetitionMutation) error
	CloseBKIndiv(ctx context.Context, m *models.CompetitionMutation) error
	CloseBKTeams(ctx context.Context, m *models.CompetitionMutation) error
}

type kampHandlers interface {
	CutIndiv(ctx context.Context, m *models.CompetitionMutation) error
	CutTeam(ctx context.Context, m *models.CompetitionMutation) error
	SignOn(ctx context.Context, m *models.CompetitionMutation) error
	SignOff(ctx context.Context, m *models.CompetitionMutation) error
	MoveClass(ctx context.Context, m *models.CompetitionMutation) error
	TeamsRenumber(ctx context.Context, m *models.CompetitionMutation) error
}

type cartHandlers interface {
	AddRegistration(ctx context.Context, m *models.CartMutation) error
	RemoveItem(ctx context.Context, m *models.CartMutation) error
	SetDiscountCode(ctx context.Context, m *models.CartMutation) error
	PlaceOrders(ctx context.Context, m *models.CartMutation) error
	CancelRegistration(ctx context.Context, m *models.CartMutation) error
	Recompute(ctx context.Context, m *models.CartMutation) error
}

// CompetitionHandlers builds the dispatch table of the competition queue.
func CompetitionHandlers(phases phaseHandlers, kamps kampHandlers) jobs.Table[*models.CompetitionMutation] {
	byCode := map[models.CompetitionMutationCode]competitionHandler{
		models.CompetitionMutationOpenSeason:         phases.OpenSeason,
		models.CompetitionMutationFixSeedAverages18:  phases.FixSeedAverages(models.Distance18),
		models.CompetitionMutationFixSeedAverages25:  phases.FixSeedAverages(models.Distance25),
		models.CompetitionMutationFixClassBoundaries: phases.FixClassBoundaries,
		models.CompetitionMutationCloseRegioToRK:     phases.CloseRegioToRK,
		models.CompetitionMutationOpenRKToBKIndiv:    phases.OpenRKToBKIndiv,
		models.CompetitionMutationOpenRKToBKTeams:    phases.OpenRKToBKTeams,
		models.CompetitionMutationCloseBKIndiv:       phases.CloseBKIndiv,
		models.CompetitionMutationCloseBKTeams:       phases.CloseBKTeams,
		models.CompetitionMutationKampCutIndiv:       kamps.CutIndiv,
		models.CompetitionMutationKampCutTeam:        kamps.CutTeam,
		models.CompetitionMutationKampSignOn:         kamps.SignOn,
		models.CompetitionMutationKampSignOff:        kamps.SignOff,
		models.CompetitionMutationKampMoveClass:      kamps.MoveClass,
		models.CompetitionMutationKampTeamsRenumber:  kamps.TeamsRenumber,
		// INITIAL only seeds an empty queue so the processor has a watermark.
		models.CompetitionMutationInitial: func(context.Context, *models.CompetitionMutation) error { return nil },
	}

	table := make(jobs.Table[*models.CompetitionMutation], len(byCode))
	for code, fn := range byCode {
		table[int(code)] = jobs.HandlerFunc[*models.CompetitionMutation](fn)
	}
	return table
}

// CartHandlers builds the dispatch table of the cart queue.
func CartHandlers(carts cartHandlers) jobs.Table[*models.CartMutation] {
	byCode := map[models.CartMutationCode]func(context.Context, *models.CartMutation) error{
		models.CartMutationRegister:           carts.AddRegistration,
		models.CartMutationRemove:             carts.RemoveItem,
		models.CartMutationDiscountCode:       carts.SetDiscountCode,
		models.CartMutationPlaceOrders:        carts.PlaceOrders,
		models.CartMutationCancelRegistration: carts.CancelRegistration,
		models.CartMutationRecompute:          carts.Recompute,
	}

	table := make(jobs.Table[*models.CartMutation], len(byCode))
	for code, fn := range byCode {
		table[int(code)] = jobs.HandlerFunc[*models.CartMutation](fn)
	}
	return table
}

// CompetitionCodeName renders a competition mutation code for logs and metrics.
func CompetitionCodeName(code int) string {
	return models.CompetitionMutationCode(code).String()
}

// CartCodeName renders a cart mutation code for logs and metrics.
func CartCodeName(code int) string {
	return models.CartMutationCode(code).String()
}
