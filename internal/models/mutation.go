package models

import (
	"fmt"
	"time"
)

// CompetitionMutationCode enumerates the competition queue operations.
type CompetitionMutationCode int

const (
	CompetitionMutationOpenSeason CompetitionMutationCode = iota + 1
	CompetitionMutationFixSeedAverages18
	CompetitionMutationFixSeedAverages25
	CompetitionMutationFixClassBoundaries
	CompetitionMutationCloseRegioToRK
	CompetitionMutationOpenRKToBKIndiv
	CompetitionMutationOpenRKToBKTeams
	CompetitionMutationCloseBKIndiv
	CompetitionMutationCloseBKTeams
	CompetitionMutationKampCutIndiv
	CompetitionMutationKampCutTeam
	CompetitionMutationKampSignOn
	CompetitionMutationKampSignOff
	CompetitionMutationKampMoveClass
	CompetitionMutationKampTeamsRenumber
	CompetitionMutationInitial
)

var competitionMutationNames = map[CompetitionMutationCode]string{
	CompetitionMutationOpenSeason:         "OPEN_SEASON",
	CompetitionMutationFixSeedAverages18:  "FIX_SEED_AVERAGES_18",
	CompetitionMutationFixSeedAverages25:  "FIX_SEED_AVERAGES_25",
	CompetitionMutationFixClassBoundaries: "FIX_CLASS_BOUNDARIES",
	CompetitionMutationCloseRegioToRK:     "CLOSE_REGIO_TO_RK",
	CompetitionMutationOpenRKToBKIndiv:    "OPEN_RK_TO_BK_INDIV",
	CompetitionMutationOpenRKToBKTeams:    "OPEN_RK_TO_BK_TEAMS",
	CompetitionMutationCloseBKIndiv:       "CLOSE_BK_INDIV",
	CompetitionMutationCloseBKTeams:       "CLOSE_BK_TEAMS",
	CompetitionMutationKampCutIndiv:       "KAMP_CUT_INDIV",
	CompetitionMutationKampCutTeam:        "KAMP_CUT_TEAM",
	CompetitionMutationKampSignOn:         "KAMP_SIGN_ON",
	CompetitionMutationKampSignOff:        "KAMP_SIGN_OFF",
	CompetitionMutationKampMoveClass:      "KAMP_MOVE_CLASS",
	CompetitionMutationKampTeamsRenumber:  "KAMP_TEAMS_RENUMBER",
	CompetitionMutationInitial:            "INITIAL",
}

func (c CompetitionMutationCode) String() string {
	if name, ok := competitionMutationNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMPETITION_%d", int(c))
}

// CartMutationCode enumerates the cart queue operations.
type CartMutationCode int

const (
	CartMutationRegister CartMutationCode = iota + 1
	CartMutationRemove
	CartMutationDiscountCode
	CartMutationPlaceOrders
	CartMutationCancelRegistration
	CartMutationRecompute
)

var cartMutationNames = map[CartMutationCode]string{
	CartMutationRegister:           "REGISTER",
	CartMutationRemove:             "REMOVE",
	CartMutationDiscountCode:       "DISCOUNT_CODE",
	CartMutationPlaceOrders:        "PLACE_ORDERS",
	CartMutationCancelRegistration: "CANCEL_REGISTRATION",
	CartMutationRecompute:          "RECOMPUTE",
}

func (c CartMutationCode) String() string {
	if name, ok := cartMutationNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CART_%d", int(c))
}

// ActorMaxLength bounds the free-text actor stored on a mutation.
const ActorMaxLength = 64

// TruncateActor shortens actor to ActorMaxLength runes.
func TruncateActor(actor string) string {
	runes := []rune(actor)
	if len(runes) > ActorMaxLength {
		return string(runes[:ActorMaxLength])
	}
	return actor
}

// CompetitionMutation is one queued competition state change. Only the
// reference columns relevant to Code are populated.
type CompetitionMutation struct {
	ID              int64                   `db:"id" json:"id"`
	CreatedAt       time.Time               `db:"created_at" json:"createdAt"`
	Code            CompetitionMutationCode `db:"code" json:"code"`
	IsProcessed     bool                    `db:"is_processed" json:"isProcessed"`
	ProcessedAt     *time.Time              `db:"processed_at" json:"processedAt,omitempty"`
	Actor           string                  `db:"actor" json:"actor"`
	LastError       *string                 `db:"last_error" json:"lastError,omitempty"`
	CompetitionID   *int64                  `db:"competition_id" json:"competitionId,omitempty"`
	KampioenschapID *int64                  `db:"kampioenschap_id" json:"kampioenschapId,omitempty"`
	IndivClassID    *int64                  `db:"indiv_class_id" json:"indivClassId,omitempty"`
	TeamClassID     *int64                  `db:"team_class_id" json:"teamClassId,omitempty"`
	ParticipantID   *int64                  `db:"participant_id" json:"participantId,omitempty"`
	CutOld          *int                    `db:"cut_old" json:"cutOld,omitempty"`
	CutNew          *int                    `db:"cut_new" json:"cutNew,omitempty"`
}

func (m *CompetitionMutation) MutationID() int64 { return m.ID }
func (m *CompetitionMutation) MutationCode() int { return int(m.Code) }
func (m *CompetitionMutation) Processed() bool   { return m.IsProcessed }

// CartMutation is one queued cart or order change.
type CartMutation struct {
	ID             int64            `db:"id" json:"id"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	Code           CartMutationCode `db:"code" json:"code"`
	IsProcessed    bool             `db:"is_processed" json:"isProcessed"`
	ProcessedAt    *time.Time       `db:"processed_at" json:"processedAt,omitempty"`
	Actor          string           `db:"actor" json:"actor"`
	LastError      *string          `db:"last_error" json:"lastError,omitempty"`
	AccountID      *int64           `db:"account_id" json:"accountId,omitempty"`
	RegistrationID *int64           `db:"registration_id" json:"registrationId,omitempty"`
	CartItemID     *int64           `db:"cart_item_id" json:"cartItemId,omitempty"`
	OrderID        *int64           `db:"order_id" json:"orderId,omitempty"`
	DiscountCode   *string          `db:"discount_code" json:"discountCode,omitempty"`
}

func (m *CartMutation) MutationID() int64 { return m.ID }
func (m *CartMutation) MutationCode() int { return int(m.Code) }
func (m *CartMutation) Processed() bool   { return m.IsProcessed }

// MutationStatus is returned to callers polling a mutation.
type MutationStatus struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	Processed bool    `json:"processed"`
	LastError *string `json:"lastError,omitempty"`
}
