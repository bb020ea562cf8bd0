package models

import "strings"

// Round identifies a championship tier.
type Round string

const (
	RoundRK Round = "RK"
	RoundBK Round = "BK"
)

// Deelname is an entrant's participation decision.
type Deelname string

const (
	DeelnameJa       Deelname = "JA"
	DeelnameNee      Deelname = "NEE"
	DeelnameOnbekend Deelname = "ONBEKEND"
)

// Rank sentinels shared by rank and result_rank.
const (
	RankUnknown = 0
	RankBlanco  = 100
	RankReserve = 32000
	RankNoShow  = 32001
)

const (
	// RosterCap is the number of rows kept per class: 24 main plus 24 reserve.
	RosterCap           = 48
	DefaultIndivLimit   = 24
	DefaultTeamLimit    = 8
	DefaultTeamLimitEre = 12
	// VolgordeParkeer temporarily holds a row while the rest of the class is shifted.
	VolgordeParkeer     = 22222
)

// AllowedCuts are the limits a championship organiser may choose.
var AllowedCuts = []int{4, 8, 12, 16, 20, 24}

// DefaultTeamLimitFor returns the team limit used when no explicit limit is stored.
func DefaultTeamLimitFor(classDescription string) int {
	if strings.Contains(strings.ToUpper(classDescription), "ERE") {
		return DefaultTeamLimitEre
	}
	return DefaultTeamLimit
}

// Kampioenschap is one RK (per rayon) or the BK of a competition.
type Kampioenschap struct {
	ID            int64  `db:"id" json:"id"`
	CompetitionID int64  `db:"competition_id" json:"competitionId"`
	Round         Round  `db:"round" json:"round"`
	RayonNr       int    `db:"rayon_nr" json:"rayonNr"`
	RayonName     string `db:"rayon_name" json:"rayonName"`
	HasRoster     bool   `db:"has_roster" json:"hasRoster"`
}

// IndivClass is an individual competition class.
type IndivClass struct {
	ID               int64  `db:"id" json:"id"`
	CompetitionID    int64  `db:"competition_id" json:"competitionId"`
	Volgorde         int    `db:"volgorde" json:"volgorde"`
	Description      string `db:"description" json:"description"`
	IsForRKBK        bool   `db:"is_for_rk_bk" json:"isForRkBk"`
	NextRoundClassID *int64 `db:"next_round_class_id" json:"nextRoundClassId,omitempty"`
}

// TeamClass is a team competition class.
type TeamClass struct {
	ID               int64  `db:"id" json:"id"`
	CompetitionID    int64  `db:"competition_id" json:"competitionId"`
	Volgorde         int    `db:"volgorde" json:"volgorde"`
	Description      string `db:"description" json:"description"`
	IsForRKBK        bool   `db:"is_for_rk_bk" json:"isForRkBk"`
	NextRoundClassID *int64 `db:"next_round_class_id" json:"nextRoundClassId,omitempty"`
}

// RegioEntrant is a regio competition participant with the data the RK roster needs.
type RegioEntrant struct {
	ID             int64   `db:"id"`
	SporterBoogID  int64   `db:"sporterboog_id"`
	IndivClassID   int64   `db:"indiv_class_id"`
	ClassVolgorde  int     `db:"class_volgorde"`
	IsForRKBK      bool    `db:"is_for_rk_bk"`
	RegioNr        int     `db:"regio_nr"`
	ScoresCount    int     `db:"scores_count"`
	Average        float64 `db:"average"`
	Score1         int     `db:"score1"`
	Score2         int     `db:"score2"`
	Score3         int     `db:"score3"`
	Score4         int     `db:"score4"`
	Score5         int     `db:"score5"`
	Score6         int     `db:"score6"`
	Score7         int     `db:"score7"`
	CurrentClubID  *int64  `db:"current_club_id"`
	CurrentRayonNr *int    `db:"current_rayon_nr"`
	WantsRKBK      bool    `db:"wants_rk_bk"`
}

// Scores returns the seven regio scores.
func (e RegioEntrant) Scores() []int {
	return []int{e.Score1, e.Score2, e.Score3, e.Score4, e.Score5, e.Score6, e.Score7}
}

// KampEntrant is one competitor in one championship (KampioenschapSporterBoog).
type KampEntrant struct {
	ID              int64    `db:"id" json:"id"`
	KampioenschapID int64    `db:"kampioenschap_id" json:"kampioenschapId"`
	SporterBoogID   int64    `db:"sporterboog_id" json:"sporterboogId"`
	IndivClassID    int64    `db:"indiv_class_id" json:"indivClassId"`
	ClubID          int64    `db:"club_id" json:"clubId"`
	RegioEntrantID  *int64   `db:"regio_entrant_id" json:"-"`
	Average         float64  `db:"average" json:"average"`
	Scores          string   `db:"scores" json:"scores"`
	Volgorde        int      `db:"volgorde" json:"volgorde"`
	Rank            int      `db:"rank" json:"rank"`
	Deelname        Deelname `db:"deelname" json:"deelname"`
	ResultRank      int      `db:"result_rank" json:"resultRank"`
	Score1          int      `db:"score1" json:"score1"`
	Score2          int      `db:"score2" json:"score2"`
	ChampionLabel   string   `db:"champion_label" json:"championLabel,omitempty"`
	Log             string   `db:"log" json:"log,omitempty"`
}

// IsChampion reports whether the entrant carries a champion label.
func (e *KampEntrant) IsChampion() bool {
	return e.ChampionLabel != ""
}

// AppendLog adds a line to the entrant's log trail.
func (e *KampEntrant) AppendLog(line string) {
	e.Log += line + "\n"
}

// RKFinisher is an RK entrant together with what the BK roster needs from its round.
type RKFinisher struct {
	KampEntrant
	RayonName   string `db:"rayon_name"`
	NextClassID *int64 `db:"next_class_id"`
}

// KampTeam is one team in one championship.
type KampTeam struct {
	ID              int64    `db:"id" json:"id"`
	KampioenschapID int64    `db:"kampioenschap_id" json:"kampioenschapId"`
	TeamClassID     *int64   `db:"team_class_id" json:"teamClassId,omitempty"`
	NextClassID     *int64   `db:"next_class_id" json:"nextClassId,omitempty"`
	ClubID          int64    `db:"club_id" json:"clubId"`
	Name            string   `db:"name" json:"name"`
	Volgorde        int      `db:"volgorde" json:"volgorde"`
	Rank            int      `db:"rank" json:"rank"`
	Deelname        Deelname `db:"deelname" json:"deelname"`
	Average         float64  `db:"average" json:"average"`
	ResultRank      int      `db:"result_rank" json:"resultRank"`
	ResultScore     int      `db:"result_score" json:"resultScore"`
	ChampionLabel   string   `db:"champion_label" json:"championLabel,omitempty"`
	RayonName       string   `db:"rayon_name" json:"-"`
	Members         []int64  `db:"-" json:"members,omitempty"`
}

// ProvisionalMember links a regio entrant to an RK team before the RK roster exists.
type ProvisionalMember struct {
	TeamID         int64 `db:"team_id"`
	TeamClubID     int64 `db:"team_club_id"`
	RegioEntrantID int64 `db:"regio_entrant_id"`
}

// ClassLimit is an explicit cut for one class of a championship.
type ClassLimit struct {
	KampioenschapID int64  `db:"kampioenschap_id"`
	IndivClassID    *int64 `db:"indiv_class_id"`
	TeamClassID     *int64 `db:"team_class_id"`
	Limit           int    `db:"limit_value"`
}
