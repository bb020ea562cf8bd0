package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
)

// Arrows shot in the two RK rounds, used to turn an RK result into a BK average.
const (
	arrowsIndoor  = 60.0
	arrowsOutdoor = 50.0
)

func rkArrows(distance int) float64 {
	if distance == models.Distance18 {
		return arrowsIndoor
	}
	return arrowsOutdoor
}

// logStamp formats the timestamp used in entrant and registration logs.
func logStamp(t time.Time) string {
	return t.Format("2006-01-02 om 15:04")
}

// rosterSlot is the view of an entrant or a team the placement rules work on.
type rosterSlot struct {
	average  float64
	scores   string
	champion bool
	volgorde *int
	rank     *int
	deelname *models.Deelname
}

func (s rosterSlot) declined() bool {
	return *s.deelname == models.DeelnameNee
}

func entrantSlots(rows []models.KampEntrant) []rosterSlot {
	slots := make([]rosterSlot, len(rows))
	for i := range rows {
		r := &rows[i]
		slots[i] = rosterSlot{average: r.Average, scores: r.Scores, champion: r.IsChampion(),
			volgorde: &r.Volgorde, rank: &r.Rank, deelname: &r.Deelname}
	}
	return slots
}

func teamSlots(rows []models.KampTeam) []rosterSlot {
	slots := make([]rosterSlot, len(rows))
	for i := range rows {
		r := &rows[i]
		slots[i] = rosterSlot{average: r.Average, champion: r.ChampionLabel != "",
			volgorde: &r.Volgorde, rank: &r.Rank, deelname: &r.Deelname}
	}
	return slots
}

type placed struct {
	slot rosterSlot
	pos  int
}

// sortPlaced orders on average, highest first; equal averages put the later list position first.
func sortPlaced(list []placed) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].slot.average != list[j].slot.average {
			return list[i].slot.average > list[j].slot.average
		}
		return list[i].pos > list[j].pos
	})
}

// byStrength returns the indexes of slots ordered on average then scores, highest first.
func byStrength(slots []rosterSlot, include func(rosterSlot) bool) []int {
	idx := make([]int, 0, len(slots))
	for i, s := range slots {
		if include(s) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := slots[idx[a]], slots[idx[b]]
		if sa.average != sb.average {
			return sa.average > sb.average
		}
		return sa.scores > sb.scores
	})
	return idx
}

type numberer struct {
	volgorde int
	rank     int
}

func (n *numberer) assign(s rosterSlot, setYes bool) {
	n.volgorde++
	*s.volgorde = n.volgorde
	if s.declined() {
		*s.rank = 0
		return
	}
	n.rank++
	*s.rank = n.rank
	if setYes {
		*s.deelname = models.DeelnameJa
	}
}

// placeSlots puts the champions and the best others up to limit participants in
// front, sorted on average, and numbers everyone else after them.
func placeSlots(slots []rosterSlot, limit int, setAboveCutYes bool) {
	used := make([]bool, len(slots))
	block := make([]placed, 0, limit+4)
	count := 0
	for i, s := range slots {
		if !s.champion {
			continue
		}
		if !s.declined() {
			count++
		}
		block = append(block, placed{slot: s, pos: len(block)})
		used[i] = true
	}

	others := byStrength(slots, func(s rosterSlot) bool { return !s.champion })
	for _, i := range others {
		s := slots[i]
		block = append(block, placed{slot: s, pos: len(block)})
		used[i] = true
		if !s.declined() {
			count++
			if count >= limit {
				break
			}
		}
	}
	sortPlaced(block)

	var n numberer
	for _, p := range block {
		n.assign(p.slot, setAboveCutYes)
	}
	for _, i := range others {
		if !used[i] {
			n.assign(slots[i], false)
		}
	}
}

func sortEntrantsByVolgorde(rows []models.KampEntrant) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Volgorde < rows[j].Volgorde })
}

func sortTeamsByVolgorde(rows []models.KampTeam) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Volgorde < rows[j].Volgorde })
}

// PlaceInitial assigns volgorde and rank to the entrants of one class of one
// championship. Champions are always inside the cut. With setAboveCutYes every
// participant inside the cut gets deelname JA. rows is returned in volgorde order.
func PlaceInitial(rows []models.KampEntrant, limit int, setAboveCutYes bool) {
	placeSlots(entrantSlots(rows), limit, setAboveCutYes)
	sortEntrantsByVolgorde(rows)
}

// PlaceTeams is PlaceInitial for the teams of one class.
func PlaceTeams(rows []models.KampTeam, limit int) {
	placeSlots(teamSlots(rows), limit, false)
	sortTeamsByVolgorde(rows)
}

// RenumberRanks gives every participant a rank in volgorde order; declined rows get rank 0.
func RenumberRanks(rows []models.KampEntrant) {
	sortEntrantsByVolgorde(rows)
	rank := 0
	for i := range rows {
		if rows[i].Deelname == models.DeelnameNee {
			rows[i].Rank = 0
			continue
		}
		rank++
		rows[i].Rank = rank
	}
}

// RenumberTeamRanks is RenumberRanks for teams; volgorde is left alone.
func RenumberTeamRanks(rows []models.KampTeam) {
	sortTeamsByVolgorde(rows)
	rank := 0
	for i := range rows {
		if rows[i].Deelname == models.DeelnameNee {
			rows[i].Rank = 0
			continue
		}
		rank++
		rows[i].Rank = rank
	}
}

// SplitByClass groups entrants per championship and class, keeping their order.
// Groups come out ordered by championship id then class id.
func SplitByClass(rows []models.KampEntrant) [][]models.KampEntrant {
	type key struct{ kamp, class int64 }
	groups := make(map[key][]models.KampEntrant)
	keys := make([]key, 0)
	for _, r := range rows {
		k := key{r.KampioenschapID, r.IndivClassID}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kamp != keys[j].kamp {
			return keys[i].kamp < keys[j].kamp
		}
		return keys[i].class < keys[j].class
	})
	out := make([][]models.KampEntrant, len(keys))
	for i, k := range keys {
		out[i] = groups[k]
	}
	return out
}

// RKRoster is the outcome of BuildRKRoster.
type RKRoster struct {
	Entrants []models.KampEntrant
	// Skipped lists the regio entrants left out because their sporter has no club.
	Skipped []int64
}

// BuildRKRoster turns the qualifying regio entrants into RK entrants. Per class the
// best entrant of every regio becomes its champion; champions lead the class in
// descending regio order, followed by the others on average. Each entrant moves to
// the RK of the rayon of its current club, which is frozen onto the row.
func BuildRKRoster(regio []models.RegioEntrant, minScores int, kampByRayon map[int]int64, now time.Time) RKRoster {
	stamp := logStamp(now)
	qualifying := make([]models.RegioEntrant, 0, len(regio))
	for _, e := range regio {
		if e.IsForRKBK && e.ScoresCount >= minScores {
			qualifying = append(qualifying, e)
		}
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		a, b := qualifying[i], qualifying[j]
		if a.ClassVolgorde != b.ClassVolgorde {
			return a.ClassVolgorde < b.ClassVolgorde
		}
		if a.Average != b.Average {
			return a.Average > b.Average
		}
		return a.ID < b.ID
	})

	var roster RKRoster
	for start := 0; start < len(qualifying); {
		end := start
		for end < len(qualifying) && qualifying[end].IndivClassID == qualifying[start].IndivClassID {
			end++
		}
		for _, e := range spliceChampions(qualifying[start:end]) {
			entrant, ok := newRKEntrant(e.RegioEntrant, e.label, kampByRayon, stamp)
			if !ok {
				roster.Skipped = append(roster.Skipped, e.ID)
				continue
			}
			roster.Entrants = append(roster.Entrants, entrant)
		}
		start = end
	}
	return roster
}

type labelled struct {
	models.RegioEntrant
	label string
}

// spliceChampions takes one class sorted on average and moves the best entrant of
// every regio to the front, highest regio number first.
func spliceChampions(class []models.RegioEntrant) []labelled {
	seen := make(map[int]bool)
	champions := make([]labelled, 0)
	rest := make([]labelled, 0, len(class))
	for _, e := range class {
		if !seen[e.RegioNr] {
			seen[e.RegioNr] = true
			champions = append(champions, labelled{e, fmt.Sprintf("Kampioen regio %d", e.RegioNr)})
			continue
		}
		rest = append(rest, labelled{RegioEntrant: e})
	}
	sort.SliceStable(champions, func(i, j int) bool { return champions[i].RegioNr > champions[j].RegioNr })
	return append(champions, rest...)
}

func newRKEntrant(e models.RegioEntrant, label string, kampByRayon map[int]int64, stamp string) (models.KampEntrant, bool) {
	if e.CurrentClubID == nil || e.CurrentRayonNr == nil {
		return models.KampEntrant{}, false
	}
	kampID, ok := kampByRayon[*e.CurrentRayonNr]
	if !ok {
		return models.KampEntrant{}, false
	}
	regioID := e.ID
	entrant := models.KampEntrant{
		KampioenschapID: kampID,
		SporterBoogID:   e.SporterBoogID,
		IndivClassID:    e.IndivClassID,
		ClubID:          *e.CurrentClubID,
		RegioEntrantID:  &regioID,
		Average:         e.Average,
		Scores:          BestScores(e.Scores()),
		Deelname:        models.DeelnameOnbekend,
		ChampionLabel:   label,
	}
	entrant.AppendLog(fmt.Sprintf("[%s] Toegevoegd aan de RK indiv deelnemerslijst", stamp))
	if !e.WantsRKBK {
		entrant.Deelname = models.DeelnameNee
		entrant.AppendLog(fmt.Sprintf("[%s] Deelname op Nee gezet want geen voorkeur RK/BK", stamp))
	}
	return entrant, true
}

// BestScores renders the scores highest first as zero padded triplets. Used as tie-break on equal averages.
func BestScores(scores []int) string {
	sorted := append([]int(nil), scores...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	var b strings.Builder
	for _, s := range sorted {
		fmt.Fprintf(&b, "%03d", s)
	}
	return b.String()
}

// BuildBKIndiv converts RK finishers into BK entrants of the BK championship bkID.
func BuildBKIndiv(finishers []models.RKFinisher, distance int, bkID int64, now time.Time) []models.KampEntrant {
	stamp := logStamp(now)
	arrows := rkArrows(distance)
	out := make([]models.KampEntrant, 0, len(finishers))
	for _, f := range finishers {
		classID := f.IndivClassID
		if f.NextClassID != nil {
			classID = *f.NextClassID
		}
		hi, lo := f.Score1, f.Score2
		if lo > hi {
			hi, lo = lo, hi
		}
		entrant := models.KampEntrant{
			KampioenschapID: bkID,
			SporterBoogID:   f.SporterBoogID,
			IndivClassID:    classID,
			ClubID:          f.ClubID,
			Average:         float64(f.Score1+f.Score2) / arrows,
			Scores:          fmt.Sprintf("%03d%03d", hi, lo),
			Deelname:        models.DeelnameOnbekend,
		}
		entrant.AppendLog(fmt.Sprintf("[%s] Toegevoegd aan de BK indiv deelnemerslijst", stamp))
		if f.ResultRank == 1 {
			entrant.ChampionLabel = "Kampioen " + f.RayonName
			entrant.Deelname = models.DeelnameJa
			entrant.AppendLog(fmt.Sprintf("[%s] Deelname op Ja gezet, want kampioen RK", stamp))
		}
		out = append(out, entrant)
	}
	return out
}

// TeamLinks is the outcome of LinkRKTeams.
type TeamLinks struct {
	Members  map[int64][]int64
	Averages map[int64]float64
}

// LinkRKTeams links the provisional team members to their new RK entrants. A member
// is linked when its frozen club is the team's club and it is not already in
// another team. A team's strength is the sum of its three best member averages,
// or 0 with fewer than three members.
func LinkRKTeams(teams []models.KampTeam, provisional []models.ProvisionalMember, entrants []models.KampEntrant) TeamLinks {
	byRegio := make(map[int64]models.KampEntrant, len(entrants))
	for _, e := range entrants {
		if e.RegioEntrantID != nil {
			byRegio[*e.RegioEntrantID] = e
		}
	}

	links := TeamLinks{Members: make(map[int64][]int64), Averages: make(map[int64]float64)}
	averages := make(map[int64][]float64)
	linked := make(map[int64]bool)
	for _, p := range provisional {
		e, ok := byRegio[p.RegioEntrantID]
		if !ok || e.ClubID != p.TeamClubID || linked[e.ID] {
			continue
		}
		linked[e.ID] = true
		links.Members[p.TeamID] = append(links.Members[p.TeamID], e.ID)
		averages[p.TeamID] = append(averages[p.TeamID], e.Average)
	}

	for _, t := range teams {
		avgs := averages[t.ID]
		if len(avgs) < 3 {
			links.Averages[t.ID] = 0
			continue
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(avgs)))
		links.Averages[t.ID] = avgs[0] + avgs[1] + avgs[2]
	}
	return links
}

// maxTeamsPerClub bounds the BK teams of one club in one class.
const maxTeamsPerClub = 2

// BKTeams is the outcome of BuildBKTeams.
type BKTeams struct {
	Teams   []models.KampTeam
	Skipped []models.KampTeam
}

// BuildBKTeams converts the selected RK teams, ordered per class on result rank,
// into BK teams. A club sends at most two teams per class. The average is the RK
// team score per arrow.
func BuildBKTeams(candidates []models.KampTeam, members map[int64][]int64, distance int, bkID int64) BKTeams {
	arrows := rkArrows(distance)
	perClub := make(map[int64]map[int64]int)
	var out BKTeams
	for _, rk := range candidates {
		classID := rk.TeamClassID
		if rk.NextClassID != nil {
			classID = rk.NextClassID
		}
		var classKey int64
		if classID != nil {
			classKey = *classID
		}
		if perClub[classKey] == nil {
			perClub[classKey] = make(map[int64]int)
		}
		perClub[classKey][rk.ClubID]++
		if perClub[classKey][rk.ClubID] > maxTeamsPerClub {
			out.Skipped = append(out.Skipped, rk)
			continue
		}

		team := models.KampTeam{
			KampioenschapID: bkID,
			TeamClassID:     classID,
			ClubID:          rk.ClubID,
			Name:            rk.Name,
			Deelname:        models.DeelnameOnbekend,
			Average:         float64(rk.ResultScore) / arrows,
			Members:         append([]int64(nil), members[rk.ID]...),
		}
		if rk.ResultRank == 1 {
			team.ChampionLabel = "Kampioen " + rk.RayonName
			team.Deelname = models.DeelnameJa
		}
		out.Teams = append(out.Teams, team)
	}
	return out
}

// SplitTeamsByClass groups teams per class, keeping their order. Groups come out ordered by class id.
func SplitTeamsByClass(rows []models.KampTeam) [][]models.KampTeam {
	groups := make(map[int64][]models.KampTeam)
	keys := make([]int64, 0)
	for _, r := range rows {
		var k int64
		if r.TeamClassID != nil {
			k = *r.TeamClassID
		}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([][]models.KampTeam, len(keys))
	for i, k := range keys {
		out[i] = groups[k]
	}
	return out
}

func findEntrant(rows []models.KampEntrant, id int64) *models.KampEntrant {
	for i := range rows {
		if rows[i].ID == id {
			return &rows[i]
		}
	}
	return nil
}

// SignOff marks an entrant of a class as not participating. When the entrant was
// inside the cut the first reserve takes a place in the main list, above the first
// weaker participant. Ranks are renumbered afterwards.
func SignOff(rows []models.KampEntrant, entrantID int64, limit int, actor string, now time.Time) error {
	stamp := logStamp(now)
	target := findEntrant(rows, entrantID)
	if target == nil {
		return fmt.Errorf("entrant %d not in class", entrantID)
	}
	target.Deelname = models.DeelnameNee
	target.AppendLog(fmt.Sprintf("[%s] Deelname op Nee gezet want afmelding ontvangen van %s", stamp, actor))

	var reserve *models.KampEntrant
	for i := range rows {
		if rows[i].Rank == limit+1 {
			reserve = &rows[i]
			break
		}
	}
	if reserve != nil && reserve.Volgorde > target.Volgorde {
		weaker := make([]*models.KampEntrant, 0)
		for i := range rows {
			r := &rows[i]
			if r.Average < reserve.Average && r.Rank <= limit && r.Volgorde < reserve.Volgorde {
				weaker = append(weaker, r)
			}
		}
		if len(weaker) > 0 {
			sort.SliceStable(weaker, func(i, j int) bool { return weaker[i].Volgorde < weaker[j].Volgorde })
			reserve.Volgorde = weaker[0].Volgorde
			reserve.AppendLog(fmt.Sprintf("[%s] Reserve wordt deelnemer", stamp))
			for _, w := range weaker {
				w.Volgorde++
			}
		}
	}
	RenumberRanks(rows)
	return nil
}

// SignOn sets an entrant of a class to participating. A declined entrant is taken out
// of the list and re-inserted on average: in the main list when it has room, else
// in the reserve list after the reserves with an equal or better average.
func SignOn(rows []models.KampEntrant, entrantID int64, limit int, actor string, now time.Time) error {
	stamp := logStamp(now)
	target := findEntrant(rows, entrantID)
	if target == nil {
		return fmt.Errorf("entrant %d not in class", entrantID)
	}
	target.AppendLog(fmt.Sprintf("[%s] Mutatie door %s", stamp, actor))

	switch target.Deelname {
	case models.DeelnameJa:
		return nil
	case models.DeelnameOnbekend:
		target.Deelname = models.DeelnameJa
		target.AppendLog(fmt.Sprintf("[%s] Deelname op Ja gezet", stamp))
		return nil
	}

	oldVolgorde := target.Volgorde
	target.Volgorde = models.VolgordeParkeer
	for i := range rows {
		if rows[i].Volgorde > oldVolgorde && rows[i].Volgorde < models.VolgordeParkeer {
			rows[i].Volgorde--
		}
	}

	participants := 0
	for _, r := range rows {
		if r.Deelname != models.DeelnameNee && r.Rank <= limit && r.Volgorde < models.VolgordeParkeer {
			participants++
		}
	}

	var newVolgorde int
	if participants >= limit {
		target.AppendLog(fmt.Sprintf("[%s] Naar de reserve-lijst", stamp))
		newRank := limit + 1
		if weakest := weakestAtLeast(rows, target, func(r models.KampEntrant) bool { return r.Rank > limit }); weakest != nil {
			newRank = weakest.Rank + 1
		}
		newVolgorde = -1
		for _, r := range rows {
			if r.ID != target.ID && r.Rank >= newRank && (newVolgorde < 0 || r.Volgorde < newVolgorde) {
				newVolgorde = r.Volgorde
			}
		}
		if newVolgorde < 0 {
			newVolgorde = len(rows)
		}
	} else {
		target.AppendLog(fmt.Sprintf("[%s] Direct naar de deelnemerslijst", stamp))
		newVolgorde = 1
		if weakest := weakestAtLeast(rows, target, func(r models.KampEntrant) bool { return r.Volgorde < models.VolgordeParkeer }); weakest != nil {
			newVolgorde = weakest.Volgorde + 1
		}
	}

	for i := range rows {
		if rows[i].ID != target.ID && rows[i].Volgorde >= newVolgorde {
			rows[i].Volgorde++
		}
	}
	target.Volgorde = newVolgorde
	target.Deelname = models.DeelnameJa
	target.AppendLog(fmt.Sprintf("[%s] Deelname op Ja gezet", stamp))
	RenumberRanks(rows)
	return nil
}

// weakestAtLeast returns the row with the lowest average (then scores) among the
// rows matching filter whose average is at least the target's.
func weakestAtLeast(rows []models.KampEntrant, target *models.KampEntrant, filter func(models.KampEntrant) bool) *models.KampEntrant {
	var weakest *models.KampEntrant
	for i := range rows {
		r := &rows[i]
		if r.ID == target.ID || r.Average < target.Average || !filter(*r) {
			continue
		}
		if weakest == nil || r.Average < weakest.Average || (r.Average == weakest.Average && r.Scores < weakest.Scores) {
			weakest = r
		}
	}
	return weakest
}

// ChangeCut re-places the entrants of a class after its limit changed from oldCut to
// newCut. Raising the cut re-sorts everyone inside the new cut on average; lowering
// it keeps the champions of the old main list and fills up with the best others.
// Rows outside the affected range keep their order and are renumbered after it.
func ChangeCut(rows []models.KampEntrant, oldCut, newCut int) {
	if newCut == oldCut {
		return
	}
	sortEntrantsByVolgorde(rows)
	slots := entrantSlots(rows)
	used := make([]bool, len(rows))
	block := make([]placed, 0, len(rows))
	var rest []int

	if newCut > oldCut {
		for i, s := range slots {
			if *s.rank <= newCut {
				block = append(block, placed{slot: s, pos: len(block)})
				used[i] = true
			}
		}
	} else {
		count := 0
		for i, s := range slots {
			if s.champion && *s.rank <= oldCut {
				block = append(block, placed{slot: s, pos: len(block)})
				used[i] = true
				if !s.declined() {
					count++
				}
			}
		}
		rest = byStrength(slots, func(s rosterSlot) bool { return !s.champion && *s.rank <= oldCut })
		for _, i := range rest {
			if count >= newCut {
				break
			}
			block = append(block, placed{slot: slots[i], pos: len(block)})
			used[i] = true
			if !slots[i].declined() {
				count++
			}
		}
	}
	sortPlaced(block)

	var n numberer
	for _, p := range block {
		n.assign(p.slot, false)
	}
	for _, i := range rest {
		if !used[i] {
			n.assign(slots[i], false)
			used[i] = true
		}
	}
	for i := range slots {
		if !used[i] {
			n.assign(slots[i], false)
		}
	}
	sortEntrantsByVolgorde(rows)
}

// ValidateRosterOrder checks that volgorde runs 1..n and that averages never rise
// along it. The row directly after the one ranked at the limit may break the
// average order, since the main list ends there.
func ValidateRosterOrder(rows []models.KampEntrant, limit int) error {
	sorted := append([]models.KampEntrant(nil), rows...)
	sortEntrantsByVolgorde(sorted)
	justAfterCut := false
	for i, r := range sorted {
		if r.Volgorde != i+1 {
			return fmt.Errorf("volgorde %d at position %d", r.Volgorde, i+1)
		}
		if i > 0 && !justAfterCut && r.Average > sorted[i-1].Average {
			return fmt.Errorf("average %.3f at volgorde %d is above %.3f at volgorde %d",
				r.Average, r.Volgorde, sorted[i-1].Average, sorted[i-1].Volgorde)
		}
		justAfterCut = r.Rank == limit
	}
	return nil
}
