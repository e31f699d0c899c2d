package market

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// Match percentages. A tutor who lists the ticket's exact course scores
// by their declared level; a tutor teaching elsewhere in the same
// department is a partial match.
var levelMatch = map[models.ExpertiseLevel]int{
	models.LevelExpert:       100,
	models.LevelAdvanced:     90,
	models.LevelIntermediate: 75,
	models.LevelBeginner:     60,
}

const (
	matchDepartment = 50
	matchSubject    = 75
	matchNone       = 20
)

// matchTarget is what a ticket asks for.
type matchTarget struct {
	CourseID     string
	CourseCode   string
	DepartmentID string
	Category     string
}

type skill struct {
	CourseID     string
	DepartmentID string
	Level        models.ExpertiseLevel
}

// skillSet is what a tutor offers.
type skillSet struct {
	Offerings []skill
	Subjects  []string
}

// matchPercent scores how well a tutor's skills fit a ticket, 0..100.
func matchPercent(target matchTarget, skills skillSet) int {
	if target.CourseID != "" {
		best := 0
		for _, o := range skills.Offerings {
			switch {
			case o.CourseID == target.CourseID:
				best = max(best, levelMatch[o.Level])
			case target.DepartmentID != "" && o.DepartmentID == target.DepartmentID:
				best = max(best, matchDepartment)
			}
		}
		if best > 0 {
			return best
		}
		if subjectMatches(skills.Subjects, target.CourseCode) {
			return matchDepartment
		}
		return matchNone
	}
	if subjectMatches(skills.Subjects, target.Category) {
		return matchSubject
	}
	return matchNone
}

func subjectMatches(subjects []string, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return false
	}
	for _, s := range subjects {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && (strings.Contains(want, s) || strings.Contains(s, want)) {
			return true
		}
	}
	return false
}

// scoreOffers fills RankScore, a weighted blend in [0, 1] of match
// quality, price competitiveness (cheapest offer on the ticket scores 1)
// and reputation (out of 5).
func scoreOffers(offers []models.RankedOffer, w Weights) {
	if len(offers) == 0 {
		return
	}
	minPrice := offers[0].Price
	for _, o := range offers[1:] {
		minPrice = min(minPrice, o.Price)
	}
	total := w.Match + w.Price + w.Reputation
	if total <= 0 {
		w = DefaultPolicy().Weights
		total = w.Match + w.Price + w.Reputation
	}
	for i := range offers {
		o := &offers[i]
		price := 0.0
		if o.Price > 0 {
			price = float64(minPrice) / float64(o.Price)
		}
		score := w.Match*float64(o.MatchPercent)/100 + w.Price*price + w.Reputation*o.TutorReputation/5
		o.RankScore = math.Round(score/total*10000) / 10000
	}
}

func validSort(s models.OfferSort) bool {
	switch s {
	case models.SortPrice, models.SortRating, models.SortNewest, models.SortBest:
		return true
	}
	return false
}

// sortOffers orders offers in place. offers must already be in creation
// order; the sort is stable so ties keep it.
func sortOffers(offers []models.RankedOffer, by models.OfferSort) {
	var less func(a, b models.RankedOffer) bool
	switch by {
	case models.SortPrice:
		less = func(a, b models.RankedOffer) bool { return a.Price < b.Price }
	case models.SortRating:
		less = func(a, b models.RankedOffer) bool { return a.TutorReputation > b.TutorReputation }
	case models.SortNewest:
		less = func(a, b models.RankedOffer) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		less = func(a, b models.RankedOffer) bool { return a.RankScore > b.RankScore }
	}
	sort.SliceStable(offers, func(i, j int) bool { return less(offers[i], offers[j]) })
}

// matchTarget resolves the department of the ticket's course.
func (t *txn) matchTarget(tk *models.Ticket) (matchTarget, error) {
	target := matchTarget{CourseID: tk.CourseID, CourseCode: tk.CourseCode, Category: tk.CustomCategory}
	if tk.CourseID == "" {
		return target, nil
	}
	err := t.queryRow(`SELECT department_id FROM courses WHERE id = ?`, tk.CourseID).Scan(&target.DepartmentID)
	if err != nil {
		return target, notFound(err, "course")
	}
	return target, nil
}

func (t *txn) tutorSkills(tutorID, subjects string) (skillSet, error) {
	set := skillSet{Subjects: decodeSubjects(subjects)}
	rows, err := t.query(`
		SELECT o.course_id, c.department_id, o.level
		FROM tutor_offerings o JOIN courses c ON c.id = o.course_id
		WHERE o.tutor_id = ?`, tutorID)
	if err != nil {
		return set, fmt.Errorf("load offerings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sk skill
		if err := rows.Scan(&sk.CourseID, &sk.DepartmentID, &sk.Level); err != nil {
			return set, fmt.Errorf("scan offering: %w", err)
		}
		set.Offerings = append(set.Offerings, sk)
	}
	return set, rows.Err()
}
