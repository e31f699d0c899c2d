package market

import (
	"math"
	"testing"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

func TestMatchPercent(t *testing.T) {
	cs101 := matchTarget{CourseID: "c-101", CourseCode: "CS101", DepartmentID: "d-cs"}
	stats := matchTarget{Category: "Statistics"}

	tests := []struct {
		name   string
		target matchTarget
		skills skillSet
		want   int
	}{
		{"exact course expert", cs101, skillSet{Offerings: []skill{{"c-101", "d-cs", models.LevelExpert}}}, 100},
		{"exact course advanced", cs101, skillSet{Offerings: []skill{{"c-101", "d-cs", models.LevelAdvanced}}}, 90},
		{"exact beats department", cs101, skillSet{Offerings: []skill{
			{"c-201", "d-cs", models.LevelExpert},
			{"c-101", "d-cs", models.LevelBeginner},
		}}, 60},
		{"same department", cs101, skillSet{Offerings: []skill{{"c-201", "d-cs", models.LevelExpert}}}, 50},
		{"other department", cs101, skillSet{Offerings: []skill{{"m-101", "d-math", models.LevelExpert}}}, 20},
		{"subject names the course", cs101, skillSet{Subjects: []string{"cs101"}}, 50},
		{"nothing", cs101, skillSet{}, 20},
		{"category subject", stats, skillSet{Subjects: []string{"statistics"}}, 75},
		{"category partial subject", stats, skillSet{Subjects: []string{"stat"}}, 75},
		{"category unknown", stats, skillSet{Subjects: []string{"poetry"}}, 20},
		{"blank subject ignored", stats, skillSet{Subjects: []string{"  "}}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchPercent(tt.target, tt.skills); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreOffers(t *testing.T) {
	offers := []models.RankedOffer{
		{Offer: models.Offer{ID: "cheap", Price: 4000}, MatchPercent: 100},
		{Offer: models.Offer{ID: "pricey", Price: 5000}, MatchPercent: 20, TutorReputation: 5},
	}
	scoreOffers(offers, DefaultPolicy().Weights)

	want := map[string]float64{"cheap": 0.8, "pricey": 0.54}
	for _, o := range offers {
		if math.Abs(o.RankScore-want[o.ID]) > 1e-9 {
			t.Errorf("%s: score %v, want %v", o.ID, o.RankScore, want[o.ID])
		}
	}

	// Zero weights fall back to the defaults.
	again := []models.RankedOffer{offers[0], offers[1]}
	scoreOffers(again, Weights{})
	if again[0].RankScore != offers[0].RankScore || again[1].RankScore != offers[1].RankScore {
		t.Errorf("zero weights: %v %v", again[0].RankScore, again[1].RankScore)
	}

	scoreOffers(nil, DefaultPolicy().Weights)
}

func TestSortOffers_StableOnTies(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mk := func(id string, price int64, rep, score float64, minute int) models.RankedOffer {
		return models.RankedOffer{
			Offer:           models.Offer{ID: id, Price: price, CreatedAt: base.Add(time.Duration(minute) * time.Minute)},
			TutorReputation: rep,
			RankScore:       score,
		}
	}
	created := []models.RankedOffer{
		mk("a", 3000, 4, 0.5, 0),
		mk("b", 2000, 4, 0.7, 1),
		mk("c", 3000, 5, 0.5, 2),
		mk("d", 2000, 3, 0.7, 3),
	}
	ids := func(offers []models.RankedOffer) string {
		s := ""
		for _, o := range offers {
			s += o.ID
		}
		return s
	}

	tests := []struct {
		by   models.OfferSort
		want string
	}{
		{models.SortPrice, "bdac"},
		{models.SortRating, "cabd"},
		{models.SortNewest, "dcba"},
		{models.SortBest, "bdac"},
	}
	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			offers := append([]models.RankedOffer(nil), created...)
			sortOffers(offers, tt.by)
			if got := ids(offers); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidSort(t *testing.T) {
	for _, s := range []models.OfferSort{models.SortPrice, models.SortRating, models.SortNewest, models.SortBest} {
		if !validSort(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	if validSort("cheapest") {
		t.Error("unknown sort accepted")
	}
}
