package eligibility

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/surfbooking/internal/model"
)

func price(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

var testPackages = []model.Package{
	{ID: "private-beg", Activity: model.ActivityLesson, Level: model.LevelBeginner, AgeBracket: model.AgeAdult, MinGroupSize: 1, Price: price(500), Active: true},
	{ID: "kids-beg", Activity: model.ActivityLesson, Level: model.LevelBeginner, AgeBracket: model.AgeChild, MinGroupSize: 1, Price: price(300), Active: true},
	{ID: "group-beg", Activity: model.ActivityLesson, Level: model.LevelBeginner, AgeAgnostic: true, MinGroupSize: 2, Price: price(800), Active: true},
	{ID: "tour-int", Activity: model.ActivityTour, Level: model.LevelIntermediate, AgeBracket: model.AgeAdult, MinGroupSize: 1, Price: price(900), Active: true},
	{ID: "inactive", Activity: model.ActivityLesson, Level: model.LevelBeginner, AgeBracket: model.AgeAdult, MinGroupSize: 1, Price: price(100), Active: false},
	{ID: "summer", Activity: model.ActivityLesson, Level: model.LevelBeginner, AgeBracket: model.AgeAdult, MinGroupSize: 1, Price: price(400), Active: true,
		ActiveFrom: date("2026-06-01"), ActiveTo: date("2026-08-31")},
}

func ids(pkgs []model.Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.ID
	}
	return out
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{
			name: "adult beginner lessons, no date",
			criteria: Criteria{
				Level: model.LevelBeginner, AgeBracket: model.AgeAdult,
				Activities: []model.ActivityType{model.ActivityLesson},
			},
			want: []string{"private-beg", "group-beg", "summer"},
		},
		{
			name: "date outside seasonal window",
			criteria: Criteria{
				Level: model.LevelBeginner, AgeBracket: model.AgeAdult,
				Activities:  []model.ActivityType{model.ActivityLesson},
				BookingDate: date("2026-10-18"),
			},
			want: []string{"private-beg", "group-beg"},
		},
		{
			name: "window bounds are inclusive",
			criteria: Criteria{
				Level: model.LevelBeginner, AgeBracket: model.AgeAdult,
				Activities:  []model.ActivityType{model.ActivityLesson},
				BookingDate: date("2026-08-31"),
			},
			want: []string{"private-beg", "group-beg", "summer"},
		},
		{
			name: "group size filters larger minimums",
			criteria: Criteria{
				Level: model.LevelBeginner, AgeBracket: model.AgeAdult,
				Activities:   []model.ActivityType{model.ActivityLesson},
				MinGroupSize: 1,
			},
			want: []string{"private-beg", "summer"},
		},
		{
			name: "child gets child and age-agnostic packages",
			criteria: Criteria{
				Level: model.LevelBeginner, AgeBracket: model.AgeChild,
				Activities: []model.ActivityType{model.ActivityLesson},
			},
			want: []string{"kids-beg", "group-beg"},
		},
		{
			name: "several activities at once",
			criteria: Criteria{
				Level: model.LevelIntermediate, AgeBracket: model.AgeAdult,
				Activities: []model.ActivityType{model.ActivityLesson, model.ActivityTour},
			},
			want: []string{"tour-int"},
		},
		{
			name: "level has no wildcard",
			criteria: Criteria{
				Level: model.LevelAdvanced, AgeBracket: model.AgeAdult,
				Activities: []model.ActivityType{model.ActivityLesson, model.ActivityTour},
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommend(testPackages, tt.criteria)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestBuild_GroupForMixedAges(t *testing.T) {
	ann := model.Participant{ID: "a", Category: model.CategoryAdult, Name: "Ann", Level: model.LevelBeginner, AgeBracket: model.AgeAdult}
	ben := model.Participant{ID: "b", Category: model.CategoryChild, Name: "Ben", Level: model.LevelBeginner, AgeBracket: model.AgeChild}
	blank := model.Participant{ID: "c", Category: model.CategoryAdult, Level: model.LevelBeginner, AgeBracket: model.AgeAdult}

	res := Build(Request{
		Packages:     testPackages,
		Participants: []model.Participant{ann, ben, blank},
		Activities:   []model.ActivityType{model.ActivityLesson},
	})

	require.Len(t, res.Group, 1)
	assert.Equal(t, "group-beg", res.Group[0].Package.ID)
	assert.True(t, res.Group[0].Participants.Equal(model.NewParticipantSet("a", "b")))

	assert.Len(t, res.Individual, 2)
	assert.Equal(t, []string{"private-beg", "summer"}, ids(packagesOf(res.Individual["a"])))
	assert.Equal(t, []string{"kids-beg"}, ids(packagesOf(res.Individual["b"])))
	assert.False(t, res.Empty())
}

func TestForGroup_DifferentLevels(t *testing.T) {
	group := []model.Participant{
		{ID: "a", Name: "Ann", Level: model.LevelBeginner, AgeBracket: model.AgeAdult},
		{ID: "b", Name: "Bob", Level: model.LevelAdvanced, AgeBracket: model.AgeAdult},
	}
	assert.Empty(t, ForGroup(Request{Packages: testPackages, Activities: []model.ActivityType{model.ActivityLesson}}, group))
}

func TestBuild_NoRecommendation(t *testing.T) {
	res := Build(Request{
		Packages: testPackages,
		Participants: []model.Participant{
			{ID: "a", Name: "Ann", Level: model.LevelAdvanced, AgeBracket: model.AgeAdult},
		},
		Activities: []model.ActivityType{model.ActivityLesson},
	})
	assert.True(t, res.Empty())
}

func packagesOf(recs []model.Recommendation) []model.Package {
	out := make([]model.Package, len(recs))
	for i, r := range recs {
		out[i] = r.Package
	}
	return out
}

func TestResult_Contains(t *testing.T) {
	ann := model.Participant{ID: "a", Category: model.CategoryAdult, Name: "Ann", Level: model.LevelBeginner, AgeBracket: model.AgeAdult}
	ben := model.Participant{ID: "b", Category: model.CategoryChild, Name: "Ben", Level: model.LevelBeginner, AgeBracket: model.AgeChild}

	res := Build(Request{
		Packages:     testPackages,
		Participants: []model.Participant{ann, ben},
		Activities:   []model.ActivityType{model.ActivityLesson},
		BookingDate:  date("2026-03-10"),
	})

	pkg := func(id string) model.Package {
		for _, p := range testPackages {
			if p.ID == id {
				return p
			}
		}
		t.Fatalf("unknown package %s", id)
		return model.Package{}
	}

	tests := []struct {
		name string
		rec  model.Recommendation
		want bool
	}{
		{name: "individual adult package", rec: model.Recommendation{Package: pkg("private-beg"), Participants: model.NewParticipantSet("a")}, want: true},
		{name: "group package for the cohort", rec: model.Recommendation{Package: pkg("group-beg"), Participants: model.NewParticipantSet("b", "a")}, want: true},
		{name: "single-person package for a group", rec: model.Recommendation{Package: pkg("private-beg"), Participants: model.NewParticipantSet("a", "b")}, want: false},
		{name: "group package for one person", rec: model.Recommendation{Package: pkg("group-beg"), Participants: model.NewParticipantSet("a")}, want: false},
		{name: "adult package for a child", rec: model.Recommendation{Package: pkg("private-beg"), Participants: model.NewParticipantSet("b")}, want: false},
		{name: "wrong activity", rec: model.Recommendation{Package: pkg("tour-int"), Participants: model.NewParticipantSet("a")}, want: false},
		{name: "inactive package", rec: model.Recommendation{Package: pkg("inactive"), Participants: model.NewParticipantSet("a")}, want: false},
		{name: "outside the date window", rec: model.Recommendation{Package: pkg("summer"), Participants: model.NewParticipantSet("a")}, want: false},
		{name: "empty set", rec: model.Recommendation{Package: pkg("private-beg")}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, res.Contains(tt.rec))
		})
	}
}

func TestResult_Ineligible(t *testing.T) {
	ann := model.Participant{ID: "a", Category: model.CategoryAdult, Name: "Ann", Level: model.LevelBeginner, AgeBracket: model.AgeAdult}
	set := model.NewParticipantSet("a")
	selections := []model.Selection{{Key: set.Key(), Package: testPackages[0], Participants: set}}

	req := Request{
		Packages:     testPackages,
		Participants: []model.Participant{ann},
		Activities:   []model.ActivityType{model.ActivityLesson},
	}
	assert.Empty(t, Build(req).Ineligible(selections))

	ann.Level = model.LevelAdvanced
	req.Participants = []model.Participant{ann}
	assert.Equal(t, []model.SelectionKey{set.Key()}, Build(req).Ineligible(selections))
}
