// Package eligibility подбирает пакеты, доступные участникам по уровню, возрасту, виду активности и дате.
package eligibility

import (
	"time"

	"github.com/samber/lo"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// Criteria условия подбора пакетов.
type Criteria struct {
	Level      model.Level
	AgeBracket model.AgeBracket
	Activities []model.ActivityType
	// BookingDate нулевое значение отключает проверку окна действия.
	BookingDate time.Time
	// MinGroupSize ноль отключает проверку размера группы.
	MinGroupSize int
}

// Recommend возвращает пакеты, удовлетворяющие всем условиям.
// Пустой результат означает отсутствие рекомендаций, а не ошибку.
func Recommend(packages []model.Package, c Criteria) []model.Package {
	return lo.Filter(packages, func(p model.Package, _ int) bool {
		return matches(p, c)
	})
}

func matches(p model.Package, c Criteria) bool {
	if !p.Active {
		return false
	}
	if !lo.Contains(c.Activities, p.Activity) {
		return false
	}
	if p.Level != c.Level {
		return false
	}
	if !p.AgeAgnostic && p.AgeBracket != c.AgeBracket {
		return false
	}
	if c.MinGroupSize > 0 && p.MinGroupSize > c.MinGroupSize {
		return false
	}
	if !c.BookingDate.IsZero() && !p.ActiveOn(c.BookingDate) {
		return false
	}
	return true
}

// Request входные данные для построения рекомендаций по всему составу.
type Request struct {
	Packages     []model.Package
	Participants []model.Participant
	Activities   []model.ActivityType
	BookingDate  time.Time
}

// ForParticipant возвращает индивидуальные рекомендации для одного участника.
func ForParticipant(req Request, p model.Participant) []model.Recommendation {
	pkgs := Recommend(req.Packages, Criteria{
		Level:        p.Level,
		AgeBracket:   p.AgeBracket,
		Activities:   req.Activities,
		BookingDate:  req.BookingDate,
		MinGroupSize: 1,
	})
	set := model.NewParticipantSet(p.ID)
	return lo.Map(pkgs, func(pkg model.Package, _ int) model.Recommendation {
		return model.Recommendation{Package: pkg, Participants: set}
	})
}

// ForGroup возвращает групповые рекомендации для участников одного уровня.
// Для групп со смешанным возрастом подходят только пакеты без возрастного ограничения.
func ForGroup(req Request, group []model.Participant) []model.Recommendation {
	if len(group) < 2 {
		return nil
	}
	level := group[0].Level
	for _, p := range group[1:] {
		if p.Level != level {
			return nil
		}
	}

	bracket := group[0].AgeBracket
	for _, p := range group[1:] {
		if p.AgeBracket != bracket {
			bracket = model.AgeMixed
			break
		}
	}

	pkgs := Recommend(req.Packages, Criteria{
		Level:        level,
		AgeBracket:   bracket,
		Activities:   req.Activities,
		BookingDate:  req.BookingDate,
		MinGroupSize: len(group),
	})
	// пакеты на одного человека не предлагаются как групповые
	pkgs = lo.Filter(pkgs, func(p model.Package, _ int) bool { return p.MinGroupSize >= 2 })

	set := model.NewParticipantSet(lo.Map(group, func(p model.Participant, _ int) model.ParticipantID {
		return p.ID
	})...)
	return lo.Map(pkgs, func(pkg model.Package, _ int) model.Recommendation {
		return model.Recommendation{Package: pkg, Participants: set}
	})
}

// Result рекомендации по всему составу формы.
type Result struct {
	Individual map[model.ParticipantID][]model.Recommendation
	Group      []model.Recommendation
}

// Empty сообщает, что ни одной рекомендации не найдено.
func (r Result) Empty() bool {
	for _, recs := range r.Individual {
		if len(recs) > 0 {
			return false
		}
	}
	return len(r.Group) == 0
}

// Contains сообщает, есть ли среди рекомендаций тот же пакет для того же набора участников.
func (r Result) Contains(rec model.Recommendation) bool {
	candidates := r.Group
	if !rec.Group() {
		ids := rec.Participants.IDs()
		if len(ids) == 0 {
			return false
		}
		candidates = r.Individual[ids[0]]
	}
	return lo.ContainsBy(candidates, func(c model.Recommendation) bool {
		return c.Package.ID == rec.Package.ID && c.Participants.Equal(rec.Participants)
	})
}

// Ineligible возвращает ключи выборов, которые больше не входят в рекомендации,
// например после смены уровня или возраста участника.
func (r Result) Ineligible(selections []model.Selection) []model.SelectionKey {
	var keys []model.SelectionKey
	for _, sel := range selections {
		if !r.Contains(model.Recommendation{Package: sel.Package, Participants: sel.Participants}) {
			keys = append(keys, sel.Key)
		}
	}
	return keys
}

// Build строит индивидуальные рекомендации для каждого участника с именем
// и групповые рекомендации для каждой группы участников одного уровня.
// Участники без имени пропускаются: выбрать для них пакет нельзя.
func Build(req Request) Result {
	named := lo.Filter(req.Participants, func(p model.Participant, _ int) bool { return p.Named() })

	res := Result{Individual: make(map[model.ParticipantID][]model.Recommendation, len(named))}
	for _, p := range named {
		res.Individual[p.ID] = ForParticipant(req, p)
	}

	cohorts := lo.GroupBy(named, func(p model.Participant) model.Level { return p.Level })
	for _, level := range []model.Level{model.LevelBeginner, model.LevelIntermediate, model.LevelAdvanced} {
		res.Group = append(res.Group, ForGroup(req, cohorts[level])...)
	}
	return res
}
