// Package participant управляет составом участников формы бронирования.
package participant

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// RenamePolicy определяет, сохраняет ли участник идентичность при смене имени.
type RenamePolicy int

const (
	// RenameDetaches выдаёт участнику новый идентификатор при смене имени,
	// поэтому выборы, сделанные под прежним именем, удаляются.
	RenameDetaches RenamePolicy = iota
	// RenameKeepsIdentity сохраняет идентификатор, и выборы переживают смену имени.
	RenameKeepsIdentity
)

// Patch изменения участника. Nil-поля не меняются.
type Patch struct {
	Name       *string
	Level      *model.Level
	AgeBracket *model.AgeBracket
	Medical    *model.Medical
}

// Roster состав участников. Не потокобезопасен: владелец сериализует вызовы.
type Roster struct {
	policy    RenamePolicy
	people    []model.Participant
	listeners []func()
	newID     func() model.ParticipantID
}

// NewRoster создаёт пустой состав.
func NewRoster(policy RenamePolicy) *Roster {
	return &Roster{policy: policy, newID: model.NewParticipantID}
}

// OnChange регистрирует обработчик, вызываемый синхронно после каждого изменения состава.
func (r *Roster) OnChange(fn func()) {
	r.listeners = append(r.listeners, fn)
}

func (r *Roster) changed() {
	for _, fn := range r.listeners {
		fn()
	}
}

// Add добавляет участника указанной категории.
func (r *Roster) Add(category model.ParticipantCategory, name string) model.Participant {
	p := r.newParticipant(category, name)
	r.people = append(r.people, p)
	r.changed()
	return p
}

func (r *Roster) newParticipant(category model.ParticipantCategory, name string) model.Participant {
	p := model.Participant{
		ID:       r.newID(),
		Category: category,
		Name:     name,
		Level:    model.LevelBeginner,
	}
	if category == model.CategoryAdult {
		p.AgeBracket = model.AgeAdult
	} else {
		p.AgeBracket = model.AgeChild
	}
	return p
}

// SetCounts подгоняет число взрослых и детей, добавляя участников в конец
// или удаляя последних участников категории.
func (r *Roster) SetCounts(adults, children int) error {
	if adults < 0 || children < 0 {
		return fmt.Errorf("participant counts must not be negative")
	}
	before := len(r.people)
	removed := r.resize(model.CategoryAdult, adults)
	removed = r.resize(model.CategoryChild, children) || removed
	if removed || len(r.people) != before {
		r.changed()
	}
	return nil
}

func (r *Roster) resize(category model.ParticipantCategory, want int) bool {
	have := lo.CountBy(r.people, func(p model.Participant) bool { return p.Category == category })
	for ; have < want; have++ {
		r.people = append(r.people, r.newParticipant(category, ""))
	}
	if have <= want {
		return false
	}

	drop := have - want
	for i := len(r.people) - 1; i >= 0 && drop > 0; i-- {
		if r.people[i].Category == category {
			r.people = append(r.people[:i], r.people[i+1:]...)
			drop--
		}
	}
	return true
}

// Remove удаляет участника. Отсутствующий идентификатор не является ошибкой.
func (r *Roster) Remove(id model.ParticipantID) {
	i := r.index(id)
	if i < 0 {
		return
	}
	r.people = append(r.people[:i], r.people[i+1:]...)
	r.changed()
}

// Update применяет изменения к участнику и возвращает его актуальное состояние.
// При политике RenameDetaches смена имени выдаёт новый идентификатор.
func (r *Roster) Update(id model.ParticipantID, patch Patch) (model.Participant, error) {
	i := r.index(id)
	if i < 0 {
		return model.Participant{}, fmt.Errorf("participant %s: %w", id, model.ErrNotFound)
	}

	p := r.people[i]
	if patch.Name != nil && *patch.Name != p.Name {
		p.Name = *patch.Name
		if r.policy == RenameDetaches {
			p.ID = r.newID()
		}
	}
	if patch.Level != nil {
		p.Level = *patch.Level
	}
	if patch.AgeBracket != nil {
		p.AgeBracket = *patch.AgeBracket
	}
	if patch.Medical != nil {
		p.Medical = *patch.Medical
	}
	r.people[i] = p
	r.changed()
	return p, nil
}

func (r *Roster) index(id model.ParticipantID) int {
	for i, p := range r.people {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Lookup ищет участника по идентификатору.
func (r *Roster) Lookup(id model.ParticipantID) (model.Participant, bool) {
	i := r.index(id)
	if i < 0 {
		return model.Participant{}, false
	}
	return r.people[i], true
}

// All возвращает копию состава в порядке добавления.
func (r *Roster) All() []model.Participant {
	return append([]model.Participant(nil), r.people...)
}

// Named возвращает участников с заполненным именем.
func (r *Roster) Named() []model.Participant {
	return lo.Filter(r.people, func(p model.Participant, _ int) bool { return p.Named() })
}

// IDs возвращает множество идентификаторов текущего состава.
func (r *Roster) IDs() model.ParticipantSet {
	return model.NewParticipantSet(lo.Map(r.people, func(p model.Participant, _ int) model.ParticipantID {
		return p.ID
	})...)
}

// NamedIDs возвращает множество идентификаторов участников с именем.
// Выборы держатся только за них: участник со стёртым именем теряет свой пакет.
func (r *Roster) NamedIDs() model.ParticipantSet {
	return model.NewParticipantSet(lo.Map(r.Named(), func(p model.Participant, _ int) model.ParticipantID {
		return p.ID
	})...)
}

// Counts возвращает число взрослых и детей.
func (r *Roster) Counts() (adults, children int) {
	for _, p := range r.people {
		if p.Category == model.CategoryAdult {
			adults++
		} else {
			children++
		}
	}
	return adults, children
}
