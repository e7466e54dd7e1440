package model

import (
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ParticipantID стабильный идентификатор участника, выдаётся при создании.
type ParticipantID string

// NewParticipantID генерирует новый идентификатор участника.
func NewParticipantID() ParticipantID {
	return ParticipantID("ptc_" + ulid.Make().String())
}

// ParticipantCategory различает взрослых и детей.
type ParticipantCategory string

const (
	CategoryAdult ParticipantCategory = "adult"
	CategoryChild ParticipantCategory = "child"
)

// Medical содержит медицинские отметки участника.
type Medical struct {
	HasCondition bool   `json:"has_condition"`
	Note         string `json:"note,omitempty"`
}

// Participant описывает взрослого или ребёнка, внесённого в форму.
type Participant struct {
	ID         ParticipantID       `json:"id"`
	Category   ParticipantCategory `json:"category" validate:"required,oneof=adult child"`
	Name       string              `json:"name" validate:"notblank"`
	Level      Level               `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	AgeBracket AgeBracket          `json:"age_bracket" validate:"required,age_bracket"`
	Medical    Medical             `json:"medical"`
}

// Named сообщает, заполнено ли имя участника.
func (p Participant) Named() bool {
	return strings.TrimSpace(p.Name) != ""
}

// ParticipantSet упорядоченное множество идентификаторов участников.
// Два множества с одинаковым составом равны независимо от порядка добавления.
type ParticipantSet struct {
	ids []ParticipantID
}

// NewParticipantSet строит множество, отбрасывая повторы и пустые идентификаторы.
func NewParticipantSet(ids ...ParticipantID) ParticipantSet {
	seen := make(map[ParticipantID]struct{}, len(ids))
	out := make([]ParticipantID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return ParticipantSet{ids: out}
}

// IDs возвращает копию идентификаторов в стабильном порядке.
func (s ParticipantSet) IDs() []ParticipantID {
	out := make([]ParticipantID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len возвращает размер множества.
func (s ParticipantSet) Len() int { return len(s.ids) }

// Contains проверяет принадлежность идентификатора множеству.
func (s ParticipantSet) Contains(id ParticipantID) bool {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	return i < len(s.ids) && s.ids[i] == id
}

// Intersects сообщает, есть ли у множеств общий участник.
func (s ParticipantSet) Intersects(other ParticipantSet) bool {
	for _, id := range other.ids {
		if s.Contains(id) {
			return true
		}
	}
	return false
}

// Filter оставляет только идентификаторы, для которых keep возвращает true.
func (s ParticipantSet) Filter(keep func(ParticipantID) bool) ParticipantSet {
	out := make([]ParticipantID, 0, len(s.ids))
	for _, id := range s.ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return ParticipantSet{ids: out}
}

// Equal сравнивает множества по составу.
func (s ParticipantSet) Equal(other ParticipantSet) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// Key возвращает ключ выбора для множества.
func (s ParticipantSet) Key() SelectionKey {
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = string(id)
	}
	return SelectionKey(strings.Join(parts, "+"))
}

// SelectionKey ключ выбора, однозначно определяемый множеством участников.
type SelectionKey string

// Recommendation пара "пакет - участники", вычисляемая фильтром применимости.
type Recommendation struct {
	Package      Package
	Participants ParticipantSet
}

// Group сообщает, является ли рекомендация групповой.
func (r Recommendation) Group() bool { return r.Participants.Len() > 1 }

// Selection сохранённый выбор пакета для набора участников.
type Selection struct {
	Key          SelectionKey
	Package      Package
	Participants ParticipantSet
}

// Group сообщает, является ли выбор групповым.
func (s Selection) Group() bool { return s.Participants.Len() > 1 }
