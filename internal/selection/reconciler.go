// Package selection хранит выбранные пакеты и поддерживает инвариант:
// каждый участник покрыт не более чем одним выбором.
package selection

import (
	"github.com/samber/lo"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// Resolver разрешает идентификаторы участников в текущий состав формы.
type Resolver interface {
	Lookup(id model.ParticipantID) (model.Participant, bool)
}

// Reconciler отображение "ключ выбора -> выбор". Не потокобезопасен.
type Reconciler struct {
	selections map[model.SelectionKey]model.Selection
	// order хранит ключи в порядке вставки, чтобы выдача была стабильной.
	order     []model.SelectionKey
	listeners []func()
}

// NewReconciler создаёт пустой набор выборов.
func NewReconciler() *Reconciler {
	return &Reconciler{selections: make(map[model.SelectionKey]model.Selection)}
}

// OnChange регистрирует обработчик, вызываемый синхронно после каждого фактического изменения.
func (r *Reconciler) OnChange(fn func()) {
	r.listeners = append(r.listeners, fn)
}

func (r *Reconciler) changed() {
	for _, fn := range r.listeners {
		fn()
	}
}

// Select сохраняет рекомендацию как выбор. Все выборы, пересекающиеся с ней по участникам,
// вытесняются: индивидуальный выбор снимает группы с этим участником и его прежний
// индивидуальный выбор, групповой снимает индивидуальные выборы своих участников и все
// группы с общими участниками.
func (r *Reconciler) Select(rec model.Recommendation, resolver Resolver) (model.Selection, error) {
	if err := checkResolvable(rec.Participants, resolver); err != nil {
		return model.Selection{}, err
	}

	if rec.Group() {
		r.evictForGroup(rec.Participants)
	} else {
		r.evictForIndividual(rec.Participants.IDs()[0])
	}

	sel := model.Selection{
		Key:          rec.Participants.Key(),
		Package:      rec.Package,
		Participants: rec.Participants,
	}
	r.put(sel)
	r.changed()
	return sel, nil
}

func checkResolvable(set model.ParticipantSet, resolver Resolver) error {
	if set.Len() == 0 {
		return &model.MissingParticipantError{}
	}
	var missing model.MissingParticipantError
	for _, id := range set.IDs() {
		p, ok := resolver.Lookup(id)
		if ok && p.Named() {
			continue
		}
		missing.IDs = append(missing.IDs, id)
		missing.Names = append(missing.Names, p.Name)
	}
	if len(missing.IDs) > 0 {
		return &missing
	}
	return nil
}

func (r *Reconciler) evictForIndividual(id model.ParticipantID) {
	for _, key := range r.keys() {
		sel := r.selections[key]
		if sel.Group() && sel.Participants.Contains(id) {
			r.delete(key)
		}
	}
	r.delete(model.NewParticipantSet(id).Key())
}

func (r *Reconciler) evictForGroup(group model.ParticipantSet) {
	for _, id := range group.IDs() {
		r.delete(model.NewParticipantSet(id).Key())
	}
	for _, key := range r.keys() {
		sel := r.selections[key]
		if sel.Group() && sel.Participants.Intersects(group) {
			r.delete(key)
		}
	}
}

// Cancel удаляет выбор по ключу. Отсутствующий ключ не является ошибкой.
func (r *Reconciler) Cancel(key model.SelectionKey) bool {
	if _, ok := r.selections[key]; !ok {
		return false
	}
	r.delete(key)
	r.changed()
	return true
}

// PruneForParticipants сужает каждый выбор до участников, оставшихся в составе,
// и удаляет выборы, у которых не осталось участников. Повторный вызов с тем же составом
// ничего не меняет.
func (r *Reconciler) PruneForParticipants(current model.ParticipantSet) bool {
	changed := false
	for _, key := range r.keys() {
		sel := r.selections[key]
		kept := sel.Participants.Filter(current.Contains)
		if kept.Len() == sel.Participants.Len() {
			continue
		}
		changed = true
		r.delete(key)
		if kept.Len() == 0 {
			continue
		}
		sel.Participants = kept
		sel.Key = kept.Key()
		r.put(sel)
	}
	if changed {
		r.changed()
	}
	return changed
}

// Uncovered возвращает участников с именем, не входящих ни в один выбор.
func (r *Reconciler) Uncovered(participants []model.Participant) []model.Participant {
	return lo.Filter(participants, func(p model.Participant, _ int) bool {
		return p.Named() && !r.Covers(p.ID)
	})
}

// Covers сообщает, входит ли участник в какой-либо выбор.
func (r *Reconciler) Covers(id model.ParticipantID) bool {
	_, ok := r.SelectionFor(id)
	return ok
}

// SelectionFor возвращает выбор, покрывающий участника.
func (r *Reconciler) SelectionFor(id model.ParticipantID) (model.Selection, bool) {
	for _, key := range r.order {
		if sel := r.selections[key]; sel.Participants.Contains(id) {
			return sel, true
		}
	}
	return model.Selection{}, false
}

// Get возвращает выбор по ключу.
func (r *Reconciler) Get(key model.SelectionKey) (model.Selection, bool) {
	sel, ok := r.selections[key]
	return sel, ok
}

// Selections возвращает выборы в порядке их создания.
func (r *Reconciler) Selections() []model.Selection {
	out := make([]model.Selection, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.selections[key])
	}
	return out
}

// Len возвращает число выборов.
func (r *Reconciler) Len() int { return len(r.selections) }

func (r *Reconciler) keys() []model.SelectionKey {
	return append([]model.SelectionKey(nil), r.order...)
}

func (r *Reconciler) put(sel model.Selection) {
	if _, ok := r.selections[sel.Key]; !ok {
		r.order = append(r.order, sel.Key)
	}
	r.selections[sel.Key] = sel
}

func (r *Reconciler) delete(key model.SelectionKey) {
	if _, ok := r.selections[key]; !ok {
		return
	}
	delete(r.selections, key)
	r.order = lo.Without(r.order, key)
}
