// Package catalog хранит справочные данные (пакеты, агенты, расписания) в виде неизменяемых снимков.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mmeshcher/surfbooking/internal/model"
)

// MasterData исходные данные для построения снимка.
type MasterData struct {
	Packages      []model.Package
	Agents        []model.Agent
	Banks         []model.Bank
	Schedules     []model.Schedule
	BookingNumber string
}

// Snapshot неизменяемый снимок справочных данных.
type Snapshot struct {
	packages      []model.Package
	byPackageID   map[string]int
	agents        []model.Agent
	byAgentCode   map[string]int
	banks         []model.Bank
	schedules     []model.Schedule
	bookingNumber string
	fetchedAt     time.Time
}

// NewSnapshot копирует данные в новый снимок.
func NewSnapshot(data MasterData, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		packages:      append([]model.Package(nil), data.Packages...),
		agents:        make([]model.Agent, len(data.Agents)),
		banks:         append([]model.Bank(nil), data.Banks...),
		schedules:     append([]model.Schedule(nil), data.Schedules...),
		bookingNumber: data.BookingNumber,
		fetchedAt:     fetchedAt,
		byPackageID:   make(map[string]int, len(data.Packages)),
		byAgentCode:   make(map[string]int, len(data.Agents)),
	}
	for i, p := range s.packages {
		s.byPackageID[p.ID] = i
	}
	for i, a := range data.Agents {
		a.Channels = append([]model.Channel(nil), a.Channels...)
		s.agents[i] = a
		s.byAgentCode[a.Code] = i
	}
	return s
}

// Packages возвращает копию списка пакетов.
func (s *Snapshot) Packages() []model.Package {
	return append([]model.Package(nil), s.packages...)
}

// Package ищет пакет по идентификатору.
func (s *Snapshot) Package(id string) (model.Package, bool) {
	i, ok := s.byPackageID[id]
	if !ok {
		return model.Package{}, false
	}
	return s.packages[i], true
}

// Agents возвращает копию списка агентов.
func (s *Snapshot) Agents() []model.Agent {
	out := make([]model.Agent, len(s.agents))
	for i, a := range s.agents {
		a.Channels = append([]model.Channel(nil), a.Channels...)
		out[i] = a
	}
	return out
}

// Agent ищет агента по коду.
func (s *Snapshot) Agent(code string) (model.Agent, bool) {
	i, ok := s.byAgentCode[code]
	if !ok {
		return model.Agent{}, false
	}
	a := s.agents[i]
	a.Channels = append([]model.Channel(nil), a.Channels...)
	return a, true
}

// Banks возвращает копию списка банков.
func (s *Snapshot) Banks() []model.Bank {
	return append([]model.Bank(nil), s.banks...)
}

// Schedules возвращает копию расписаний.
func (s *Snapshot) Schedules() []model.Schedule {
	return append([]model.Schedule(nil), s.schedules...)
}

// BookingNumber номер бронирования, выданный вместе со справочными данными.
// Используется только для отображения: перед отправкой номер всегда запрашивается заново.
func (s *Snapshot) BookingNumber() string { return s.bookingNumber }

// FetchedAt время получения снимка.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// Fetcher загружает справочные данные из внешнего API.
type Fetcher interface {
	GetMasterData(ctx context.Context) (*MasterData, error)
}

const snapshotKey = "master-data"

// Store выдаёт актуальный снимок справочных данных, перезапрашивая его по истечении TTL.
type Store struct {
	fetcher Fetcher
	cache   *gocache.Cache
	ttl     time.Duration
	now     func() time.Time

	mu sync.Mutex
}

// NewStore создаёт хранилище снимков с указанным временем жизни.
func NewStore(fetcher Fetcher, ttl time.Duration) *Store {
	return &Store{
		fetcher: fetcher,
		cache:   gocache.New(ttl, 2*ttl),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Current возвращает закэшированный снимок или загружает новый.
func (s *Store) Current(ctx context.Context) (*Snapshot, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*Snapshot), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*Snapshot), nil
	}
	return s.fetch(ctx)
}

// Refresh всегда загружает новый снимок. Ранее выданные снимки не меняются.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(ctx)
}

func (s *Store) fetch(ctx context.Context) (*Snapshot, error) {
	data, err := s.fetcher.GetMasterData(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch master data: %w", err)
	}
	snap := NewSnapshot(*data, s.now())
	s.cache.Set(snapshotKey, snap, s.ttl)
	return snap, nil
}
