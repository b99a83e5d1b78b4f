package autorole

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/discord-autorole/internal/features/grants"
	"serotonyl.ru/discord-autorole/internal/features/members"
	"serotonyl.ru/discord-autorole/internal/features/rules"
	"serotonyl.ru/discord-autorole/internal/features/tally"
)

const (
	guildA   = "100000000000000001"
	guildB   = "100000000000000002"
	roleR1   = "200000000000000001"
	roleR2   = "200000000000000002"
	roleR3   = "200000000000000003"
	msgM1    = "300000000000000001"
	msgM2    = "300000000000000002"
	channel  = "500000000000000001"
	userU    = "400000000000000001"
	authorA  = "400000000000000009"
	reactor1 = "400000000000000011"
	reactor2 = "400000000000000012"
	reactor3 = "400000000000000013"
)

func ms(d time.Duration) *int64 {
	v := d.Milliseconds()
	return &v
}

// ruleStore - правила в памяти: источник для кэша и мутации для очистки.
type ruleStore struct {
	mu    sync.Mutex
	rules []*rules.Rule
}

func (s *ruleStore) ListEnabledByGuild(_ context.Context, guildID string) ([]*rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rules.Rule
	for _, r := range s.rules {
		if r.GuildID == guildID && r.Enabled {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ruleStore) ListEnabledByType(_ context.Context, typ rules.TriggerType) ([]*rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rules.Rule
	for _, r := range s.rules {
		if r.Enabled && r.Trigger.Type() == typ {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ruleStore) DisableReactSpecificByMessage(_ context.Context, guildID, messageID string) ([]*rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rules.Rule
	for _, r := range s.rules {
		t, ok := r.Trigger.(rules.ReactSpecific)
		if ok && r.GuildID == guildID && t.MessageID == messageID {
			r.Enabled = false
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ruleStore) DisableByRole(_ context.Context, guildID, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, r := range s.rules {
		if r.GuildID == guildID && r.RoleID == roleID && r.Enabled {
			r.Enabled = false
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// fakeGrants - менеджер грантов с настоящей семантикой идемпотентности.
type fakeGrants struct {
	mu      sync.Mutex
	now     time.Time
	grants  map[string]*grants.Grant // guild/user/rule
	calls   int                      // вызовы GrantByRule
	issued  []string                 // user/rule реально выданных ролей
	revoked []string                 // user/rule реально снятых ролей
}

func newFakeGrants(now time.Time) *fakeGrants {
	return &fakeGrants{now: now, grants: make(map[string]*grants.Grant)}
}

func gkey(guildID, userID, ruleName string) string {
	return guildID + "/" + userID + "/" + ruleName
}

func (f *fakeGrants) GrantByRule(_ context.Context, r *rules.Rule, userID, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	k := gkey(r.GuildID, userID, r.Name)
	if _, ok := f.grants[k]; ok {
		return false, nil
	}
	g := &grants.Grant{GuildID: r.GuildID, UserID: userID, RoleID: r.RoleID, RuleName: r.Name, Type: grants.TypePermanent}
	if d, ok := r.Duration(); ok {
		exp := f.now.Add(d)
		g.Type = grants.TypeLive
		g.ExpiresAt = &exp
	}
	f.grants[k] = g
	f.issued = append(f.issued, userID+"/"+r.Name)
	return true, nil
}

func (f *fakeGrants) RevokeByRule(ctx context.Context, r *rules.Rule, userID, reason string, t grants.GrantType) (bool, error) {
	f.mu.Lock()
	g, ok := f.grants[gkey(r.GuildID, userID, r.Name)]
	f.mu.Unlock()
	if !ok || g.Type != t {
		return false, nil
	}
	return true, f.RevokeGrant(ctx, g, reason)
}

func (f *fakeGrants) RevokeGrant(_ context.Context, g *grants.Grant, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants, gkey(g.GuildID, g.UserID, g.RuleName))
	f.revoked = append(f.revoked, g.UserID+"/"+g.RuleName)
	return nil
}

func (f *fakeGrants) RevokeAllLive(ctx context.Context, guildID, ruleName, reason string) (int, error) {
	list, _ := f.ListByRule(ctx, guildID, ruleName)
	n := 0
	for _, g := range list {
		if g.IsLive() {
			f.RevokeGrant(ctx, g, reason)
			n++
		}
	}
	return n, nil
}

func (f *fakeGrants) ListByRule(_ context.Context, guildID, ruleName string) ([]*grants.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*grants.Grant
	for _, g := range f.grants {
		if g.GuildID == guildID && g.RuleName == ruleName {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeGrants) has(guildID, userID, ruleName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.grants[gkey(guildID, userID, ruleName)]
	return ok
}

// tallyStore повторяет семантику SQL-хранилища счётчиков.
type tallyStore struct {
	mu       sync.Mutex
	tallies  map[tally.Key]*tally.ReactionTally
	presence map[tally.PresenceEntry]bool
}

func newTallyStore() *tallyStore {
	return &tallyStore{
		tallies:  make(map[tally.Key]*tally.ReactionTally),
		presence: make(map[tally.PresenceEntry]bool),
	}
}

func (s *tallyStore) Increment(_ context.Context, key tally.Key, authorID string) (*tally.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tallies[key]
	if !ok {
		t = &tally.ReactionTally{Key: key, AuthorID: authorID}
		s.tallies[key] = t
	}
	t.Count++
	return &tally.Change{Tally: *t, Previous: t.Count - 1}, nil
}

func (s *tallyStore) Decrement(_ context.Context, key tally.Key) (*tally.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tallies[key]
	if !ok {
		return nil, nil
	}
	prev := t.Count
	if t.Count > 0 {
		t.Count--
	}
	return &tally.Change{Tally: *t, Previous: prev}, nil
}

func (s *tallyStore) Mark(_ context.Context, e tally.PresenceEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presence[e] {
		return false, nil
	}
	s.presence[e] = true
	return true, nil
}

func (s *tallyStore) Clear(_ context.Context, e tally.PresenceEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.presence[e]
	delete(s.presence, e)
	return ok, nil
}

func (s *tallyStore) DrainPresence(_ context.Context, guildID string, ids []string) ([]tally.PresenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tally.PresenceEntry
	for e := range s.presence {
		if e.GuildID == guildID && in(ids, e.MessageID) {
			out = append(out, e)
			delete(s.presence, e)
		}
	}
	return out, nil
}

func (s *tallyStore) DrainTallies(_ context.Context, guildID string, ids []string) ([]tally.ReactionTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tally.ReactionTally
	for k, t := range s.tallies {
		if k.GuildID == guildID && in(ids, k.MessageID) {
			out = append(out, *t)
			delete(s.tallies, k)
		}
	}
	return out, nil
}

func (s *tallyStore) countFor(messageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for e := range s.presence {
		if e.MessageID == messageID {
			n++
		}
	}
	for k := range s.tallies {
		if k.MessageID == messageID {
			n++
		}
	}
	return n
}

func in(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

type authors struct {
	byMessage map[string]string
	err       error
	calls     int
}

func (a *authors) ResolveMessageAuthor(_ context.Context, _, _, messageID string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.byMessage[messageID], nil
}

type gate struct{ disabled map[string]bool }

func (g gate) IsFeatureEnabled(guildID string) bool { return !g.disabled[guildID] }

type memberList struct {
	byGuild map[string][]*members.Member
	err     error
}

func (m *memberList) List(_ context.Context, guildID string) ([]*members.Member, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byGuild[guildID], nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// harness собирает движок из настоящего кэша и трекера поверх фейковых хранилищ.
type harness struct {
	store   *ruleStore
	cache   *rules.Cache
	grants  *fakeGrants
	tallies *tallyStore
	authors *authors
	gate    gate
	engine  *Engine
	cleanup *Cleanup
}

func newHarness(list ...*rules.Rule) *harness {
	h := &harness{
		store:   &ruleStore{rules: list},
		grants:  newFakeGrants(testNow),
		tallies: newTallyStore(),
		authors: &authors{byMessage: map[string]string{msgM1: authorA, msgM2: authorA}},
		gate:    gate{disabled: map[string]bool{}},
	}
	h.cache = rules.NewCache(h.store)
	h.cache.LoadAll(context.Background(), []string{guildA, guildB})
	tracker := tally.NewTracker(h.tallies)
	h.engine = NewEngine(h.cache, h.grants, tracker, h.authors, h.gate)
	h.cleanup = NewCleanup(h.cache, rulesRefresher{h.store, h.cache}, h.grants, tracker)
	return h
}

// rulesRefresher обновляет кэш после мутаций, как это делает rules.Service.
type rulesRefresher struct {
	store *ruleStore
	cache *rules.Cache
}

func (r rulesRefresher) DisableReactSpecificByMessage(ctx context.Context, guildID, messageID string) ([]*rules.Rule, error) {
	out, err := r.store.DisableReactSpecificByMessage(ctx, guildID, messageID)
	if err == nil && len(out) > 0 {
		r.cache.Refresh(ctx, guildID)
	}
	return out, err
}

func (r rulesRefresher) DisableByRole(ctx context.Context, guildID, roleID string) ([]string, error) {
	out, err := r.store.DisableByRole(ctx, guildID, roleID)
	if err == nil && len(out) > 0 {
		r.cache.Refresh(ctx, guildID)
	}
	return out, err
}
