package rules

import (
	"context"
	"sort"
	"sync"

	"serotonyl.ru/discord-autorole/internal/common"
)

// memStore - хранилище правил в памяти для тестов.
type memStore struct {
	mu      sync.Mutex
	rules   map[string]*Rule // guild/name → rule
	loadErr error
	loads   int
}

func newMemStore(list ...*Rule) *memStore {
	s := &memStore{rules: make(map[string]*Rule)}
	for _, r := range list {
		s.rules[r.GuildID+"/"+r.Name] = r
	}
	return s
}

func (s *memStore) sorted(filter func(*Rule) bool) []*Rule {
	var out []*Rule
	for _, r := range s.rules {
		if filter(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID+out[i].Name < out[j].GuildID+out[j].Name })
	return out
}

func (s *memStore) ListEnabledByGuild(_ context.Context, guildID string) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.sorted(func(r *Rule) bool { return r.GuildID == guildID && r.Enabled }), nil
}

func (s *memStore) Create(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rule.GuildID + "/" + rule.Name
	if _, ok := s.rules[key]; ok {
		return common.ErrRuleExists
	}
	cp := *rule
	s.rules[key] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, guildID, name string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[guildID+"/"+name]
	if !ok {
		return nil, common.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListByGuild(_ context.Context, guildID string) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r *Rule) bool { return r.GuildID == guildID }), nil
}

func (s *memStore) ListEnabledByType(_ context.Context, typ TriggerType) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(r *Rule) bool { return r.Enabled && r.Trigger.Type() == typ }), nil
}

func (s *memStore) SetEnabled(_ context.Context, guildID, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[guildID+"/"+name]
	if !ok {
		return common.ErrRuleNotFound
	}
	r.Enabled = enabled
	return nil
}

func (s *memStore) Delete(_ context.Context, guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := guildID + "/" + name
	if _, ok := s.rules[key]; !ok {
		return common.ErrRuleNotFound
	}
	delete(s.rules, key)
	return nil
}

func (s *memStore) DisableByRole(_ context.Context, guildID, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, r := range s.rules {
		if r.GuildID == guildID && r.RoleID == roleID && r.Enabled {
			r.Enabled = false
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) DisableReactSpecificByMessage(_ context.Context, guildID, messageID string) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sorted(func(r *Rule) bool {
		t, ok := r.Trigger.(ReactSpecific)
		return ok && r.GuildID == guildID && t.MessageID == messageID
	})
	for _, r := range out {
		s.rules[r.GuildID+"/"+r.Name].Enabled = false
		r.Enabled = false
	}
	return out, nil
}
