package admin

import (
	"context"
	"sort"
	"time"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/grants"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

const (
	testGuild   = "100000000000000001"
	otherGuild  = "100000000000000002"
	testRole    = "200000000000000001"
	testMessage = "300000000000000001"
	testAdmin   = "400000000000000001"
	otherAdmin  = "400000000000000002"
	testChannel = "500000000000000001"
)

// clock - управляемое время для сессий.
type clock struct{ t time.Time }

func (c *clock) now() time.Time         { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestSessions собирает реестр без фоновой горутины.
func newTestSessions(ttl time.Duration, c *clock) *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      c.now,
		stopCh:   make(chan struct{}),
	}
}

type fakeRules struct {
	rules   map[string]*rules.Rule
	deleted []string
}

func newFakeRules(list ...*rules.Rule) *fakeRules {
	f := &fakeRules{rules: make(map[string]*rules.Rule)}
	for _, r := range list {
		f.rules[r.GuildID+"/"+r.Name] = r
	}
	return f
}

func (f *fakeRules) CreateRule(_ context.Context, r *rules.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	key := r.GuildID + "/" + r.Name
	if _, ok := f.rules[key]; ok {
		return common.ErrRuleExists
	}
	f.rules[key] = r
	return nil
}

func (f *fakeRules) GetRule(_ context.Context, guildID, name string) (*rules.Rule, error) {
	r, ok := f.rules[guildID+"/"+name]
	if !ok {
		return nil, common.ErrRuleNotFound
	}
	return r, nil
}

func (f *fakeRules) ListRules(_ context.Context, guildID string) ([]*rules.Rule, error) {
	var out []*rules.Rule
	for _, r := range f.rules {
		if r.GuildID == guildID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRules) DisableRule(ctx context.Context, guildID, name string) error {
	r, err := f.GetRule(ctx, guildID, name)
	if err != nil {
		return err
	}
	r.Enabled = false
	return nil
}

func (f *fakeRules) EnableRule(ctx context.Context, guildID, name string) error {
	r, err := f.GetRule(ctx, guildID, name)
	if err != nil {
		return err
	}
	r.Enabled = true
	return nil
}

func (f *fakeRules) DeleteRule(_ context.Context, guildID, name string) error {
	key := guildID + "/" + name
	if _, ok := f.rules[key]; !ok {
		return common.ErrRuleNotFound
	}
	delete(f.rules, key)
	f.deleted = append(f.deleted, name)
	return nil
}

type fakePurger struct {
	purged []string
	result grants.PurgeResult
}

func (f *fakePurger) PurgeRule(_ context.Context, _, ruleName string) (grants.PurgeResult, error) {
	f.purged = append(f.purged, ruleName)
	return f.result, nil
}

type fakeCounter map[string]int

func (f fakeCounter) CountByRule(_ context.Context, _, ruleName string) (int, error) {
	return f[ruleName], nil
}

type fakeSender struct {
	messages []string
}

func (f *fakeSender) SendMessage(_, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

func sampleRule(name string) *rules.Rule {
	return &rules.Rule{
		GuildID: testGuild,
		Name:    name,
		RoleID:  testRole,
		Enabled: true,
		Trigger: rules.MessageReactAny{},
	}
}

type fixture struct {
	clock   *clock
	rules   *fakeRules
	purger  *fakePurger
	counter fakeCounter
	service *Service
	sender  *fakeSender
	handler *Handler
}

func newFixture(list ...*rules.Rule) *fixture {
	f := &fixture{
		clock:   &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		rules:   newFakeRules(list...),
		purger:  &fakePurger{},
		counter: fakeCounter{},
		sender:  &fakeSender{},
	}
	f.service = NewService(f.rules, f.purger, f.counter, newTestSessions(5*time.Minute, f.clock))
	f.handler = NewHandler(f.service, f.sender)
	return f
}
