package autorole

import (
	"context"
	"errors"
	"testing"
	"time"

	"serotonyl.ru/discord-autorole/internal/features/members"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

const month = 30 * 24 * time.Hour

func antiquityRule(live bool) *rules.Rule {
	r := &rules.Rule{GuildID: guildA, Name: "veteran", RoleID: roleR3, Enabled: true,
		Trigger: rules.AntiquityThreshold{DurationMs: month.Milliseconds()}}
	if live {
		r.DurationMs = ms(365 * 24 * time.Hour)
	}
	return r
}

func newSweeper(h *harness, ml *memberList, now *time.Time) *AntiquitySweeper {
	s := NewAntiquitySweeper(h.store, ml, h.grants, h.gate)
	s.now = func() time.Time { return *now }
	return s
}

func TestScenarioAntiquity(t *testing.T) {
	h := newHarness(antiquityRule(false))
	now := testNow
	joined := now.Add(-month + 30*time.Minute)
	ml := &memberList{byGuild: map[string][]*members.Member{
		guildA: {
			{GuildID: guildA, UserID: userU, JoinedAt: joined},
			{GuildID: guildA, UserID: reactor1, JoinedAt: now.Add(-time.Hour)},
		},
	}}
	s := newSweeper(h, ml, &now)
	ctx := context.Background()

	res, err := s.Sweep(ctx)
	if err != nil || res.Issued != 0 {
		t.Fatalf("first tick = %+v, %v; want nothing issued", res, err)
	}

	// Между тиками участник переходит 30 дней
	now = now.Add(time.Hour)
	res, _ = s.Sweep(ctx)
	if res.Issued != 1 || !h.grants.has(guildA, userU, "veteran") {
		t.Fatalf("second tick = %+v, want one grant to U", res)
	}

	for i := 0; i < 3; i++ {
		now = now.Add(time.Hour)
		res, _ = s.Sweep(ctx)
		if res.Issued != 0 {
			t.Errorf("tick %d re-issued: %+v", i+3, res)
		}
	}
	if len(h.grants.issued) != 1 {
		t.Errorf("issued = %v, want exactly one", h.grants.issued)
	}
}

func TestAntiquityRevokesLiveGrantOfLeftMember(t *testing.T) {
	h := newHarness(antiquityRule(true))
	now := testNow
	ml := &memberList{byGuild: map[string][]*members.Member{
		guildA: {{GuildID: guildA, UserID: userU, JoinedAt: now.Add(-2 * month)}},
	}}
	s := newSweeper(h, ml, &now)
	ctx := context.Background()

	s.Sweep(ctx)
	if !h.grants.has(guildA, userU, "veteran") {
		t.Fatal("grant not issued")
	}

	// Участник перезашёл: стаж обнулился
	ml.byGuild[guildA][0].JoinedAt = now
	res, _ := s.Sweep(ctx)
	if res.Revoked != 1 || h.grants.has(guildA, userU, "veteran") {
		t.Errorf("sweep = %+v, want live grant revoked", res)
	}
}

func TestAntiquityPermanentNeverRevoked(t *testing.T) {
	h := newHarness(antiquityRule(false))
	now := testNow
	ml := &memberList{byGuild: map[string][]*members.Member{
		guildA: {{GuildID: guildA, UserID: userU, JoinedAt: now.Add(-2 * month)}},
	}}
	s := newSweeper(h, ml, &now)
	ctx := context.Background()
	s.Sweep(ctx)

	ml.byGuild[guildA] = nil
	s.Sweep(ctx)
	if !h.grants.has(guildA, userU, "veteran") {
		t.Error("permanent antiquity grant revoked")
	}
}

func TestAntiquityToleratesMemberListFailure(t *testing.T) {
	other := antiquityRule(false)
	other.GuildID = guildB
	h := newHarness(antiquityRule(false), other)
	now := testNow
	ml := &memberList{err: errors.New("gateway timeout")}
	s := newSweeper(h, ml, &now)

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v, per-guild failures must not abort", err)
	}
	if res.Failed != 2 {
		t.Errorf("Failed = %d, want 2", res.Failed)
	}
}

func TestAntiquitySkipsDisabledGuild(t *testing.T) {
	h := newHarness(antiquityRule(false))
	h.gate.disabled[guildA] = true
	now := testNow
	ml := &memberList{byGuild: map[string][]*members.Member{
		guildA: {{GuildID: guildA, UserID: userU, JoinedAt: now.Add(-2 * month)}},
	}}
	res, _ := newSweeper(h, ml, &now).Sweep(context.Background())
	if res.Rules != 0 || h.grants.calls != 0 {
		t.Errorf("disabled guild swept: %+v", res)
	}
}
