package grants

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/discord-autorole/internal/common"
	"serotonyl.ru/discord-autorole/internal/features/rules"
)

const (
	testGuild = "100000000000000001"
	testRole  = "200000000000000001"
	testUser  = "400000000000000001"
)

type memStore struct {
	mu     sync.Mutex
	grants map[string]*Grant
	getErr error
}

func newMemStore() *memStore {
	return &memStore{grants: make(map[string]*Grant)}
}

func key(guildID, userID, ruleName string) string {
	return guildID + "/" + userID + "/" + ruleName
}

func (s *memStore) Insert(_ context.Context, g *Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(g.GuildID, g.UserID, g.RuleName)
	if _, ok := s.grants[k]; ok {
		return false, nil
	}
	cp := *g
	s.grants[k] = &cp
	return true, nil
}

func (s *memStore) Get(_ context.Context, guildID, userID, ruleName string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	g, ok := s.grants[key(guildID, userID, ruleName)]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context, guildID, userID, ruleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(guildID, userID, ruleName)
	_, ok := s.grants[k]
	delete(s.grants, k)
	return ok, nil
}

func (s *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Grant
	for _, g := range s.grants {
		if g.IsLive() && g.Expired(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Postpone(_ context.Context, guildID, userID, ruleName string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.grants[key(guildID, userID, ruleName)]; ok && g.IsLive() {
		t := until
		g.ExpiresAt = &t
	}
	return nil
}

func (s *memStore) ListByRule(_ context.Context, guildID, ruleName string) ([]*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Grant
	for _, g := range s.grants {
		if g.GuildID == guildID && g.RuleName == ruleName {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type roleCall struct {
	op, guildID, userID, roleID string
}

type fakeRoles struct {
	mu        sync.Mutex
	calls     []roleCall
	issueErr  error
	revokeErr map[string]error // userID → ошибка

	// Если заданы, IssueRole сообщает о входе и ждёт разрешения.
	issueEntered chan struct{}
	issueRelease chan struct{}
}

func (f *fakeRoles) IssueRole(_ context.Context, guildID, userID, roleID string) error {
	if f.issueEntered != nil {
		f.issueEntered <- struct{}{}
		<-f.issueRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roleCall{"issue", guildID, userID, roleID})
	return f.issueErr
}

func (f *fakeRoles) lastOp() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1].op
}

func (f *fakeRoles) RevokeRole(_ context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roleCall{"revoke", guildID, userID, roleID})
	return f.revokeErr[userID]
}

func (f *fakeRoles) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() (*Manager, *memStore, *fakeRoles) {
	store := newMemStore()
	roles := &fakeRoles{revokeErr: map[string]error{}}
	m := NewManager(store, roles)
	m.now = func() time.Time { return fixedNow }
	return m, store, roles
}

func liveRule(name string, d time.Duration) *rules.Rule {
	ms := d.Milliseconds()
	return &rules.Rule{GuildID: testGuild, Name: name, RoleID: testRole, Enabled: true,
		DurationMs: &ms, Trigger: rules.MessageReactAny{}}
}

func permanentRule(name string) *rules.Rule {
	return &rules.Rule{GuildID: testGuild, Name: name, RoleID: testRole, Enabled: true,
		Trigger: rules.MessageReactAny{}}
}

func TestGrantByRuleIdempotent(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := permanentRule("any")

	granted, err := m.GrantByRule(ctx, rule, testUser, "test")
	if err != nil || !granted {
		t.Fatalf("first GrantByRule() = %v, %v; want true, nil", granted, err)
	}
	granted, err = m.GrantByRule(ctx, rule, testUser, "test")
	if err != nil || granted {
		t.Fatalf("second GrantByRule() = %v, %v; want false, nil", granted, err)
	}

	if len(store.grants) != 1 {
		t.Errorf("stored grants = %d, want 1", len(store.grants))
	}
	if n := roles.count("issue"); n != 1 {
		t.Errorf("IssueRole calls = %d, want 1", n)
	}
	g := store.grants[key(testGuild, testUser, "any")]
	if g.Type != TypePermanent || g.ExpiresAt != nil {
		t.Errorf("grant = %+v, want PERMANENT without expiry", g)
	}
}

func TestGrantByRuleLiveExpiry(t *testing.T) {
	m, store, _ := newTestManager()
	rule := liveRule("popular", time.Hour)

	if _, err := m.GrantByRule(context.Background(), rule, testUser, "test"); err != nil {
		t.Fatal(err)
	}
	g := store.grants[key(testGuild, testUser, "popular")]
	if g.Type != TypeLive {
		t.Errorf("Type = %s, want LIVE", g.Type)
	}
	if g.ExpiresAt == nil || !g.ExpiresAt.Equal(fixedNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want now+1h", g.ExpiresAt)
	}
}

func TestGrantByRuleRollsBackOnIssueFailure(t *testing.T) {
	m, store, roles := newTestManager()
	roles.issueErr = common.ErrMissingPermission

	granted, err := m.GrantByRule(context.Background(), permanentRule("any"), testUser, "test")
	if granted || !errors.Is(err, common.ErrMissingPermission) {
		t.Fatalf("GrantByRule() = %v, %v; want false, ErrMissingPermission", granted, err)
	}
	if len(store.grants) != 0 {
		t.Error("grant record left behind after failed issue")
	}
}

func TestGrantByRuleStoreError(t *testing.T) {
	m, store, roles := newTestManager()
	store.getErr = errors.New("db down")

	if _, err := m.GrantByRule(context.Background(), permanentRule("any"), testUser, "test"); err == nil {
		t.Fatal("expected store error")
	}
	if len(roles.calls) != 0 {
		t.Error("role must not be issued when the store fails")
	}
}

func TestRevokeByRuleNoGrant(t *testing.T) {
	m, _, roles := newTestManager()

	revoked, err := m.RevokeByRule(context.Background(), liveRule("x", time.Hour), testUser, "test", TypeLive)
	if err != nil || revoked {
		t.Fatalf("RevokeByRule() = %v, %v; want false, nil", revoked, err)
	}
	if len(roles.calls) != 0 {
		t.Errorf("role calls = %v, want none", roles.calls)
	}
}

func TestRevokeByRuleSkipsPermanent(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := permanentRule("any")
	m.GrantByRule(ctx, rule, testUser, "test")

	revoked, err := m.RevokeByRule(ctx, rule, testUser, "test", TypeLive)
	if err != nil || revoked {
		t.Fatalf("RevokeByRule() = %v, %v; want false, nil", revoked, err)
	}
	if len(store.grants) != 1 || roles.count("revoke") != 0 {
		t.Error("permanent grant must not be touched by live revocation")
	}
}

func TestRevokeByRuleLive(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := liveRule("popular", time.Hour)
	m.GrantByRule(ctx, rule, testUser, "test")

	revoked, err := m.RevokeByRule(ctx, rule, testUser, "test", TypeLive)
	if err != nil || !revoked {
		t.Fatalf("RevokeByRule() = %v, %v; want true, nil", revoked, err)
	}
	if len(store.grants) != 0 {
		t.Error("grant record not deleted")
	}
	if roles.count("revoke") != 1 {
		t.Error("RevokeRole not called")
	}
}

func TestRevokeGrantKeepsRecordOnFailure(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := liveRule("popular", time.Hour)
	m.GrantByRule(ctx, rule, testUser, "test")

	roles.revokeErr[testUser] = common.ErrMissingPermission
	if _, err := m.RevokeByRule(ctx, rule, testUser, "test", TypeLive); err == nil {
		t.Fatal("expected permission error")
	}
	if len(store.grants) != 1 {
		t.Error("grant record must stay when the role was not revoked")
	}

	roles.revokeErr[testUser] = common.ErrMemberGone
	if _, err := m.RevokeByRule(ctx, rule, testUser, "test", TypeLive); err != nil {
		t.Fatalf("member gone should count as revoked, got %v", err)
	}
	if len(store.grants) != 0 {
		t.Error("grant record should be dropped when the member is gone")
	}
}

func TestPurgeRule(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := permanentRule("any")
	users := []string{"400000000000000001", "400000000000000002", "400000000000000003"}
	for _, u := range users {
		m.GrantByRule(ctx, rule, u, "test")
	}
	roles.revokeErr[users[1]] = common.ErrRoleGone

	res, err := m.PurgeRule(ctx, testGuild, "any")
	if err != nil {
		t.Fatal(err)
	}
	if res.RemovedGrants != 3 || res.RoleRevocations != 2 {
		t.Errorf("PurgeRule() = %+v, want 3 removed, 2 revocations", res)
	}
	if len(store.grants) != 0 {
		t.Error("grants left after purge")
	}
}

func TestSweepExpiredContinuesAfterFailure(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := liveRule("temp", time.Minute)
	users := []string{"400000000000000001", "400000000000000002", "400000000000000003"}
	for _, u := range users {
		m.GrantByRule(ctx, rule, u, "test")
	}
	// Постоянный грант под тем же временем не должен попасть в проход
	m.GrantByRule(ctx, permanentRule("forever"), users[0], "test")

	m.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	roles.revokeErr[users[0]] = errors.New("discord 500")

	res, err := m.SweepExpired(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 3 || res.Revoked != 2 || res.Failed != 1 {
		t.Errorf("SweepExpired() = %+v, want scanned 3, revoked 2, failed 1", res)
	}
	if _, ok := store.grants[key(testGuild, users[0], "temp")]; !ok {
		t.Error("failed grant should remain for the next sweep")
	}
	if _, ok := store.grants[key(testGuild, users[0], "forever")]; !ok {
		t.Error("permanent grant removed by sweep")
	}
}

func TestSweepExpiredNotYetDue(t *testing.T) {
	m, store, _ := newTestManager()
	ctx := context.Background()
	m.GrantByRule(ctx, liveRule("temp", time.Hour), testUser, "test")

	res, err := m.SweepExpired(ctx, 100)
	if err != nil || res.Scanned != 0 {
		t.Fatalf("SweepExpired() = %+v, %v; want nothing scanned", res, err)
	}
	if len(store.grants) != 1 {
		t.Error("unexpired grant removed")
	}
}

func TestSweepExpiredPostponesFailures(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := liveRule("temp", time.Minute)
	stuck := []string{"400000000000000001", "400000000000000002", "400000000000000003"}
	healthy := "400000000000000009"
	for _, u := range append(stuck, healthy) {
		m.GrantByRule(ctx, rule, u, "test")
	}
	for _, u := range stuck {
		roles.revokeErr[u] = common.ErrMissingPermission
	}
	m.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }

	// Неснимаемых грантов больше, чем помещается в проход
	for i := 0; i < 3; i++ {
		if _, err := m.SweepExpired(ctx, 2); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := store.grants[key(testGuild, healthy, "temp")]; ok {
		t.Fatal("healthy expired grant was never revoked")
	}
	for _, u := range stuck {
		g, ok := store.grants[key(testGuild, u, "temp")]
		if !ok {
			t.Fatalf("stuck grant %s was dropped", u)
		}
		if !g.ExpiresAt.After(m.now()) {
			t.Errorf("stuck grant %s not postponed: expires %v", u, g.ExpiresAt)
		}
	}

	m.now = func() time.Time { return fixedNow.Add(2*time.Minute + expiryRetryDelay) }
	delete(roles.revokeErr, stuck[0])
	res, err := m.SweepExpired(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 3 || res.Revoked != 1 || res.Failed != 2 {
		t.Errorf("SweepExpired() after delay = %+v, want scanned 3, revoked 1, failed 2", res)
	}
}

func TestRevokeWaitsForInflightGrant(t *testing.T) {
	m, store, roles := newTestManager()
	ctx := context.Background()
	rule := liveRule("specific", time.Hour)
	roles.issueEntered = make(chan struct{})
	roles.issueRelease = make(chan struct{})

	granted := make(chan error, 1)
	go func() {
		_, err := m.GrantByRule(ctx, rule, testUser, "reaction")
		granted <- err
	}()
	<-roles.issueEntered

	revoked := make(chan bool, 1)
	go func() {
		ok, _ := m.RevokeByRule(ctx, rule, testUser, "reaction removed", TypeLive)
		revoked <- ok
	}()

	select {
	case <-revoked:
		t.Fatal("revoke finished while the grant was still issuing the role")
	case <-time.After(20 * time.Millisecond):
	}

	close(roles.issueRelease)
	if err := <-granted; err != nil {
		t.Fatalf("GrantByRule() error = %v", err)
	}
	if !<-revoked {
		t.Fatal("RevokeByRule() = false, want true after the grant landed")
	}

	if _, ok := store.grants[key(testGuild, testUser, "specific")]; ok {
		t.Error("grant record left after revoke")
	}
	if op := roles.lastOp(); op != "revoke" {
		t.Errorf("last role call = %q, want revoke", op)
	}
}
