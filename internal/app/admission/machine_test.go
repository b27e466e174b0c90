package admission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	groupauthstore "trackbot/internal/app/store/groupauth"
	registrationstore "trackbot/internal/app/store/registrations"
	"trackbot/internal/app/system/transport"
	"trackbot/internal/domain/models"
)

/* ------------------------------- fakes ---------------------------------- */

type regKey struct{ member, group int64 }

// fakeRegs mirrors the conditional-write semantics of the real store.
type fakeRegs struct {
	mu   sync.Mutex
	rows map[regKey]*models.Registration
}

func newFakeRegs() *fakeRegs {
	return &fakeRegs{rows: make(map[regKey]*models.Registration)}
}

func (f *fakeRegs) Get(ctx context.Context, memberID, groupID int64) (models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[regKey{memberID, groupID}]
	if !ok {
		return models.Registration{}, registrationstore.ErrNotFound
	}
	return *r, nil
}

func (f *fakeRegs) IsVerified(ctx context.Context, memberID, groupID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[regKey{memberID, groupID}]
	return ok && r.Status == models.StatusVerified, nil
}

func (f *fakeRegs) EnsurePending(ctx context.Context, memberID, groupID int64, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := regKey{memberID, groupID}
	now := time.Now().UTC()
	if r, ok := f.rows[key]; ok {
		switch r.Status {
		case models.StatusPending:
			r.Username = username
			r.UpdatedAt = now
			return nil
		case models.StatusVerified:
			return registrationstore.ErrConflict
		default:
			r.Status = models.StatusPending
			r.Username = username
			r.ReminderLevel = 0
			r.CreatedAt = now
			r.UpdatedAt = now
			r.VerifiedAt = nil
			r.LeftAt = nil
			return nil
		}
	}
	f.rows[key] = &models.Registration{
		MemberID: memberID, GroupID: groupID, Username: username,
		Status: models.StatusPending, CreatedAt: now, UpdatedAt: now,
	}
	return nil
}

func (f *fakeRegs) MarkVerified(ctx context.Context, memberID, groupID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[regKey{memberID, groupID}]
	if !ok || r.Status != models.StatusPending {
		return registrationstore.ErrNotPending
	}
	now := time.Now().UTC()
	r.Status = models.StatusVerified
	r.VerifiedAt = &now
	return nil
}

func (f *fakeRegs) DeletePending(ctx context.Context, memberID, groupID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := regKey{memberID, groupID}
	r, ok := f.rows[key]
	if !ok || r.Status != models.StatusPending {
		return registrationstore.ErrNotPending
	}
	delete(f.rows, key)
	return nil
}

func (f *fakeRegs) MarkLeft(ctx context.Context, memberID, groupID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[regKey{memberID, groupID}]
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	r.Status = models.StatusLeftGroup
	r.LeftAt = &now
	return true, nil
}

type fakeMutes struct {
	mu   sync.Mutex
	rows map[regKey]bool
}

func newFakeMutes() *fakeMutes { return &fakeMutes{rows: make(map[regKey]bool)} }

func (f *fakeMutes) Upsert(ctx context.Context, memberID, groupID int64, reason string, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[regKey{memberID, groupID}] = true
	return nil
}

func (f *fakeMutes) Delete(ctx context.Context, memberID, groupID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, regKey{memberID, groupID})
	return nil
}

func (f *fakeMutes) muted(memberID, groupID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[regKey{memberID, groupID}]
}

type fakeAuth struct {
	mu    sync.Mutex
	bound *models.GroupAuthorization
}

func (f *fakeAuth) Get(ctx context.Context) (models.GroupAuthorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound == nil {
		return models.GroupAuthorization{}, groupauthstore.ErrNotBound
	}
	return *f.bound, nil
}

func (f *fakeAuth) Bind(ctx context.Context, groupID int64, groupName string) (models.GroupAuthorization, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound != nil {
		return *f.bound, false, nil
	}
	f.bound = &models.GroupAuthorization{
		ID: models.GroupAuthDocID, GroupID: groupID, GroupName: groupName,
		BoundAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	return *f.bound, true, nil
}

type sentMsg struct {
	chatID  int64
	text    string
	buttons []transport.Button
}

// fakeTransport records outbound calls; restrictErr simulates missing admin
// rights on restrict/unrestrict.
type fakeTransport struct {
	mu           sync.Mutex
	sent         []sentMsg
	restricted   map[regKey]bool
	restrictErr  error
	sendErrChats map[int64]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{restricted: make(map[regKey]bool), sendErrChats: make(map[int64]error)}
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string, buttons ...transport.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrChats[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMsg{chatID, text, buttons})
	return nil
}

func (f *fakeTransport) RestrictMember(ctx context.Context, groupID, memberID int64, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.restricted[regKey{memberID, groupID}] = true
	return nil
}

func (f *fakeTransport) UnrestrictMember(ctx context.Context, groupID, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restrictErr != nil {
		return f.restrictErr
	}
	delete(f.restricted, regKey{memberID, groupID})
	return nil
}

func (f *fakeTransport) sentTo(chatID int64) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) isRestricted(memberID, groupID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restricted[regKey{memberID, groupID}]
}

/* ------------------------------- helpers --------------------------------- */

const (
	testGroup  = int64(-1001234)
	testMember = int64(42)
)

type machineParts struct {
	machine *Machine
	regs    *fakeRegs
	mutes   *fakeMutes
	auth    *fakeAuth
	tg      *fakeTransport
}

func newTestMachine(t *testing.T) machineParts {
	t.Helper()
	regs := newFakeRegs()
	mutes := newFakeMutes()
	auth := &fakeAuth{}
	tg := newFakeTransport()
	gate := NewGate(auth, zap.NewNop())
	m := NewMachine(regs, mutes, gate, tg, Config{
		MuteWindow:  24 * time.Hour,
		BotUsername: "trackbot_test_bot",
		Declaration: "be excellent to each other",
	}, zap.NewNop())
	return machineParts{machine: m, regs: regs, mutes: mutes, auth: auth, tg: tg}
}

func mustStatus(t *testing.T, regs *fakeRegs, want string) {
	t.Helper()
	reg, err := regs.Get(context.Background(), testMember, testGroup)
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.Status != want {
		t.Fatalf("expected status %q, got %q", want, reg.Status)
	}
}

/* -------------------------------- tests ---------------------------------- */

func TestOnMemberJoined_CreatesPendingAndMutes(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice"); err != nil {
		t.Fatalf("OnMemberJoined failed: %v", err)
	}

	mustStatus(t, p.regs, models.StatusPending)
	if !p.mutes.muted(testMember, testGroup) {
		t.Error("expected mute record after join")
	}
	if !p.tg.isRestricted(testMember, testGroup) {
		t.Error("expected transport restriction after join")
	}

	// First join binds the group.
	if p.auth.bound == nil || p.auth.bound.GroupID != testGroup {
		t.Error("expected first join to bind the group")
	}

	// The member gets the declaration with both decision buttons.
	dms := p.tg.sentTo(testMember)
	if len(dms) != 1 {
		t.Fatalf("expected 1 DM, got %d", len(dms))
	}
	if len(dms[0].buttons) != 2 {
		t.Fatalf("expected accept/decline buttons, got %d", len(dms[0].buttons))
	}
}

func TestOnMemberJoined_DuplicateJoinKeepsCycle(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	first, _ := p.regs.Get(ctx, testMember, testGroup)

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice_renamed"); err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	second, _ := p.regs.Get(ctx, testMember, testGroup)

	if second.Status != models.StatusPending {
		t.Errorf("expected pending after duplicate join, got %q", second.Status)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("duplicate join must not reset the cycle start")
	}
	if second.Username != "alice_renamed" {
		t.Error("duplicate join should refresh the display name")
	}
}

func TestOnMemberJoined_VerifiedMemberWelcomedBack(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()
	p.auth.Bind(ctx, testGroup, "Test Group")
	p.regs.rows[regKey{testMember, testGroup}] = &models.Registration{
		MemberID: testMember, GroupID: testGroup, Status: models.StatusVerified,
	}

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice"); err != nil {
		t.Fatalf("OnMemberJoined failed: %v", err)
	}

	if p.mutes.muted(testMember, testGroup) {
		t.Error("verified member must not be muted on rejoin")
	}
	mustStatus(t, p.regs, models.StatusVerified)
	msgs := p.tg.sentTo(testGroup)
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "Welcome back") {
		t.Errorf("expected a welcome-back group message, got %+v", msgs)
	}
}

func TestOnMemberJoined_UnauthorizedGroupIgnored(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()
	p.auth.Bind(ctx, testGroup, "Test Group")

	otherGroup := int64(-2009999)
	if err := p.machine.OnMemberJoined(ctx, otherGroup, "Other", testMember, "bob"); err != nil {
		t.Fatalf("OnMemberJoined failed: %v", err)
	}

	if _, err := p.regs.Get(ctx, testMember, otherGroup); !errors.Is(err, registrationstore.ErrNotFound) {
		t.Error("no registration must be created for an unauthorized group")
	}
	if len(p.tg.sent) != 0 {
		t.Errorf("no messages must be sent for an unauthorized group, got %d", len(p.tg.sent))
	}
}

func TestOnMemberJoined_RestrictDeniedWarnsGroup(t *testing.T) {
	p := newTestMachine(t)
	p.tg.restrictErr = transport.ErrDenied
	ctx := context.Background()

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice"); err != nil {
		t.Fatalf("OnMemberJoined failed: %v", err)
	}

	// State is still durable even though the platform refused the restrict.
	mustStatus(t, p.regs, models.StatusPending)
	if !p.mutes.muted(testMember, testGroup) {
		t.Error("mute record must exist even when transport restrict fails")
	}

	found := false
	for _, m := range p.tg.sentTo(testGroup) {
		if strings.Contains(m.text, "admin rights") {
			found = true
		}
	}
	if !found {
		t.Error("expected an operator warning about missing admin rights")
	}
}

func TestOnDeclarationAccepted_VerifiesAndUnmutes(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := p.machine.OnDeclarationAccepted(ctx, testMember, testGroup); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	mustStatus(t, p.regs, models.StatusVerified)
	if p.mutes.muted(testMember, testGroup) {
		t.Error("mute record must be gone after accept")
	}
	if p.tg.isRestricted(testMember, testGroup) {
		t.Error("transport restriction must be lifted after accept")
	}
}

func TestOnDeclarationAccepted_SecondAcceptReportsAlreadyVerified(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")
	if err := p.machine.OnDeclarationAccepted(ctx, testMember, testGroup); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	before := len(p.tg.sentTo(testGroup))

	err := p.machine.OnDeclarationAccepted(ctx, testMember, testGroup)
	var gerr *GuardError
	if !errors.As(err, &gerr) || gerr.Reason != ReasonAlreadyVerified {
		t.Fatalf("expected already_verified guard, got %v", err)
	}
	if after := len(p.tg.sentTo(testGroup)); after != before {
		t.Errorf("losing accept must not re-announce (messages %d -> %d)", before, after)
	}
}

func TestOnDeclarationDeclined_PurgesRegistration(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")
	if err := p.machine.OnDeclarationDeclined(ctx, testMember, testGroup); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	if _, err := p.regs.Get(ctx, testMember, testGroup); !errors.Is(err, registrationstore.ErrNotFound) {
		t.Error("decline must purge the registration")
	}
	if p.mutes.muted(testMember, testGroup) {
		t.Error("mute record must be gone after decline")
	}
	if p.tg.isRestricted(testMember, testGroup) {
		t.Error("transport restriction must be lifted after decline")
	}

	// A second decline finds nothing and reports it.
	err := p.machine.OnDeclarationDeclined(ctx, testMember, testGroup)
	var gerr *GuardError
	if !errors.As(err, &gerr) || gerr.Reason != ReasonNotRegistered {
		t.Fatalf("expected not_registered guard, got %v", err)
	}
}

func TestDeclineThenRejoinStartsFreshCycle(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")
	p.machine.OnDeclarationDeclined(ctx, testMember, testGroup)

	if err := p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice"); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	mustStatus(t, p.regs, models.StatusPending)
	if !p.mutes.muted(testMember, testGroup) {
		t.Error("rejoin after decline must mute again")
	}
}

func TestOnMemberLeft_ArchivesAndIsIdempotent(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")
	if err := p.machine.OnMemberLeft(ctx, testMember, testGroup); err != nil {
		t.Fatalf("leave failed: %v", err)
	}

	mustStatus(t, p.regs, models.StatusLeftGroup)
	if p.mutes.muted(testMember, testGroup) {
		t.Error("mute record must be cleared on leave")
	}

	// A leave for an unknown member is a no-op, not an error.
	if err := p.machine.OnMemberLeft(ctx, int64(777), testGroup); err != nil {
		t.Fatalf("leave for unknown member must not fail: %v", err)
	}
}

func TestAcceptAfterLeaveReportsLeftGroup(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")
	p.machine.OnMemberLeft(ctx, testMember, testGroup)

	err := p.machine.OnDeclarationAccepted(ctx, testMember, testGroup)
	var gerr *GuardError
	if !errors.As(err, &gerr) || gerr.Reason != ReasonLeftGroup {
		t.Fatalf("expected left_group guard, got %v", err)
	}
}

func TestIsAdmitted(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()

	ok, err := p.machine.IsAdmitted(ctx, testMember, testGroup)
	if err != nil || ok {
		t.Fatalf("unknown member must not be admitted (ok=%v err=%v)", ok, err)
	}

	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")
	ok, _ = p.machine.IsAdmitted(ctx, testMember, testGroup)
	if ok {
		t.Error("pending member must not be admitted")
	}

	p.machine.OnDeclarationAccepted(ctx, testMember, testGroup)
	ok, _ = p.machine.IsAdmitted(ctx, testMember, testGroup)
	if !ok {
		t.Error("verified member must be admitted")
	}
}

func TestConcurrentAccepts_OneWinner(t *testing.T) {
	p := newTestMachine(t)
	ctx := context.Background()
	p.machine.OnMemberJoined(ctx, testGroup, "Test Group", testMember, "alice")

	const n = 8
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- p.machine.OnDeclarationAccepted(ctx, testMember, testGroup)
		}()
	}
	wg.Wait()
	close(results)

	wins, guards := 0, 0
	for err := range results {
		var gerr *GuardError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &gerr):
			guards++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winning accept, got %d", wins)
	}
	if guards != n-1 {
		t.Errorf("expected %d guard losses, got %d", n-1, guards)
	}
	mustStatus(t, p.regs, models.StatusVerified)
}
