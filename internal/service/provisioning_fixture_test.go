package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/events"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity/identitytest"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/notify"
	pkgredis "github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/redis"
)

// ── 协作方 fake ──

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, e notify.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, e)
	return "msg-" + e.To, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	lockErr  error
	unlocked []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]string)} }

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockErr != nil {
		return "", l.lockErr
	}
	if _, ok := l.held[key]; ok {
		return "", pkgredis.ErrLockHeld
	}
	token := "tok-" + key
	l.held[key] = token
	return token, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.unlocked = append(l.unlocked, key)
	}
	return nil
}

// ── 编排层测试夹具 ──

type provisioningFixture struct {
	svc     *orchestrator
	store   *memStore
	users   *mockUserRepo
	intents *mockIntentRepo
	dir     *identitytest.Directory
	mail    *recordingMailer
	pub     *recordingPublisher
	dept    *model.Department
	role    *model.Role
}

func setupProvisioning(t *testing.T) *provisioningFixture {
	t.Helper()
	store := newMemStore()
	repo, users, intents := newMockRepository(store)
	f := &provisioningFixture{
		store:   store,
		users:   users,
		intents: intents,
		dir:     identitytest.New(),
		mail:    &recordingMailer{},
		pub:     &recordingPublisher{},
	}
	f.svc = newOrchestrator(repo, Collaborators{
		Directory: f.dir,
		Mailer:    f.mail,
		Events:    f.pub,
	}, ProvisioningOptions{LoginURL: "https://crm.example.com/login"}, zap.NewNop())

	dept, roles := seedDepartment(t, store, "Engineering", "Technician")
	f.dept, f.role = dept, roles[0]
	return f
}

func (f *provisioningFixture) request(employeeID, email string) *dto.CreateSystemUserRequest {
	return &dto.CreateSystemUserRequest{
		EmployeeID:   employeeID,
		Name:         "Test User " + employeeID,
		Email:        email,
		Mobile:       "+971500000000",
		DepartmentID: f.dept.ID,
		RoleID:       f.role.ID,
	}
}

func (f *provisioningFixture) mustCreate(t *testing.T, employeeID, email string) *dto.SystemUserResponse {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), f.request(employeeID, email))
	if err != nil {
		t.Fatalf("创建用户 %s 失败: %v", employeeID, err)
	}
	return &resp.User
}

// advance 让对账认为所有意图都已超过宽限期
func (f *provisioningFixture) advance() {
	later := time.Now().Add(time.Hour)
	f.svc.now = func() time.Time { return later }
}

func (f *provisioningFixture) stored(id string) *model.SystemUser {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if u, ok := f.store.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}
