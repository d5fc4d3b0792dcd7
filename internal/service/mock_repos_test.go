package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
)

// memStore 各 mock 仓储共享的内存数据，读取时按 ID 关联部门/角色/直属上级
type memStore struct {
	mu      sync.Mutex
	seq     int
	depts   map[string]*model.Department
	roles   map[string]*model.Role
	users   map[string]*model.SystemUser
	intents map[string]*model.ProvisioningIntent
	clock   func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		depts:   make(map[string]*model.Department),
		roles:   make(map[string]*model.Role),
		users:   make(map[string]*model.SystemUser),
		intents: make(map[string]*model.ProvisioningIntent),
		clock:   time.Now,
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

// newMockRepository 组装使用内存存储的 Repository
func newMockRepository(store *memStore) (*repository.Repository, *mockUserRepo, *mockIntentRepo) {
	users := &mockUserRepo{s: store}
	intents := &mockIntentRepo{s: store}
	return &repository.Repository{
		Department: &mockDeptRepo{s: store},
		Role:       &mockRoleRepo{s: store},
		SystemUser: users,
		Intent:     intents,
	}, users, intents
}

// ── Mock DepartmentRepository ──

type mockDeptRepo struct {
	s       *memStore
	listErr error
}

func (m *mockDeptRepo) Create(_ context.Context, dept *model.Department) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if dept.ID == "" {
		dept.ID = m.s.nextID("dept")
	}
	dept.CreatedAt, dept.UpdatedAt = m.s.clock(), m.s.clock()
	cp := *dept
	m.s.depts[dept.ID] = &cp
	return nil
}

func (m *mockDeptRepo) GetByID(_ context.Context, id string) (*model.Department, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if d, ok := m.s.depts[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDeptRepo) List(_ context.Context) ([]model.Department, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	result := make([]model.Department, 0, len(m.s.depts))
	for _, d := range m.s.depts {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockDeptRepo) Update(_ context.Context, dept *model.Department) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *dept
	m.s.depts[dept.ID] = &cp
	return nil
}

func (m *mockDeptRepo) DeleteWithRoles(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.depts[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	for rid, r := range m.s.roles {
		if r.DepartmentID == id {
			delete(m.s.roles, rid)
		}
	}
	delete(m.s.depts, id)
	return nil
}

func (m *mockDeptRepo) CountUsers(_ context.Context, departmentID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, u := range m.s.users {
		if u.DepartmentID == departmentID {
			n++
		}
	}
	return n, nil
}

// ── Mock RoleRepository ──

type mockRoleRepo struct {
	s *memStore
}

func (m *mockRoleRepo) Create(_ context.Context, role *model.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if role.ID == "" {
		role.ID = m.s.nextID("role")
	}
	role.CreatedAt, role.UpdatedAt = m.s.clock(), m.s.clock()
	cp := *role
	m.s.roles[role.ID] = &cp
	return nil
}

func (m *mockRoleRepo) GetByID(_ context.Context, id string) (*model.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r, ok := m.s.roles[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRoleRepo) List(_ context.Context) ([]model.Role, error) {
	return m.ListByDepartment(context.Background(), "")
}

func (m *mockRoleRepo) ListByDepartment(_ context.Context, departmentID string) ([]model.Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.Role
	for _, r := range m.s.roles {
		if departmentID == "" || r.DepartmentID == departmentID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockRoleRepo) Update(_ context.Context, role *model.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *role
	m.s.roles[role.ID] = &cp
	return nil
}

func (m *mockRoleRepo) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.s.roles, id)
	return nil
}

func (m *mockRoleRepo) CountUsers(_ context.Context, roleID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, u := range m.s.users {
		if u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

// ── Mock SystemUserRepository ──

type mockUserRepo struct {
	s *memStore
	// createErr 非空时 Create 直接返回该错误（模拟目录成功后的写库失败）
	createErr error
	// skipPrecheck 为 true 时按工号/邮箱查询总是未命中，模拟并发请求越过预检查
	skipPrecheck bool
}

// enrich 复制记录并按 ID 关联只读投影，调用方需持有锁
func (m *mockUserRepo) enrich(u *model.SystemUser) *model.SystemUser {
	cp := *u
	if d, ok := m.s.depts[u.DepartmentID]; ok {
		dc := *d
		cp.Department = &dc
	}
	if r, ok := m.s.roles[u.RoleID]; ok {
		rc := *r
		cp.Role = &rc
	}
	if u.LineManagerID != nil {
		if lm, ok := m.s.users[*u.LineManagerID]; ok {
			lc := *lm
			lc.Department, lc.Role, lc.LineManager = nil, nil, nil
			cp.LineManager = &lc
		}
	}
	return &cp
}

func (m *mockUserRepo) Create(_ context.Context, user *model.SystemUser) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.EmployeeID == user.EmployeeID || strings.EqualFold(u.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.ID == "" {
		user.ID = m.s.nextID("user")
	}
	user.UpdatedAt = m.s.clock()
	cp := *user
	cp.Department, cp.Role, cp.LineManager = nil, nil, nil
	m.s.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.SystemUser, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		return m.enrich(u), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmployeeID(_ context.Context, employeeID string) (*model.SystemUser, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if !m.skipPrecheck {
		for _, u := range m.s.users {
			if u.EmployeeID == employeeID {
				return m.enrich(u), nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.SystemUser, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if !m.skipPrecheck {
		for _, u := range m.s.users {
			if strings.EqualFold(u.Email, email) {
				return m.enrich(u), nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.SystemUser) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	user.UpdatedAt = m.s.clock()
	cp := *user
	cp.Department, cp.Role, cp.LineManager = nil, nil, nil
	m.s.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.s.users, id)
	return nil
}

func (m *mockUserRepo) ListWithFilters(_ context.Context, filters *repository.SystemUserListFilters, offset, limit int) ([]model.SystemUser, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	kw := strings.ToLower(filters.Keyword)
	var matched []model.SystemUser
	for _, u := range m.s.users {
		if filters.DepartmentID != "" && u.DepartmentID != filters.DepartmentID {
			continue
		}
		if filters.RoleID != "" && u.RoleID != filters.RoleID {
			continue
		}
		if filters.Status != "" && u.Status != filters.Status {
			continue
		}
		if filters.DashboardAccess != "" && u.DashboardAccess != filters.DashboardAccess {
			continue
		}
		if kw != "" {
			hay := strings.ToLower(u.EmployeeID + " " + u.Name + " " + u.Email + " " + u.Mobile)
			if !strings.Contains(hay, kw) {
				continue
			}
		}
		matched = append(matched, *m.enrich(u))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].EmployeeID < matched[j].EmployeeID })

	total := int64(len(matched))
	if offset >= len(matched) {
		return []model.SystemUser{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *mockUserRepo) ListActive(ctx context.Context) ([]model.SystemUser, error) {
	users, _, err := m.ListWithFilters(ctx, &repository.SystemUserListFilters{Status: model.StatusActive}, 0, 1<<30)
	return users, err
}

func (m *mockUserRepo) ListAll(ctx context.Context) ([]model.SystemUser, error) {
	users, _, err := m.ListWithFilters(ctx, &repository.SystemUserListFilters{}, 0, 1<<30)
	return users, err
}

func (m *mockUserRepo) Stats(_ context.Context) (*repository.SystemUserStats, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st := &repository.SystemUserStats{}
	for _, u := range m.s.users {
		st.Total++
		if u.IsActive() {
			st.Active++
		} else {
			st.Inactive++
		}
		if u.IsBlocked() {
			st.Blocked++
		} else {
			st.Allowed++
		}
		if u.LockedOut() {
			st.LockedOut++
		}
	}
	return st, nil
}

// ── Mock IntentRepository ──

type mockIntentRepo struct {
	s         *memStore
	createErr error
}

func (m *mockIntentRepo) Create(_ context.Context, intent *model.ProvisioningIntent) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if intent.ID == "" {
		intent.ID = m.s.nextID("intent")
	}
	intent.CreatedAt, intent.UpdatedAt = m.s.clock(), m.s.clock()
	cp := *intent
	m.s.intents[intent.ID] = &cp
	return nil
}

func (m *mockIntentRepo) Update(_ context.Context, intent *model.ProvisioningIntent) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	intent.UpdatedAt = m.s.clock()
	cp := *intent
	if cp.UserID != nil {
		id := *cp.UserID
		cp.UserID = &id
	}
	m.s.intents[intent.ID] = &cp
	return nil
}

func (m *mockIntentRepo) ListOpen(_ context.Context, before time.Time, limit int) ([]model.ProvisioningIntent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.ProvisioningIntent
	for _, in := range m.s.intents {
		if in.IsOpen() && in.CreatedAt.Before(before) {
			result = append(result, *in)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Attempts != result[j].Attempts {
			return result[i].Attempts < result[j].Attempts
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// byOperation 返回指定操作类型的意图（测试断言用）
func (m *mockIntentRepo) byOperation(op string) []model.ProvisioningIntent {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var result []model.ProvisioningIntent
	for _, in := range m.s.intents {
		if in.Operation == op {
			result = append(result, *in)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
