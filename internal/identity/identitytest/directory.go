// Package identitytest 提供内存版身份目录，供编排层测试使用。
package identitytest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
)

// Directory 内存身份目录
// 按操作名注入错误：create-user / delete-user / get-user / set-password
type Directory struct {
	mu        sync.Mutex
	users     map[string]*identity.User
	passwords map[string]string
	failures  map[string]error
	calls     []string
}

var _ identity.Directory = (*Directory)(nil)

// New 创建空目录
func New() *Directory {
	return &Directory{
		users:     make(map[string]*identity.User),
		passwords: make(map[string]string),
		failures:  make(map[string]error),
	}
}

// FailOn 让指定操作返回 err；err 为 nil 时取消注入
func (d *Directory) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// Seed 直接放入一个用户
func (d *Directory) Seed(email, name, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(email)
	d.users[key] = &identity.User{
		Username: email, Email: email, Name: name,
		Status: status, Enabled: true, CreatedAt: time.Now(),
	}
}

// Has 目录中是否存在该用户
func (d *Directory) Has(email string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[strings.ToLower(email)]
	return ok
}

// Password 返回最近设置的临时密码
func (d *Directory) Password(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passwords[strings.ToLower(email)]
}

// Calls 返回操作调用记录，形如 "create-user:a@b.com"
func (d *Directory) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Len 目录中的用户数
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

func (d *Directory) begin(op, username string) error {
	d.mu.Lock()
	d.calls = append(d.calls, op+":"+username)
	err := d.failures[op]
	d.mu.Unlock()
	if err != nil {
		return &identity.Error{Kind: identity.KindOf(err), Op: op, Err: err}
	}
	return nil
}

func notFound(op string) error {
	return &identity.Error{Kind: identity.KindUserNotFound, Op: op}
}

func (d *Directory) CreateUser(_ context.Context, in identity.CreateUserInput) (*identity.User, error) {
	if err := d.begin("create-user", in.Email); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(in.Email)
	if _, ok := d.users[key]; ok {
		return nil, &identity.Error{Kind: identity.KindUsernameExists, Op: "create-user"}
	}
	u := &identity.User{
		Username: in.Email, Email: in.Email, Name: in.Name,
		Status: identity.StatusForceChangePassword, Enabled: true, CreatedAt: time.Now(),
	}
	d.users[key] = u
	d.passwords[key] = in.TemporaryPassword
	cp := *u
	return &cp, nil
}

func (d *Directory) DeleteUser(_ context.Context, username string) error {
	if err := d.begin("delete-user", username); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(username)
	if _, ok := d.users[key]; !ok {
		return notFound("delete-user")
	}
	delete(d.users, key)
	delete(d.passwords, key)
	return nil
}

func (d *Directory) GetUser(_ context.Context, username string) (*identity.User, error) {
	if err := d.begin("get-user", username); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[strings.ToLower(username)]
	if !ok {
		return nil, notFound("get-user")
	}
	cp := *u
	return &cp, nil
}

func (d *Directory) SetTemporaryPassword(_ context.Context, username, password string) error {
	if err := d.begin("set-password", username); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(username)
	u, ok := d.users[key]
	if !ok {
		return notFound("set-password")
	}
	u.Status = identity.StatusForceChangePassword
	d.passwords[key] = password
	return nil
}
