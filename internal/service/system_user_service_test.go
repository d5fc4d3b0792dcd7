package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/events"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/model"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/credential"
)

// ────────────────────── Create ──────────────────────

func TestSystemUserService_Create_Success(t *testing.T) {
	f := setupProvisioning(t)

	resp, err := f.svc.Create(context.Background(), f.request("E100", "  Tech@Rodeo.Example "))
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}

	u := resp.User
	if u.Email != "tech@rodeo.example" {
		t.Errorf("邮箱应规范化为小写，实际=%s", u.Email)
	}
	if u.Status != model.StatusActive || u.DashboardAccess != model.AccessAllowed || u.FailedLoginAttempts != 0 {
		t.Errorf("新用户应为 active/allowed/0，实际=%s/%s/%d", u.Status, u.DashboardAccess, u.FailedLoginAttempts)
	}
	if u.DepartmentName != "Engineering" || u.RoleName != "Technician" {
		t.Errorf("期望富化部门/角色名，实际=%s/%s", u.DepartmentName, u.RoleName)
	}
	if u.CreatedDate == "" {
		t.Error("期望设置 CreatedDate")
	}
	if !resp.IdentityCreated || !resp.WelcomeEmailSent {
		t.Errorf("期望目录身份已创建且欢迎邮件已发送: %+v", resp)
	}

	if !f.dir.Has("tech@rodeo.example") {
		t.Fatal("目录中应存在该用户")
	}
	pwd := f.dir.Password("tech@rodeo.example")
	if len(pwd) != credential.Length {
		t.Errorf("临时密码长度应为 %d，实际=%d", credential.Length, len(pwd))
	}

	if len(f.mail.sent) != 1 {
		t.Fatalf("期望发送1封邮件，实际=%d", len(f.mail.sent))
	}
	mail := f.mail.sent[0]
	if mail.To != "tech@rodeo.example" || !strings.Contains(mail.Text, pwd) || !strings.Contains(mail.Text, "Technician") {
		t.Errorf("欢迎邮件内容不完整: %+v", mail)
	}

	if got := f.pub.types(); len(got) != 1 || got[0] != events.TypeUserCreated {
		t.Errorf("期望发布 created 事件，实际=%v", got)
	}

	intents := f.intents.byOperation(model.IntentCreate)
	if len(intents) != 1 {
		t.Fatalf("期望1条创建意图，实际=%d", len(intents))
	}
	in := intents[0]
	if in.Status != model.IntentCompleted || !in.IdentityDone || !in.RecordDone || in.UserID == nil || *in.UserID != u.ID {
		t.Errorf("意图应标记完成: %+v", in)
	}
}

func TestSystemUserService_Create_MissingFields(t *testing.T) {
	f := setupProvisioning(t)

	req := f.request("", "a@b.com")
	req.Mobile = " "
	_, err := f.svc.Create(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("期望 Validation 错误，实际: %v", err)
	}
	if msg := apperr.MessageOf(err, ""); !strings.Contains(msg, "employee_id") || !strings.Contains(msg, "mobile") {
		t.Errorf("错误信息应列出缺失字段，实际=%q", msg)
	}
	if f.dir.Len() != 0 || len(f.dir.Calls()) != 0 {
		t.Error("校验失败时不应调用目录")
	}
}

func TestSystemUserService_Create_InvalidEmail(t *testing.T) {
	f := setupProvisioning(t)

	_, err := f.svc.Create(context.Background(), f.request("E100", "not-an-email"))
	if !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("期望 ErrInvalidEmail，实际: %v", err)
	}
}

func TestSystemUserService_Create_RoleNotInDepartment(t *testing.T) {
	f := setupProvisioning(t)
	_, salesRoles := seedDepartment(t, f.store, "Sales", "Advisor")

	req := f.request("E100", "tech@rodeo.example")
	req.RoleID = salesRoles[0].ID
	_, err := f.svc.Create(context.Background(), req)
	if !errors.Is(err, ErrRoleNotInDepartment) {
		t.Fatalf("期望 ErrRoleNotInDepartment，实际: %v", err)
	}
	if len(f.dir.Calls()) != 0 {
		t.Error("校验失败时不应调用目录")
	}
}

func TestSystemUserService_Create_DepartmentNotFound(t *testing.T) {
	f := setupProvisioning(t)

	req := f.request("E100", "tech@rodeo.example")
	req.DepartmentID = "missing"
	if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, ErrDepartmentNotFound) {
		t.Errorf("期望 ErrDepartmentNotFound，实际: %v", err)
	}
}

func TestSystemUserService_Create_LineManager(t *testing.T) {
	f := setupProvisioning(t)
	manager := f.mustCreate(t, "E001", "boss@rodeo.example")

	req := f.request("E100", "tech@rodeo.example")
	req.LineManagerID = &manager.ID
	resp, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if resp.User.LineManagerName != manager.Name {
		t.Errorf("期望直属上级名=%s，实际=%s", manager.Name, resp.User.LineManagerName)
	}

	missing := "nobody"
	req = f.request("E101", "other@rodeo.example")
	req.LineManagerID = &missing
	if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, ErrLineManagerNotFound) {
		t.Errorf("期望 ErrLineManagerNotFound，实际: %v", err)
	}
}

func TestSystemUserService_Create_DuplicateEmployeeID(t *testing.T) {
	f := setupProvisioning(t)
	f.mustCreate(t, "E100", "first@rodeo.example")

	_, err := f.svc.Create(context.Background(), f.request("E100", "second@rodeo.example"))
	if !errors.Is(err, ErrEmployeeIDExists) {
		t.Fatalf("期望 ErrEmployeeIDExists，实际: %v", err)
	}
	if apperr.MessageOf(err, "") != "employee ID already exists" {
		t.Errorf("错误文案不符: %q", apperr.MessageOf(err, ""))
	}
	if len(f.store.users) != 1 {
		t.Errorf("不应新增记录，实际记录数=%d", len(f.store.users))
	}
	if f.dir.Has("second@rodeo.example") {
		t.Error("不应为重复工号创建目录用户")
	}
}

func TestSystemUserService_Create_DuplicateEmailCaseInsensitive(t *testing.T) {
	f := setupProvisioning(t)
	f.mustCreate(t, "E100", "tech@rodeo.example")

	_, err := f.svc.Create(context.Background(), f.request("E200", "TECH@rodeo.example"))
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("期望 ErrEmailExists，实际: %v", err)
	}
}

func TestSystemUserService_Create_IdentityAlreadyRegistered(t *testing.T) {
	f := setupProvisioning(t)
	f.dir.Seed("tech@rodeo.example", "Someone", identity.StatusConfirmed)

	_, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example"))
	if !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("期望 ErrIdentityExists，实际: %v", err)
	}
	if apperr.MessageOf(err, "") != "email already registered" {
		t.Errorf("错误文案不符: %q", apperr.MessageOf(err, ""))
	}
	if len(f.store.users) != 0 {
		t.Error("目录失败时不应写入业务记录")
	}
	in := f.intents.byOperation(model.IntentCreate)[0]
	if in.Status != model.IntentReconciled || in.IdentityDone || in.LastError == "" {
		t.Errorf("目录明确拒绝时意图应直接关闭: %+v", in)
	}
	if len(f.mail.sent) != 0 {
		t.Error("失败时不应发送邮件")
	}
}

func TestSystemUserService_Create_DirectoryUnavailable(t *testing.T) {
	f := setupProvisioning(t)
	f.dir.FailOn("create-user", &identity.Error{Kind: identity.KindUnavailable, Err: errors.New("throttled")})

	_, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example"))
	if !errors.Is(err, ErrIdentityUnavailable) {
		t.Errorf("期望 ErrIdentityUnavailable，实际: %v", err)
	}
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("期望 Upstream 类别，实际=%s", apperr.KindOf(err))
	}
}

func TestSystemUserService_Create_InsertFailsLeavesDetectableOrphan(t *testing.T) {
	f := setupProvisioning(t)
	f.users.createErr = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example"))
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("期望 Upstream 错误，实际: %v", err)
	}
	if !f.dir.Has("tech@rodeo.example") {
		t.Fatal("目录身份应仍存在（不做内联回滚）")
	}
	in := f.intents.byOperation(model.IntentCreate)[0]
	if in.Status != model.IntentFailed || !in.IdentityDone || in.RecordDone {
		t.Fatalf("意图应记录孤立身份: %+v", in)
	}

	// 宽限期内不处理
	res, err := f.svc.Reconcile(context.Background())
	if err != nil || res.Scanned != 0 {
		t.Fatalf("宽限期内不应扫描到意图: %+v, %v", res, err)
	}

	f.advance()
	res, err = f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile 应成功: %v", err)
	}
	if res.Scanned != 1 || res.OrphansRemoved != 1 || res.Failed != 0 {
		t.Errorf("对账结果不符: %+v", res)
	}
	if f.dir.Has("tech@rodeo.example") {
		t.Error("孤立身份应被删除")
	}

	// 幂等
	res, err = f.svc.Reconcile(context.Background())
	if err != nil || res.Scanned != 0 || res.OrphansRemoved != 0 {
		t.Errorf("重复对账应无操作: %+v, %v", res, err)
	}

	// 孤立身份清理后可重新创建
	f.users.createErr = nil
	if _, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example")); err != nil {
		t.Errorf("清理后重新创建应成功: %v", err)
	}
}

func TestSystemUserService_Create_RaceLosesOnUniqueConstraint(t *testing.T) {
	f := setupProvisioning(t)
	f.mustCreate(t, "E100", "tech@rodeo.example")
	f.users.skipPrecheck = true

	_, err := f.svc.Create(context.Background(), f.request("E100", "other@rodeo.example"))
	if !errors.Is(err, ErrAccountExists) {
		t.Errorf("期望 ErrAccountExists，实际: %v", err)
	}
	if len(f.store.users) != 1 {
		t.Errorf("唯一约束应阻止第二条记录，实际=%d", len(f.store.users))
	}
}

func TestSystemUserService_Create_WithoutDirectory(t *testing.T) {
	f := setupProvisioning(t)
	f.svc.directory = nil

	resp, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example"))
	if err != nil {
		t.Fatalf("无目录时创建应成功: %v", err)
	}
	if resp.IdentityCreated || resp.WelcomeEmailSent {
		t.Errorf("未创建目录身份时不应发送凭证: %+v", resp)
	}
	if len(f.mail.sent) != 0 {
		t.Error("不应发送邮件")
	}
}

func TestSystemUserService_Create_MailFailureIsBestEffort(t *testing.T) {
	f := setupProvisioning(t)
	f.mail.err = errors.New("smtp down")

	resp, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example"))
	if err != nil {
		t.Fatalf("邮件失败不应影响创建: %v", err)
	}
	if resp.WelcomeEmailSent {
		t.Error("期望 WelcomeEmailSent=false")
	}
	if len(f.store.users) != 1 || !f.dir.Has("tech@rodeo.example") {
		t.Error("记录与目录身份都应存在")
	}
}

func TestSystemUserService_Create_Locking(t *testing.T) {
	f := setupProvisioning(t)
	locker := newFakeLocker()
	f.svc.locker = locker

	locker.held["system-user:employee:E100"] = "other"
	_, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example"))
	if !errors.Is(err, ErrCreateInProgress) {
		t.Fatalf("期望 ErrCreateInProgress，实际: %v", err)
	}
	if len(f.dir.Calls()) != 0 {
		t.Error("加锁失败时不应调用目录")
	}

	delete(locker.held, "system-user:employee:E100")
	f.mustCreate(t, "E100", "tech@rodeo.example")
	if len(locker.held) != 0 {
		t.Errorf("创建结束后应释放全部锁，剩余=%v", locker.held)
	}
	if len(locker.unlocked) != 2 {
		t.Errorf("期望释放2把锁，实际=%v", locker.unlocked)
	}
}

func TestSystemUserService_Create_LockBackendDownDegrades(t *testing.T) {
	f := setupProvisioning(t)
	locker := newFakeLocker()
	locker.lockErr = errors.New("redis: connection refused")
	f.svc.locker = locker

	if _, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example")); err != nil {
		t.Errorf("锁后端不可用时应降级继续: %v", err)
	}
}

// ────────────────────── Delete ──────────────────────

func TestSystemUserService_Delete(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")

	if err := f.svc.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if f.stored(u.ID) != nil || f.dir.Has(u.Email) {
		t.Error("记录与目录身份都应删除")
	}
	if err := f.svc.Delete(context.Background(), u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("重复删除期望 ErrUserNotFound，实际: %v", err)
	}

	in := f.intents.byOperation(model.IntentDelete)
	if len(in) != 1 || in[0].Status != model.IntentCompleted {
		t.Errorf("删除意图应完成: %+v", in)
	}
}

func TestSystemUserService_Delete_IdentityAlreadyGone(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	if err := f.dir.DeleteUser(context.Background(), u.Email); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("目录中已不存在时删除应成功: %v", err)
	}
	if f.stored(u.ID) != nil {
		t.Error("记录应删除")
	}
}

func TestSystemUserService_Delete_DirectoryFailureThenReconcile(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	f.dir.FailOn("delete-user", errors.New("throttled"))

	if err := f.svc.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("目录删除失败不应阻止记录删除: %v", err)
	}
	if f.stored(u.ID) != nil {
		t.Fatal("记录应删除")
	}
	in := f.intents.byOperation(model.IntentDelete)[0]
	if in.Status != model.IntentFailed || in.IdentityDone || !in.RecordDone {
		t.Fatalf("删除意图应标记目录步骤未完成: %+v", in)
	}

	f.dir.FailOn("delete-user", nil)
	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile 应成功: %v", err)
	}
	if res.DeletesRetried != 1 || f.dir.Has(u.Email) {
		t.Errorf("对账应重试目录删除: %+v", res)
	}
}

// ────────────────────── 启用 / 停用 ──────────────────────

func TestSystemUserService_SetActive_DeactivateAndRestore(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	ctx := context.Background()

	got, err := f.svc.SetActive(ctx, u.ID, false)
	if err != nil {
		t.Fatalf("SetActive(false) 应成功: %v", err)
	}
	if got.Status != model.StatusInactive || got.DashboardAccess != model.AccessBlocked {
		t.Errorf("停用后应为 inactive/blocked，实际=%s/%s", got.Status, got.DashboardAccess)
	}

	// 重复停用不应覆盖记录的原访问权限
	if _, err := f.svc.SetActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}

	got, err = f.svc.SetActive(ctx, u.ID, true)
	if err != nil {
		t.Fatalf("SetActive(true) 应成功: %v", err)
	}
	if got.Status != model.StatusActive || got.DashboardAccess != model.AccessAllowed {
		t.Errorf("重新启用后应为 active/allowed，实际=%s/%s", got.Status, got.DashboardAccess)
	}
	if f.stored(u.ID).AccessBeforeDeactivation != nil {
		t.Error("重新启用后应清除记录的访问权限")
	}
}

func TestSystemUserService_SetActive_BlockedUserStaysBlocked(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	ctx := context.Background()

	if _, err := f.svc.SetBlocked(ctx, u.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SetActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.SetActive(ctx, u.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.DashboardAccess != model.AccessBlocked {
		t.Errorf("独立阻止的用户重新启用后应保持 blocked，实际=%s", got.DashboardAccess)
	}
}

func TestSystemUserService_ToggleStatus(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	ctx := context.Background()

	got, err := f.svc.ToggleStatus(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusInactive || got.DashboardAccess != model.AccessBlocked {
		t.Errorf("active → inactive/blocked，实际=%s/%s", got.Status, got.DashboardAccess)
	}

	got, err = f.svc.ToggleStatus(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusActive || got.DashboardAccess != model.AccessAllowed {
		t.Errorf("inactive → active/allowed，实际=%s/%s", got.Status, got.DashboardAccess)
	}

	want := []string{events.TypeUserCreated, events.TypeUserStatusChanged, events.TypeUserStatusChanged}
	if got := f.pub.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("事件序列不符: %v", got)
	}
}

func TestSystemUserService_ToggleStatus_NotFound(t *testing.T) {
	f := setupProvisioning(t)

	if _, err := f.svc.ToggleStatus(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

// ────────────────────── 控制台访问 ──────────────────────

func TestSystemUserService_ToggleBlocked_UnblockResetsAttempts(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	ctx := context.Background()

	f.store.users[u.ID].FailedLoginAttempts = 5

	got, err := f.svc.ToggleBlocked(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DashboardAccess != model.AccessBlocked || got.FailedLoginAttempts != 5 || !got.LockedOut {
		t.Errorf("阻止不应修改失败次数: %+v", got)
	}

	got, err = f.svc.ToggleBlocked(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DashboardAccess != model.AccessAllowed || got.FailedLoginAttempts != 0 || got.LockedOut {
		t.Errorf("解除阻止应清零失败次数: %+v", got)
	}
}

func TestSystemUserService_SetBlocked_InactiveUser(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	ctx := context.Background()

	if _, err := f.svc.SetActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.SetBlocked(ctx, u.ID, false)
	if !errors.Is(err, ErrInactiveAccessChange) {
		t.Fatalf("停用用户不能解除阻止，实际: %v", err)
	}
	if f.stored(u.ID).DashboardAccess != model.AccessBlocked {
		t.Fatal("停用用户必须保持 blocked")
	}

	// 停用期间被阻止，重新启用后保持阻止
	if _, err := f.svc.SetBlocked(ctx, u.ID, true); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.SetActive(ctx, u.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.DashboardAccess != model.AccessBlocked {
		t.Errorf("期望 blocked，实际=%s", got.DashboardAccess)
	}
}

// ────────────────────── Reads / Update ──────────────────────

func TestSystemUserService_GetByEmployeeID(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")

	got, err := f.svc.GetByEmployeeID(context.Background(), " E100 ")
	if err != nil {
		t.Fatalf("GetByEmployeeID 应成功: %v", err)
	}
	if got.ID != u.ID || got.RoleName != "Technician" {
		t.Errorf("查询结果不符: %+v", got)
	}
	if _, err := f.svc.GetByEmployeeID(context.Background(), "E999"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

func TestSystemUserService_ListAndStatistics(t *testing.T) {
	f := setupProvisioning(t)
	ctx := context.Background()
	a := f.mustCreate(t, "E100", "alpha@rodeo.example")
	f.mustCreate(t, "E101", "bravo@rodeo.example")
	c := f.mustCreate(t, "E102", "charlie@rodeo.example")

	if _, err := f.svc.SetActive(ctx, a.ID, false); err != nil {
		t.Fatal(err)
	}
	f.store.users[c.ID].FailedLoginAttempts = 3

	list, total, err := f.svc.List(ctx, &dto.SystemUserListRequest{Keyword: "BRAVO"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || list[0].EmployeeID != "E101" {
		t.Errorf("关键字筛选不符: total=%d list=%+v", total, list)
	}

	list, total, err = f.svc.List(ctx, &dto.SystemUserListRequest{Status: model.StatusInactive})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || list[0].ID != a.ID {
		t.Errorf("状态筛选不符: total=%d", total)
	}

	active, err := f.svc.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("期望2个启用用户，实际=%d", len(active))
	}

	st, err := f.svc.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 3 || st.Active != 2 || st.Inactive != 1 || st.Blocked != 1 || st.Allowed != 2 || st.LockedOut != 1 {
		t.Errorf("统计不符: %+v", st)
	}
}

func TestSystemUserService_Update(t *testing.T) {
	f := setupProvisioning(t)
	ctx := context.Background()
	manager := f.mustCreate(t, "E001", "boss@rodeo.example")
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	sales, salesRoles := seedDepartment(t, f.store, "Sales", "Advisor")

	// 只换部门不换角色：角色不属于新部门
	_, err := f.svc.Update(ctx, u.ID, &dto.UpdateSystemUserRequest{DepartmentID: &sales.ID})
	if !errors.Is(err, ErrRoleNotInDepartment) {
		t.Fatalf("期望 ErrRoleNotInDepartment，实际: %v", err)
	}

	name := "Renamed Tech"
	got, err := f.svc.Update(ctx, u.ID, &dto.UpdateSystemUserRequest{
		Name:          &name,
		DepartmentID:  &sales.ID,
		RoleID:        &salesRoles[0].ID,
		LineManagerID: &manager.ID,
	})
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if got.Name != name || got.DepartmentName != "Sales" || got.RoleName != "Advisor" || got.LineManagerName != manager.Name {
		t.Errorf("更新结果不符: %+v", got)
	}
	if got.Email != "tech@rodeo.example" || got.EmployeeID != "E100" {
		t.Error("工号与邮箱不可修改")
	}

	none := ""
	got, err = f.svc.Update(ctx, u.ID, &dto.UpdateSystemUserRequest{LineManagerID: &none})
	if err != nil {
		t.Fatal(err)
	}
	if got.LineManagerID != nil {
		t.Error("空字符串应清除直属上级")
	}

	if _, err := f.svc.Update(ctx, u.ID, &dto.UpdateSystemUserRequest{LineManagerID: &u.ID}); !errors.Is(err, ErrLineManagerSelf) {
		t.Errorf("期望 ErrLineManagerSelf，实际: %v", err)
	}
}

// ────────────────────── 身份目录操作 ──────────────────────

func TestIdentityService_ResetPassword(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")
	first := f.dir.Password(u.Email)
	mails := len(f.mail.sent)

	resp, err := f.svc.ResetPassword(context.Background(), "TECH@rodeo.example")
	if err != nil {
		t.Fatalf("ResetPassword 应成功: %v", err)
	}
	if resp.Email != u.Email || len(resp.TemporaryPassword) != credential.Length {
		t.Errorf("响应不符: %+v", resp)
	}
	if f.dir.Password(u.Email) != resp.TemporaryPassword || resp.TemporaryPassword == first {
		t.Error("目录中应设置新的临时密码")
	}
	if len(f.mail.sent) != mails {
		t.Error("重置密码不应发送邮件")
	}
}

func TestIdentityService_ResetPassword_Errors(t *testing.T) {
	f := setupProvisioning(t)
	ctx := context.Background()

	_, err := f.svc.ResetPassword(ctx, "ghost@rodeo.example")
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("期望 ErrIdentityNotFound，实际: %v", err)
	}
	if apperr.MessageOf(err, "") != "user not found in authentication system" {
		t.Errorf("错误文案不符: %q", apperr.MessageOf(err, ""))
	}

	if _, err := f.svc.ResetPassword(ctx, "bad"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("期望 ErrInvalidEmail，实际: %v", err)
	}

	f.svc.directory = nil
	if _, err := f.svc.ResetPassword(ctx, "ghost@rodeo.example"); !errors.Is(err, ErrDirectoryNotAttached) {
		t.Errorf("期望 ErrDirectoryNotAttached，实际: %v", err)
	}
}

func TestIdentityService_ResendVerification(t *testing.T) {
	f := setupProvisioning(t)
	ctx := context.Background()
	u := f.mustCreate(t, "E100", "tech@rodeo.example")

	resp, err := f.svc.ResendVerification(ctx, u.Email)
	if err != nil {
		t.Fatalf("ResendVerification 应成功: %v", err)
	}
	if resp.MessageID == "" {
		t.Error("期望返回邮件 ID")
	}
	last := f.mail.sent[len(f.mail.sent)-1]
	if !strings.Contains(last.Text, f.dir.Password(u.Email)) || last.Subject != "Your Rodeo Drive CRM sign-in details" {
		t.Errorf("重发邮件内容不符: %+v", last)
	}

	f.dir.Seed("done@rodeo.example", "Done", identity.StatusConfirmed)
	if _, err := f.svc.ResendVerification(ctx, "done@rodeo.example"); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("期望 ErrAlreadyVerified，实际: %v", err)
	}

	f.svc.mailer = nil
	if _, err := f.svc.ResendVerification(ctx, u.Email); !errors.Is(err, ErrMailDisabled) {
		t.Errorf("期望 ErrMailDisabled，实际: %v", err)
	}
}

// ────────────────────── 对账 ──────────────────────

func TestProvisioningService_Reconcile_MarksCompletedWhenRecordExists(t *testing.T) {
	f := setupProvisioning(t)
	u := f.mustCreate(t, "E100", "tech@rodeo.example")

	// 模拟完成标记写入丢失
	f.store.mu.Lock()
	for _, in := range f.store.intents {
		in.Status = model.IntentPending
		in.RecordDone = false
	}
	f.store.mu.Unlock()

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.MarkedCompleted != 1 || res.OrphansRemoved != 0 {
		t.Errorf("对账结果不符: %+v", res)
	}
	if !f.dir.Has(u.Email) {
		t.Error("有业务记录的身份不能删除")
	}
}

func TestProvisioningService_Reconcile_DirectoryFailureCounted(t *testing.T) {
	f := setupProvisioning(t)
	f.users.createErr = errors.New("connection reset")
	if _, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example")); err == nil {
		t.Fatal("期望创建失败")
	}
	f.dir.FailOn("delete-user", errors.New("throttled"))

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.OrphansRemoved != 0 {
		t.Errorf("目录失败应计入 Failed: %+v", res)
	}

	// 目录恢复后下一轮完成清理
	f.dir.FailOn("delete-user", nil)
	res, err = f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.OrphansRemoved != 1 || f.dir.Has("tech@rodeo.example") {
		t.Errorf("期望清理孤立身份: %+v", res)
	}
}

func TestProvisioningService_Reconcile_KeepsPreexistingIdentity(t *testing.T) {
	f := setupProvisioning(t)
	f.dir.Seed("admin@rodeo.example", "Pool Admin", identity.StatusConfirmed)

	_, err := f.svc.Create(context.Background(), f.request("E100", "admin@rodeo.example"))
	if !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("期望 ErrIdentityExists，实际: %v", err)
	}

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 0 || res.OrphansRemoved != 0 {
		t.Errorf("被拒绝的创建不应进入对账: %+v", res)
	}
	if !f.dir.Has("admin@rodeo.example") {
		t.Fatal("已有的目录账号不能被对账删除")
	}
}

func TestProvisioningService_Reconcile_KeepsIdentityOlderThanIntent(t *testing.T) {
	f := setupProvisioning(t)
	f.dir.Seed("tech@rodeo.example", "Someone", identity.StatusConfirmed)
	f.store.clock = func() time.Time { return time.Now().Add(time.Second) }
	f.dir.FailOn("create-user", &identity.Error{Kind: identity.KindUnavailable, Err: errors.New("timeout")})

	if _, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example")); err == nil {
		t.Fatal("期望创建失败")
	}
	f.dir.FailOn("create-user", nil)

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 1 || res.OrphansRemoved != 0 || res.Failed != 0 {
		t.Errorf("对账结果不符: %+v", res)
	}
	if !f.dir.Has("tech@rodeo.example") {
		t.Error("早于意图的目录身份不能删除")
	}
	if in := f.intents.byOperation(model.IntentCreate)[0]; in.Status != model.IntentReconciled {
		t.Errorf("意图应关闭，实际=%s", in.Status)
	}
}

func TestProvisioningService_Reconcile_RemovesIdentityWrittenDespiteError(t *testing.T) {
	f := setupProvisioning(t)
	f.dir.FailOn("create-user", &identity.Error{Kind: identity.KindUnavailable, Err: errors.New("timeout")})
	if _, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example")); err == nil {
		t.Fatal("期望创建失败")
	}
	f.dir.FailOn("create-user", nil)
	// 超时后目录实际已写入
	f.dir.Seed("tech@rodeo.example", "Test User E100", identity.StatusForceChangePassword)

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.OrphansRemoved != 1 || f.dir.Has("tech@rodeo.example") {
		t.Errorf("期望清理本次写入的孤立身份: %+v", res)
	}
}

func TestProvisioningService_Reconcile_SkipsWhileEmailLocked(t *testing.T) {
	f := setupProvisioning(t)
	locker := newFakeLocker()
	f.svc.locker = locker
	f.dir.FailOn("create-user", &identity.Error{Kind: identity.KindUnavailable, Err: errors.New("throttled")})
	if _, err := f.svc.Create(context.Background(), f.request("E100", "tech@rodeo.example")); err == nil {
		t.Fatal("期望创建失败")
	}
	f.dir.FailOn("create-user", nil)

	// 另一个 Create 持有邮箱锁，刚写入目录身份、尚未写入记录
	f.dir.Seed("tech@rodeo.example", "Test User E200", identity.StatusForceChangePassword)
	locker.mu.Lock()
	locker.held["system-user:email:tech@rodeo.example"] = "tok-other"
	locker.mu.Unlock()

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Failed != 0 || res.OrphansRemoved != 0 {
		t.Errorf("锁被占用时应跳过: %+v", res)
	}
	if !f.dir.Has("tech@rodeo.example") {
		t.Fatal("并发创建中的目录身份不能删除")
	}
	in := f.intents.byOperation(model.IntentCreate)[0]
	if in.Status != model.IntentFailed || in.Attempts != 0 {
		t.Errorf("跳过的意图应保持原状: %+v", in)
	}
	if locker.held["system-user:email:tech@rodeo.example"] != "tok-other" {
		t.Error("不能释放他人持有的锁")
	}
}

func TestProvisioningService_Reconcile_RepeatedFailuresDoNotStarveNewer(t *testing.T) {
	f := setupProvisioning(t)
	f.svc.opts.ReconcileBatch = 1
	f.users.createErr = errors.New("connection reset")
	if _, err := f.svc.Create(context.Background(), f.request("E100", "stuck@rodeo.example")); err == nil {
		t.Fatal("期望创建失败")
	}
	f.dir.FailOn("delete-user", errors.New("throttled"))

	f.advance()
	res, err := f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("期望失败1次: %+v", res)
	}
	stuck := f.intents.byOperation(model.IntentCreate)[0]
	if stuck.Attempts != 1 || stuck.LastError == "" {
		t.Errorf("失败应累计次数并记录错误: %+v", stuck)
	}

	if _, err := f.svc.Create(context.Background(), f.request("E200", "fresh@rodeo.example")); err == nil {
		t.Fatal("期望创建失败")
	}
	f.dir.FailOn("delete-user", nil)

	res, err = f.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 1 || res.OrphansRemoved != 1 {
		t.Errorf("对账结果不符: %+v", res)
	}
	if f.dir.Has("fresh@rodeo.example") || !f.dir.Has("stuck@rodeo.example") {
		t.Error("新意图应优先于反复失败的意图处理")
	}
}
