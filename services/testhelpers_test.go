package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"questbot-system/models"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A named shared-cache DB so the pool's connections all see one store.
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UserRecord{},
		&models.QuestRecord{},
		&models.StreakGainEntry{},
		&models.CommunitySettings{},
	))
	return db
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// roleOp records one role edit against the fake platform, in call order.
type roleOp struct {
	Op     string // "add" or "remove"
	UserID string
	RoleID string
}

// fakePlatform is an in-memory Platform. Roles and members are mutated by
// Add/Remove/CreateRole the way the real platform would be.
type fakePlatform struct {
	mu sync.Mutex

	roles       map[string][]Role           // communityID -> roles
	members     map[string]map[string]*Member // communityID -> userID -> member
	names       map[string]string
	nextRoleID  int
	ops         []roleOp
	messages    []string
	memberErr   error
	roleEditErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		roles:   make(map[string][]Role),
		members: make(map[string]map[string]*Member),
		names:   make(map[string]string),
	}
}

func (f *fakePlatform) addMember(communityID, userID string, roles ...Role) *Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[communityID] == nil {
		f.members[communityID] = make(map[string]*Member)
	}
	m := &Member{UserID: userID, DisplayName: "user-" + userID, Roles: roles}
	f.members[communityID][userID] = m
	return m
}

func (f *fakePlatform) addCommunityRole(communityID string, role Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[communityID] = append(f.roles[communityID], role)
}

func (f *fakePlatform) memberRoleNames(communityID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.members[communityID][userID]
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Roles))
	for _, r := range m.Roles {
		names = append(names, r.Name)
	}
	return names
}

func (f *fakePlatform) Member(ctx context.Context, communityID, userID string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	m, ok := f.members[communityID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers never see later mutations.
	cp := *m
	cp.Roles = append([]Role(nil), m.Roles...)
	return &cp, nil
}

func (f *fakePlatform) Roles(ctx context.Context, communityID string) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Role(nil), f.roles[communityID]...), nil
}

func (f *fakePlatform) CommunityName(ctx context.Context, communityID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.names[communityID]; ok {
		return name, nil
	}
	return "", ErrNotFound
}

func (f *fakePlatform) CreateRole(ctx context.Context, communityID, name string, color int) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleEditErr != nil {
		return nil, f.roleEditErr
	}
	f.nextRoleID++
	role := Role{ID: fmt.Sprintf("r%d", f.nextRoleID), Name: name, Color: color}
	f.roles[communityID] = append(f.roles[communityID], role)
	return &role, nil
}

func (f *fakePlatform) AddRole(ctx context.Context, communityID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleEditErr != nil {
		return f.roleEditErr
	}
	f.ops = append(f.ops, roleOp{Op: "add", UserID: userID, RoleID: roleID})
	m, ok := f.members[communityID][userID]
	if !ok {
		return ErrNotFound
	}
	for _, r := range m.Roles {
		if r.ID == roleID {
			return nil
		}
	}
	for _, r := range f.roles[communityID] {
		if r.ID == roleID {
			m.Roles = append(m.Roles, r)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakePlatform) RemoveRole(ctx context.Context, communityID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleEditErr != nil {
		return f.roleEditErr
	}
	f.ops = append(f.ops, roleOp{Op: "remove", UserID: userID, RoleID: roleID})
	m, ok := f.members[communityID][userID]
	if !ok {
		return ErrNotFound
	}
	kept := m.Roles[:0]
	for _, r := range m.Roles {
		if r.ID != roleID {
			kept = append(kept, r)
		}
	}
	m.Roles = kept
	return nil
}

func (f *fakePlatform) PostMessage(ctx context.Context, communityID, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return fmt.Sprintf("m%d", len(f.messages)), nil
}

func (f *fakePlatform) Announce(ctx context.Context, communityID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return nil
}

// recordingScheduler captures Schedule calls instead of running them.
type recordingScheduler struct {
	mu    sync.Mutex
	calls [][2]int // {oldLevel, newLevel}
}

func (r *recordingScheduler) Schedule(userID, communityID string, oldLevel, newLevel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]int{oldLevel, newLevel})
}

func (r *recordingScheduler) transitions() [][2]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]int(nil), r.calls...)
}

// newXPFixture builds the service graph most tests need.
func newXPFixture(t *testing.T) (*XPService, *fakePlatform, *recordingScheduler, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	platform := newFakePlatform()
	settings := NewSettingsService(db, testLogger())
	streaks := NewStreakService(db, testLogger())
	xp := NewXPService(db, testLogger(), platform, settings, streaks)
	sched := &recordingScheduler{}
	xp.Reconciler = sched
	return xp, platform, sched, db
}
