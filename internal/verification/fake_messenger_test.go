package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/verifybot/internal/messaging"
	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/validate"
)

// fakeMessenger はテスト用のMessenger実装。
// 入力と選択はチャネル経由で与え、呼び出しは順に記録する。
type fakeMessenger struct {
	mu      sync.Mutex
	calls   []string
	dms     []messaging.Message
	notices []notice
	roles   map[string]bool
	nextID  int

	inputs  chan string
	choices chan messaging.Choice

	openErr    error
	sendErr    error
	setNameErr error
	grantErr   error
}

type notice struct {
	channelID string
	text      string
	ttl       time.Duration
}

func newFakeMessenger(roles ...string) *fakeMessenger {
	f := &fakeMessenger{
		roles:   make(map[string]bool),
		inputs:  make(chan string, 8),
		choices: make(chan messaging.Choice, 1),
	}
	for _, r := range roles {
		f.roles[r] = true
	}
	return f
}

func (f *fakeMessenger) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeMessenger) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// callsWithPrefix は指定した接頭辞を持つ呼び出しを順に返す。
func (f *fakeMessenger) callsWithPrefix(prefixes ...string) []string {
	var out []string
	for _, c := range f.Calls() {
		for _, p := range prefixes {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (f *fakeMessenger) DMTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	titles := make([]string, 0, len(f.dms))
	for _, m := range f.dms {
		titles = append(titles, m.Title)
	}
	return titles
}

func (f *fakeMessenger) Notices() []notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notice(nil), f.notices...)
}

func (f *fakeMessenger) OpenDirectChannel(_ context.Context, userID string) (string, error) {
	f.record("open_dm %s", userID)
	if f.openErr != nil {
		return "", f.openErr
	}
	return "dm-" + userID, nil
}

func (f *fakeMessenger) SendDirectMessage(_ context.Context, channelID string, msg messaging.Message) (string, error) {
	f.record("dm %s %s", channelID, msg.Title)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, msg)
	f.nextID++
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeMessenger) AwaitNextMessage(ctx context.Context, userID, channelID string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case text := <-f.inputs:
		return text, nil
	case <-timer.C:
		return "", messaging.ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeMessenger) PresentChoice(ctx context.Context, userID, channelID string, msg messaging.Message, choices []messaging.Choice, timeout time.Duration) (messaging.Choice, error) {
	if _, err := f.SendDirectMessage(ctx, channelID, msg); err != nil {
		return messaging.Choice{}, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-f.choices:
		return c, nil
	case <-timer.C:
		return messaging.Choice{}, messaging.ErrTimeout
	case <-ctx.Done():
		return messaging.Choice{}, ctx.Err()
	}
}

func (f *fakeMessenger) HasRole(_ context.Context, guildID, userID, roleName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[roleName], nil
}

func (f *fakeMessenger) GrantRole(_ context.Context, guildID, userID, roleName string) error {
	f.record("grant %s", roleName)
	if f.grantErr != nil {
		return f.grantErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[roleName] = true
	return nil
}

func (f *fakeMessenger) RevokeRole(_ context.Context, guildID, userID, roleName string) error {
	f.record("revoke %s", roleName)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roles, roleName)
	return nil
}

func (f *fakeMessenger) SetDisplayName(_ context.Context, guildID, userID, name string) error {
	f.record("nick %s", name)
	return f.setNameErr
}

func (f *fakeMessenger) Announce(_ context.Context, guildID, channelName string, msg messaging.Message) error {
	f.record("announce %s %s", channelName, msg.Description)
	return nil
}

func (f *fakeMessenger) Notice(_ context.Context, channelID, text string, deleteAfter time.Duration) error {
	f.record("notice %s", channelID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{channelID: channelID, text: text, ttl: deleteAfter})
	return nil
}

var _ messaging.Messenger = (*fakeMessenger)(nil)

// recordingObserver は受け取ったシグナルを記録する。
type recordingObserver struct {
	mu        sync.Mutex
	started   int
	refused   []model.RefusalReason
	rejected  []string
	conflicts int
	completed []model.ReconcileStatus
	timedOut  int
	failed    []model.FailureReason
	memberIDs []string
}

func (o *recordingObserver) SessionStarted(model.SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) AdmissionRefused(_ string, reason model.RefusalReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refused = append(o.refused, reason)
}

func (o *recordingObserver) InputRejected(_ model.SessionInfo, code validate.Code) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, string(code))
}

func (o *recordingObserver) ConflictDetected(model.SessionInfo, model.Record, model.Profile) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts++
}

func (o *recordingObserver) VerificationCompleted(_ model.SessionInfo, status model.ReconcileStatus, memberID, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, status)
	o.memberIDs = append(o.memberIDs, memberID)
}

func (o *recordingObserver) SessionTimedOut(model.SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timedOut++
}

func (o *recordingObserver) SessionFailed(_ model.SessionInfo, reason model.FailureReason, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, reason)
}

func (o *recordingObserver) terminals() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.completed) + o.timedOut + len(o.failed)
}
