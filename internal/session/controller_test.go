package session

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caskmate/caskmate/internal/accountstore"
	"github.com/caskmate/caskmate/internal/catalog"
	"github.com/caskmate/caskmate/internal/gc"
	"github.com/caskmate/caskmate/internal/gc/gctest"
	"github.com/caskmate/caskmate/internal/notify"
	"github.com/caskmate/caskmate/internal/securestore"
)

// recorder collects published notifications on a buffered channel so
// tests can wait for specific ones.
type recorder struct {
	ch chan notify.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan notify.Event, 256)}
}

func (r *recorder) Publish(e notify.Event) {
	select {
	case r.ch <- e:
	default:
	}
}

type fixture struct {
	conn  *gctest.Conn
	ctrl  *Controller
	store *accountstore.Store
	notes *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	conn := gctest.NewConn()
	store := accountstore.New(t.TempDir(), securestore.WithKey(key), logger)
	notes := newRecorder()

	ctrl := New(Config{
		Conn:          conn,
		Mux:           gc.NewMux(conn.Events(), logger),
		Accounts:      store,
		Catalog:       catalog.NewStore(&catalog.Table{}, logger),
		Notifier:      notes,
		Logger:        logger,
		LogoffTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})

	return &fixture{conn: conn, ctrl: ctrl, store: store, notes: notes}
}

func refreshToken(t *testing.T, accountID string) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID,
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	return token
}

// waitAuthState drains notifications until the session reports the given
// state.
func waitAuthState(t *testing.T, f *fixture, state State) {
	t.Helper()

	deadline := time.After(3 * time.Second)

	for {
		select {
		case <-deadline:
			t.Fatalf("never reached state %q", state)

		case e := <-f.notes.ch:
			if st, ok := e.(notify.AuthState); ok && st.State == string(state) {
				return
			}
		}
	}
}

func waitCall(t *testing.T, f *fixture, prefix string) {
	t.Helper()

	require.Eventually(t, func() bool {
		for _, call := range f.conn.Calls() {
			if strings.HasPrefix(call, prefix) {
				return true
			}
		}

		return false
	}, 3*time.Second, 10*time.Millisecond, "call %s never recorded", prefix)
}

func TestAuthenticatedSavesAccountAndLogsOn(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "76561198000000001")

	f.conn.Emit(gc.Authenticated{RefreshToken: token, AccountName: "alice"})

	waitCall(t, f, "LogOn(")

	saved, ok := f.store.LoadToken("76561198000000001")
	require.True(t, ok)
	assert.Equal(t, token, saved)

	last, ok := f.store.Last()
	require.True(t, ok)
	assert.Equal(t, "76561198000000001", last)

	accounts := f.store.List()
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice", accounts[0].PersonaName)
}

func TestLoggedOnConnectsAndRequestsOwnPersona(t *testing.T) {
	f := newFixture(t)

	f.conn.Emit(gc.LoggedOn{AccountID: "76561198000000001"})

	waitAuthState(t, f, StateConnected)
	waitCall(t, f, "RequestPersona(76561198000000001)")
	assert.Equal(t, "76561198000000001", f.ctrl.ActiveAccount())
}

func TestGuardRequired(t *testing.T) {
	f := newFixture(t)

	f.conn.Emit(gc.GuardRequired{Kind: gc.GuardMobile})

	waitAuthState(t, f, StateWaitingForGuard)

	require.Eventually(t, func() bool {
		return f.ctrl.State() == StateWaitingForGuard
	}, time.Second, 10*time.Millisecond)
}

func TestPersonaInfoUpdatesActiveAccountOnly(t *testing.T) {
	f := newFixture(t)

	f.conn.Emit(gc.LoggedOn{AccountID: "active-id"})
	waitAuthState(t, f, StateConnected)

	// Persona data for someone else is ignored.
	f.conn.Emit(gc.PersonaInfo{AccountID: "someone-else", Name: "stranger"})
	f.conn.Emit(gc.PersonaInfo{AccountID: "active-id", Name: "alice", AvatarURL: "avatar.png"})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("user info never published")

		case e := <-f.notes.ch:
			if info, ok := e.(notify.UserInfo); ok {
				assert.Equal(t, "active-id", info.ID)
				assert.Equal(t, "alice", info.Name)

				return
			}
		}
	}
}

func TestStaleCredentialEvictsSavedAccount(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "stale-id")

	f.store.SaveToken("stale-id", token)
	f.store.Upsert(accountstore.Account{ID: "stale-id", PersonaName: "alice"})
	f.store.SetLast("stale-id")

	f.conn.Emit(gc.LoggedOn{AccountID: "stale-id"})
	waitAuthState(t, f, StateConnected)

	f.conn.Emit(gc.Errored{Code: gc.ResultInvalidPassword, Message: "invalid password"})
	waitAuthState(t, f, StateDisconnected)

	_, ok := f.store.LoadToken("stale-id")
	assert.False(t, ok)
	assert.Empty(t, f.store.List())

	_, ok = f.store.Last()
	assert.False(t, ok)
	assert.Empty(t, f.ctrl.ActiveAccount())
}

func TestNonStaleErrorKeepsSavedAccount(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "acct")

	f.store.SaveToken("acct", token)
	f.store.SetLast("acct")

	f.conn.Emit(gc.LoggedOn{AccountID: "acct"})
	waitAuthState(t, f, StateConnected)

	f.conn.Emit(gc.Errored{Code: gc.ResultCode(2), Message: "service unavailable"})
	waitAuthState(t, f, StateError)

	_, ok := f.store.LoadToken("acct")
	assert.True(t, ok)
}

func TestInvoluntaryDisconnectReconnects(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "acct")

	f.store.SaveToken("acct", token)

	f.conn.Emit(gc.LoggedOn{AccountID: "acct"})
	waitAuthState(t, f, StateConnected)

	f.conn.Emit(gc.Disconnected{Message: "connection reset"})

	waitCall(t, f, "LogOn(")
	waitAuthState(t, f, StateConnecting)
}

func TestLogoutSuppressesReconnectAndEvicts(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "acct")

	f.store.SaveToken("acct", token)
	f.store.Upsert(accountstore.Account{ID: "acct"})
	f.store.SetLast("acct")

	f.conn.Emit(gc.LoggedOn{AccountID: "acct"})
	waitAuthState(t, f, StateConnected)

	f.ctrl.Logout(context.Background())

	assert.Equal(t, StateDisconnected, f.ctrl.State())

	_, ok := f.store.LoadToken("acct")
	assert.False(t, ok)
	assert.Empty(t, f.store.List())

	// The auto-emitted disconnect must not trigger a reconnection.
	time.Sleep(200 * time.Millisecond)
	for _, call := range f.conn.Calls() {
		assert.NotContains(t, call, "LogOn(")
	}
}

func TestTrySavedSession(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "acct")

	f.store.SaveToken("acct", token)
	f.store.SetLast("acct")

	require.True(t, f.ctrl.TrySavedSession())
	assert.Equal(t, "acct", f.ctrl.ActiveAccount())
	waitCall(t, f, "LogOn(")
}

func TestTrySavedSessionNothingSaved(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.ctrl.TrySavedSession())
	assert.Empty(t, f.conn.Calls())
}

func TestTrySavedSessionLogOnFailureEvicts(t *testing.T) {
	f := newFixture(t)
	token := refreshToken(t, "acct")

	f.store.SaveToken("acct", token)
	f.store.Upsert(accountstore.Account{ID: "acct"})
	f.store.SetLast("acct")

	f.conn.OnLogOn = func(string) error {
		return assert.AnError
	}

	assert.False(t, f.ctrl.TrySavedSession())

	_, ok := f.store.LoadToken("acct")
	assert.False(t, ok)

	_, ok = f.store.Last()
	assert.False(t, ok)
	assert.Empty(t, f.ctrl.ActiveAccount())
}

func TestSwitchAccountPersistsTargetBeforeTeardown(t *testing.T) {
	f := newFixture(t)

	f.store.SaveToken("a", refreshToken(t, "a"))
	f.store.SaveToken("b", refreshToken(t, "b"))
	f.store.SetLast("a")

	require.True(t, f.ctrl.TrySavedSession())
	f.conn.Emit(gc.LoggedOn{AccountID: "a"})
	waitAuthState(t, f, StateConnected)

	// By the time the old session is told to log off, the target must
	// already be recorded as last active.
	var lastAtLogoff string
	f.conn.OnLogOff = func() {
		lastAtLogoff, _ = f.store.Last()
	}

	require.True(t, f.ctrl.SwitchAccount(context.Background(), "b"))

	assert.Equal(t, "b", lastAtLogoff)
	assert.Equal(t, "b", f.ctrl.ActiveAccount())
}

func TestSwitchAccountMissingTokenLeavesSessionAlone(t *testing.T) {
	f := newFixture(t)

	f.store.SaveToken("a", refreshToken(t, "a"))
	f.store.SetLast("a")
	f.store.Upsert(accountstore.Account{ID: "ghost"})

	require.True(t, f.ctrl.TrySavedSession())
	f.conn.Emit(gc.LoggedOn{AccountID: "a"})
	waitAuthState(t, f, StateConnected)

	assert.False(t, f.ctrl.SwitchAccount(context.Background(), "ghost"))

	// No teardown happened and the active session is untouched.
	for _, call := range f.conn.Calls() {
		assert.NotEqual(t, "LogOff()", call)
	}

	assert.Equal(t, "a", f.ctrl.ActiveAccount())
	assert.Empty(t, f.store.List())
}

func TestRemoveActiveAccountLogsOff(t *testing.T) {
	f := newFixture(t)

	f.store.SaveToken("acct", refreshToken(t, "acct"))
	f.store.Upsert(accountstore.Account{ID: "acct"})
	f.store.SetLast("acct")

	require.True(t, f.ctrl.TrySavedSession())
	f.conn.Emit(gc.LoggedOn{AccountID: "acct"})
	waitAuthState(t, f, StateConnected)

	f.ctrl.RemoveAccount(context.Background(), "acct")

	waitCall(t, f, "LogOff()")
	assert.Empty(t, f.store.List())
	assert.Empty(t, f.ctrl.ActiveAccount())

	_, ok := f.store.Last()
	assert.False(t, ok)
}

func TestRemoveInactiveAccountOnlyTouchesDisk(t *testing.T) {
	f := newFixture(t)

	f.store.SaveToken("other", refreshToken(t, "other"))
	f.store.Upsert(accountstore.Account{ID: "other"})

	f.ctrl.RemoveAccount(context.Background(), "other")

	assert.Empty(t, f.store.List())

	for _, call := range f.conn.Calls() {
		assert.NotEqual(t, "LogOff()", call)
	}
}

func TestCredentialLogin(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.CredentialLogin(context.Background(), "alice", "hunter2"))

	waitCall(t, f, "StartCredentials(alice)")
	waitAuthState(t, f, StateConnecting)
}

func TestCredentialLoginFailure(t *testing.T) {
	f := newFixture(t)

	// Script the teardown manually so the no-op disconnect's state update
	// cannot land after the error state we assert on.
	f.conn.AutoDisconnect = false

	f.conn.OnStartCredentials = func(string, string) error {
		return assert.AnError
	}

	err := f.ctrl.CredentialLogin(context.Background(), "alice", "hunter2")
	require.Error(t, err)
	assert.Equal(t, StateError, f.ctrl.State())
}

func TestSubmitGuardCode(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.SubmitGuardCode(context.Background(), "ABC12"))
	waitCall(t, f, "SubmitGuardCode(ABC12)")
}
