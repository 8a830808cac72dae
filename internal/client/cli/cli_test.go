package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medsync/internal/client/api/apitest"
	"github.com/iudanet/medsync/internal/client/auth"
	"github.com/iudanet/medsync/internal/client/iocli"
	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/client/storage/boltdb"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/config"
	pkgapi "github.com/iudanet/medsync/pkg/api"
)

const testPassword = "correct-horse-battery"

// fakeAuth хранит одну учетную запись в памяти, без шифрования хранилища
type fakeAuth struct {
	users    map[string]string
	session  *auth.Session
	loggedIn bool
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{users: make(map[string]string)}
}

func (f *fakeAuth) Register(_ context.Context, username, password, hospitalID, role string) (*pkgapi.RegisterResponse, error) {
	if _, ok := f.users[username]; ok {
		return nil, errors.New("user already exists")
	}
	f.users[username] = password
	return &pkgapi.RegisterResponse{UserID: "u-" + username, Message: "ok"}, nil
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (*auth.Session, error) {
	if pw, ok := f.users[username]; !ok || pw != password {
		return nil, errors.New("invalid credentials")
	}
	f.session = &auth.Session{
		UserID:   "u-" + username,
		Username: username,
		ScopeID:  "st-mary",
		Role:     "doctor",
		Token:    "token",
	}
	f.loggedIn = true
	return f.session, nil
}

func (f *fakeAuth) Unlock(_ context.Context, password string) (*auth.Session, error) {
	if !f.loggedIn {
		return nil, auth.ErrNotAuthenticated
	}
	if f.users[f.session.Username] != password {
		return nil, auth.ErrInvalidPassword
	}
	return f.session, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.loggedIn = false
	f.session = nil
	return nil
}

func (f *fakeAuth) Username(context.Context) (string, error) {
	if !f.loggedIn {
		return "", auth.ErrNotAuthenticated
	}
	return f.session.Username, nil
}

func (f *fakeAuth) IsAuthenticated(context.Context) (bool, error) {
	return f.loggedIn, nil
}

// harness - одно App на тест; каждая команда запускается новым Cli, как отдельный процесс
type harness struct {
	app    *App
	remote *apitest.Remote
	auth   *fakeAuth
	online atomic.Bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)

	v := config.NewViper()
	config.SetClientDefaults(v)
	cfg, err := config.LoadClient(v, "")
	require.NoError(t, err)

	h := &harness{remote: apitest.New(), auth: newFakeAuth()}
	h.online.Store(true)

	prober := network.ProberFunc(func(context.Context) error {
		if h.online.Load() {
			return nil
		}
		return apitest.Unavailable()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.app, err = NewApp(cfg, Components{
		Store:  store,
		Remote: h.remote,
		Auth:   h.auth,
		Prober: prober,
		Clock:  clock.NewMonotonic(),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, h.app.Close())
	})
	return h
}

// loggedIn регистрирует пользователя house и открывает сессию
func (h *harness) loggedIn(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	_, err := h.auth.Register(ctx, "house", testPassword, "st-mary", "doctor")
	require.NoError(t, err)
	_, err = h.auth.Login(ctx, "house", testPassword)
	require.NoError(t, err)
	t.Setenv(PasswordEnv, testPassword)
	return h
}

func (h *harness) setOnline(online bool) {
	h.online.Store(online)
}

func (h *harness) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	c := New(Options{
		IO:        iocli.NewStreams(strings.NewReader(input), &out),
		LogOutput: io.Discard,
		Build: func(context.Context, *config.Client, *slog.Logger) (*App, error) {
			return h.app, nil
		},
	})
	cmd := c.Command()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestPassword_Sources(t *testing.T) {
	passwordFile := filepath.Join(t.TempDir(), "password.txt")
	require.NoError(t, os.WriteFile(passwordFile, []byte("from_file_password\n"), 0o600))
	emptyFile := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(emptyFile, []byte("  \n"), 0o600))

	tests := []struct {
		name      string
		env       string
		passwords Passwords
		input     string
		want      string
		wantErr   string
	}{
		{
			name: "env has priority over everything",
			env:  "from_env_password",
			passwords: Passwords{
				FromFile: passwordFile,
				FromArgs: "from_args_password",
			},
			want: "from_env_password",
		},
		{
			name: "file has priority over args",
			passwords: Passwords{
				FromFile: passwordFile,
				FromArgs: "from_args_password",
			},
			want: "from_file_password",
		},
		{
			name:      "args",
			passwords: Passwords{FromArgs: "from_args_password"},
			want:      "from_args_password",
		},
		{
			name:  "interactive prompt",
			input: "typed_password\n",
			want:  "typed_password",
		},
		{
			name:      "missing file",
			passwords: Passwords{FromFile: filepath.Join(t.TempDir(), "missing.txt")},
			wantErr:   "failed to read password file",
		},
		{
			name:      "empty file",
			passwords: Passwords{FromFile: emptyFile},
			wantErr:   "password file is empty",
		},
		{
			name:    "empty prompt",
			input:   "\n",
			wantErr: "password cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(PasswordEnv, tt.env)

			var out bytes.Buffer
			c := &Cli{
				io:        iocli.NewStreams(strings.NewReader(tt.input), &out),
				passwords: tt.passwords,
			}

			got, err := c.password("Password: ")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		assumeYes bool
		want      bool
	}{
		{name: "yes", input: "yes\n", want: true},
		{name: "short y uppercase", input: "Y\n", want: true},
		{name: "no", input: "no\n", want: false},
		{name: "anything else", input: "maybe\n", want: false},
		{name: "assume yes skips the question", assumeYes: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &Cli{io: iocli.NewStreams(strings.NewReader(tt.input), &out)}

			got, err := c.confirm("Continue?", tt.assumeYes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.assumeYes {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	h := newHarness(t)

	out, err := h.run(t, "house\n", "register", "--hospital", "st-mary", "--password", testPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "Registration successful")
	assert.Contains(t, out, "User ID: u-house")
	assert.Equal(t, testPassword, h.auth.users["house"])

	_, err = h.run(t, "", "register", "--hospital", "st-mary", "--password", "short")
	require.Error(t, err, "username is read from empty input")

	_, err = h.run(t, "x\n", "register", "--hospital", "st-mary", "--password", testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username")

	_, err = h.run(t, "wilson\n", "register", "--hospital", "st mary", "--password", testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid hospital id")

	_, err = h.run(t, "wilson\n", "register", "--hospital", "st-mary", "--password", "short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid password")

	out, err = h.run(t, "", "login", "-u", "house", "--password", testPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful")
	assert.Contains(t, out, "Hospital: st-mary")
	assert.Contains(t, out, "Role:     doctor")

	_, err = h.run(t, "", "login", "-u", "house", "--password", "wrong-password")
	require.Error(t, err)
}

func TestRegister_InteractiveConfirmation(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	h := newHarness(t)

	_, err := h.run(t, "house\n"+testPassword+"\nsomething-else\n", "register", "--hospital", "st-mary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passwords do not match")
	assert.Empty(t, h.auth.users)

	out, err := h.run(t, "house\nst-mary\n"+testPassword+"\n"+testPassword+"\n", "register")
	require.NoError(t, err)
	assert.Contains(t, out, "Hospital ID: ")
	assert.Contains(t, out, "Registration successful")
}

func TestCommands_RequireLogin(t *testing.T) {
	h := newHarness(t)

	for _, args := range [][]string{
		{"patients", "list"},
		{"queue", "list"},
		{"sync"},
		{"conflicts", "list"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := h.run(t, "", args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
			assert.Contains(t, err.Error(), "medsync login")
		})
	}
}

func TestStatus(t *testing.T) {
	t.Run("not authenticated and offline", func(t *testing.T) {
		h := newHarness(t)
		h.setOnline(false)

		out, err := h.run(t, "", "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Session:   not authenticated")
		assert.Contains(t, out, "Network:   offline")
		assert.Contains(t, out, "Last sync: never")
		assert.Contains(t, out, "All changes synchronized")
	})

	t.Run("pending changes", func(t *testing.T) {
		h := newHarness(t).loggedIn(t)
		h.setOnline(false)

		file := writeJSON(t, map[string]any{"first_name": "Ada", "last_name": "Lovelace"})
		_, err := h.run(t, "", "patients", "save", "--file", file)
		require.NoError(t, err)

		out, err := h.run(t, "", "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Session:   house")
		assert.Contains(t, out, "Pending sync: 1 change(s)")
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t).loggedIn(t)

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.False(t, h.auth.loggedIn)
}

func writeRaw(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
