// Package cli implements the medsync command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/medsync/internal/client/auth"
	"github.com/iudanet/medsync/internal/client/iocli"
	"github.com/iudanet/medsync/internal/config"
)

// PasswordEnv - переменная окружения с паролем для неинтерактивного запуска
const PasswordEnv = "MEDSYNC_PASSWORD"

// BuildFunc собирает App по загруженной конфигурации
type BuildFunc func(ctx context.Context, cfg *config.Client, logger *slog.Logger) (*App, error)

// Options параметры CLI
type Options struct {
	IO        iocli.IO
	LogOutput io.Writer // nil - os.Stderr
	Build     BuildFunc // nil - Open
	Version   string
}

// Passwords - источники пароля, кроме переменной окружения и интерактивного ввода
type Passwords struct {
	FromFile string
	FromArgs string
}

// Cli держит состояние одного запуска: конфигурацию, App и открытую сессию
type Cli struct {
	io        iocli.IO
	build     BuildFunc
	logOutput io.Writer
	viper     *viper.Viper
	cfg       *config.Client
	app       *App
	session   *auth.Session
	version   string

	configPath string
	passwords  Passwords
}

// New creates the CLI.
func New(opts Options) *Cli {
	c := &Cli{
		io:        opts.IO,
		build:     opts.Build,
		logOutput: opts.LogOutput,
		version:   opts.Version,
		viper:     config.NewViper(),
	}
	if c.io == nil {
		c.io = iocli.NewStdio()
	}
	if c.build == nil {
		c.build = Open
	}
	if c.logOutput == nil {
		c.logOutput = os.Stderr
	}
	if c.version == "" {
		c.version = "dev"
	}
	return c
}

// Command builds the root cobra command.
func (c *Cli) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "medsync",
		Short:         "Offline-first client for hospital records",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config file (YAML)")
	flags.String("server", "", "server URL")
	flags.String("db", "", "path to local database")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&c.passwords.FromFile, "password-file", "", "path to file containing the password")
	flags.StringVar(&c.passwords.FromArgs, "password", "", "password (not recommended, use "+PasswordEnv+" or --password-file)")

	config.SetClientDefaults(c.viper)
	_ = c.viper.BindPFlag("server_url", flags.Lookup("server"))
	_ = c.viper.BindPFlag("db_path", flags.Lookup("db"))
	_ = c.viper.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		c.registerCommand(),
		c.loginCommand(),
		c.logoutCommand(),
		c.statusCommand(),
		c.syncCommand(),
		c.watchCommand(),
		c.cacheCommand(),
		c.queueCommand(),
		c.conflictsCommand(),
		entityCommand(c, patientsSpec),
		entityCommand(c, consultationsSpec),
		entityCommand(c, prescriptionsSpec),
	)
	return root
}

// Close releases the App, if one was built.
func (c *Cli) Close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

// setup загружает конфигурацию и собирает App один раз на запуск
func (c *Cli) setup(ctx context.Context) error {
	if c.app != nil {
		return nil
	}

	cfg, err := config.LoadClient(c.viper, c.configPath)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format, c.logOutput)
	if err != nil {
		return err
	}

	app, err := c.build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.app = app
	return nil
}

// unlock открывает сохраненную сессию паролем и подключает репозитории
func (c *Cli) unlock(ctx context.Context) (*auth.Session, error) {
	if c.session != nil {
		return c.session, nil
	}

	username, err := c.app.Auth.Username(ctx)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return nil, fmt.Errorf("%w: run 'medsync login' first", auth.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth data: %w", err)
	}

	password, err := c.password(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return nil, err
	}

	session, err := c.app.Auth.Unlock(ctx, password)
	if err != nil {
		return nil, err
	}
	c.attach(session)
	return session, nil
}

func (c *Cli) attach(session *auth.Session) {
	c.session = session
	c.app.Attach(session)
}

// password reads the password with priority:
// 1. Environment variable MEDSYNC_PASSWORD
// 2. File given by --password-file
// 3. Command-line parameter --password
// 4. Interactive prompt (fallback)
func (c *Cli) password(prompt string) (string, error) {
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, nil
	}

	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// connect проверяет связь с сервером и сообщает, если работаем офлайн
func (c *Cli) connect(ctx context.Context) bool {
	if c.app.Probe(ctx) {
		return true
	}
	c.io.Println("⚠️  Server is unreachable, working offline.")
	return false
}

// confirm asks a yes/no question unless assumeYes is set.
func (c *Cli) confirm(question string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	answer, err := c.io.ReadInput(question + " (yes/no): ")
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y", nil
}
