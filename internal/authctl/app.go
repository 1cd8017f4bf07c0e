// Package authctl implements the operator commands: provisioning accounts,
// one-off expiry sweeps and schema migration.
package authctl

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/flagx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/sweeper"
)

const usage = `usage: authctl <command> [flags]

commands:
  create-user -username NAME -email EMAIL [-role ROLE] [-name FULL_NAME]
  sweep       delete expired passcodes and sessions once
  migrate     apply database migrations`

// ErrUsage is returned for an unknown or missing command.
var ErrUsage = errors.New("invalid usage")

type storeOpener func(ctx context.Context, c *config.Config, l logging.Logger) (*sql.DB, repomanager.RepositoryManager, error)

type App struct {
	config    *config.Config
	logger    logging.Logger
	in        *bufio.Reader
	out       io.Writer
	openStore storeOpener
}

func NewApp(c *config.Config, logger logging.Logger, in io.Reader, out io.Writer) *App {
	return &App{
		config:    c,
		logger:    logger,
		in:        bufio.NewReader(in),
		out:       out,
		openStore: server.OpenStore,
	}
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "create-user":
		return a.createUser(ctx, args[1:])
	case "sweep":
		return a.sweep(ctx)
	case "migrate":
		return a.migrate(ctx)
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	default:
		fmt.Fprintln(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (a *App) open(ctx context.Context) (*sql.DB, repomanager.RepositoryManager, func(), error) {
	db, rm, err := a.openStore(ctx, a.config, a.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closer := func() {
		if db != nil {
			_ = db.Close()
		}
	}
	return db, rm, closer, nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	var in services.RegisterInput
	var role string

	args = flagx.FilterArgs(args, []string{"-username", "-email", "-role", "-name"})
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.StringVar(&in.Username, "username", "", "login name")
	fs.StringVar(&in.Email, "email", "", "email address")
	fs.StringVar(&role, "role", string(models.DefaultRole), "candidate, interviewer or admin")
	fs.StringVar(&in.FullName, "name", "", "full name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Role = models.Role(role)

	var err error
	if in.Username == "" {
		if in.Username, err = GetSimpleText(a.in, "Enter user name", a.out); err != nil {
			return err
		}
	}
	if in.Email == "" {
		if in.Email, err = GetSimpleText(a.in, "Enter email", a.out); err != nil {
			return err
		}
	}
	if in.Password, err = GetNewPassword(a.out); err != nil {
		return err
	}

	hasher, err := cryptox.NewHasher(a.config.BcryptCost)
	if err != nil {
		return err
	}

	db, rm, closeStore, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	otps, sessions := server.NewServices(db, rm, a.config, a.logger)
	svc := services.NewAuthService(db, rm, a.config, services.AuthDeps{
		Codec:    auth.NewCodec([]byte(a.config.SecretKey), a.config.TokenTTL),
		OTPs:     otps,
		Sessions: sessions,
		Hasher:   hasher,
		Logger:   a.logger,
	})

	user, err := svc.CreateUser(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Created user %s (%s) with role %s\n", user.Username, user.ID, user.Role)
	return nil
}

func (a *App) sweep(ctx context.Context) error {
	db, rm, closeStore, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	otps, sessions := server.NewServices(db, rm, a.config, a.logger)
	res, err := sweeper.New(otps, sessions, a.config.SweepInterval, nil, a.logger).SweepOnce(ctx)
	fmt.Fprintf(a.out, "Deleted %d expired passcodes and %d expired sessions\n", res.OTPs, res.Sessions)
	return err
}

func (a *App) migrate(ctx context.Context) error {
	if a.config.StoreDriver != config.DriverPostgres {
		fmt.Fprintf(a.out, "Store driver %q has no schema, nothing to migrate\n", a.config.StoreDriver)
		return nil
	}
	_, _, closeStore, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Fprintln(a.out, "Migrations applied")
	return nil
}
