// Package admin implements the tokenctl operator commands. They run against
// the same database and services as the server.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

type authService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	AdminRevokeSession(ctx context.Context, userID, familyID string) error
	AdminRevokeAll(ctx context.Context, userID string) (int64, error)
	DeactivateUser(ctx context.Context, userID string) (int64, error)
	AdminBlacklist(ctx context.Context, userID, jti string) error
}

type sweeper interface {
	Sweep(ctx context.Context) (services.SweepReport, error)
}

type App struct {
	auth    authService
	janitor sweeper
	in      *bufio.Reader
	out     io.Writer
}

func NewApp(auth authService, janitor sweeper, in io.Reader, out io.Writer) *App {
	return &App{auth: auth, janitor: janitor, in: bufio.NewReader(in), out: out}
}

const usage = `Usage: tokenctl [config flags] <command> [flags]

Commands:
  useradd    -email <email> [-role user|admin]   create a user (password is prompted)
  sessions   -user <email|id>                    list active sessions
  revoke     -user <email|id> -family <id>       end one session
  revoke-all -user <email|id>                    end every session of a user
  deactivate -user <email|id>                    deactivate a user and end their sessions
  blacklist  -user <email|id> -jti <id>          reject a leaked access token until it expires
  sweep                                          run the cleanup job once
`

func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Run executes one command.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "useradd":
		return a.userAdd(ctx, args)
	case "sessions":
		return a.sessions(ctx, args)
	case "revoke":
		return a.revoke(ctx, args)
	case "revoke-all":
		return a.revokeAll(ctx, args)
	case "deactivate":
		return a.deactivate(ctx, args)
	case "blacklist":
		return a.blacklist(ctx, args)
	case "sweep":
		return a.sweep(ctx)
	case "help", "":
		Usage(a.out)
		return nil
	default:
		Usage(a.out)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) userAdd(ctx context.Context, args []string) error {
	fs := a.flags("useradd")
	email := fs.String("email", "", "user email")
	role := fs.String("role", models.RoleUser, "user role (user or admin)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *email == "" {
		return fmt.Errorf("%w: -email is required", ErrUsage)
	}

	pw, err := GetPassword(a.in, "Enter password: ", a.out)
	if err != nil {
		return err
	}
	confirm, err := GetPassword(a.in, "Repeat password: ", a.out)
	if err != nil {
		return err
	}
	if pw != confirm {
		return errors.New("passwords do not match")
	}

	user, err := a.auth.Register(ctx, services.RegisterRequest{Email: *email, Password: pw, Role: *role})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created user %s (%s, role %s)\n", user.ID, user.Email, user.Role)
	return nil
}

func (a *App) sessions(ctx context.Context, args []string) error {
	fs := a.flags("sessions")
	user := fs.String("user", "", "user email or id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	userID, err := a.resolveUser(ctx, *user)
	if err != nil {
		return err
	}

	list, err := a.auth.ListSessions(ctx, userID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no active sessions")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAMILY\tDEVICE\tIP\tCREATED\tLAST ACTIVITY\tEXPIRES")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.FamilyID, orDash(s.DeviceLabel), orDash(s.IPAddress),
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.LastActivityAt.UTC().Format(time.RFC3339),
			s.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func (a *App) revoke(ctx context.Context, args []string) error {
	fs := a.flags("revoke")
	user := fs.String("user", "", "user email or id")
	family := fs.String("family", "", "session family id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *family == "" {
		return fmt.Errorf("%w: -family is required", ErrUsage)
	}
	userID, err := a.resolveUser(ctx, *user)
	if err != nil {
		return err
	}

	if err := a.auth.AdminRevokeSession(ctx, userID, *family); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "revoked session %s\n", *family)
	return nil
}

func (a *App) revokeAll(ctx context.Context, args []string) error {
	fs := a.flags("revoke-all")
	user := fs.String("user", "", "user email or id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	userID, err := a.resolveUser(ctx, *user)
	if err != nil {
		return err
	}

	n, err := a.auth.AdminRevokeAll(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "revoked %d session(s)\n", n)
	return nil
}

func (a *App) deactivate(ctx context.Context, args []string) error {
	fs := a.flags("deactivate")
	user := fs.String("user", "", "user email or id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	userID, err := a.resolveUser(ctx, *user)
	if err != nil {
		return err
	}

	n, err := a.auth.DeactivateUser(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deactivated user %s, revoked %d session(s)\n", userID, n)
	return nil
}

func (a *App) blacklist(ctx context.Context, args []string) error {
	fs := a.flags("blacklist")
	user := fs.String("user", "", "user email or id")
	jti := fs.String("jti", "", "access token id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *jti == "" {
		return fmt.Errorf("%w: -jti is required", ErrUsage)
	}
	userID, err := a.resolveUser(ctx, *user)
	if err != nil {
		return err
	}

	if err := a.auth.AdminBlacklist(ctx, userID, *jti); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "blacklisted access token %s\n", *jti)
	return nil
}

func (a *App) sweep(ctx context.Context) error {
	report, err := a.janitor.Sweep(ctx)
	fmt.Fprintf(a.out, "blacklist pruned: %d\nsessions expired: %d\ntokens deleted: %d\nattempts deleted: %d\n",
		report.BlacklistPruned, report.SessionsExpired, report.TokensDeleted, report.AttemptsDeleted)
	return err
}

// resolveUser accepts an email or a user id.
func (a *App) resolveUser(ctx context.Context, user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", fmt.Errorf("%w: -user is required", ErrUsage)
	}
	if !strings.Contains(user, "@") {
		return user, nil
	}
	u, err := a.auth.FindUserByEmail(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", fmt.Errorf("user %s: %w", user, err)
		}
		return "", err
	}
	return u.ID, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
