// permctl inspects and edits user permissions from an operator shell. It talks
// to PostgreSQL directly and announces every change on the invalidation
// channel so running dashboards re-fetch.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/opsboard/opsboard/internal/app"
	"github.com/opsboard/opsboard/internal/permissions"
	"github.com/opsboard/opsboard/internal/platform/cache"
	"github.com/opsboard/opsboard/internal/platform/db"
	"github.com/opsboard/opsboard/internal/shared"
	"github.com/opsboard/opsboard/jobs"
)

const usage = `permctl manages dashboard permissions.

Usage:
  permctl list --actor <uuid>
  permctl set --actor <uuid> --user <uuid> --permission <name> [--granted=false]
  permctl apply-template --actor <uuid> --user <uuid> --role <admin|technician|attendant>
  permctl bootstrap
  permctl reconcile [--broadcast]
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command, rest := args[0], args[1:]
	if command == "-h" || command == "--help" || command == "help" {
		fmt.Fprint(out, usage)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if command == "reconcile" {
		return reconcile(ctx, cfg, rest, out)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, dashboards will pick changes up on their next refresh", slog.Any("error", err))
	}
	defer func() { _ = redisClient.Close() }()

	store := permissions.NewPGStore(pool)
	audit := shared.NewAuditLogger(pool)
	notifier := permissions.NewNotifier(redisClient, cfg.PermissionsChannel, logger)
	if command == "bootstrap" {
		return bootstrap(ctx, store, audit, notifier, out)
	}

	manager := permissions.NewManager(store, permissions.NewDirectory(), permissions.ManagerConfig{
		Audit:     audit,
		Publisher: notifier,
		Logger:    logger,
	})
	if err := manager.Refresh(ctx); err != nil {
		return err
	}

	switch command {
	case "list":
		return list(ctx, manager, rest, out)
	case "set":
		return set(ctx, manager, rest, out)
	case "apply-template":
		return applyTemplate(ctx, manager, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func list(ctx context.Context, manager *permissions.Manager, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	actor := flags.String("actor", "", "acting administrator id")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	actorID, err := parseID("actor", *actor)
	if err != nil {
		return err
	}
	users, err := manager.ListUsersWithPermissions(ctx, actorID)
	if err != nil {
		return err
	}
	return printUsers(out, users)
}

func set(ctx context.Context, manager *permissions.Manager, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
	actor := flags.String("actor", "", "acting administrator id")
	user := flags.String("user", "", "target user id")
	permission := flags.String("permission", "", "permission name")
	granted := flags.Bool("granted", true, "grant (true) or revoke (false)")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	actorID, err := parseID("actor", *actor)
	if err != nil {
		return err
	}
	userID, err := parseID("user", *user)
	if err != nil {
		return err
	}
	t, err := permissions.ParseType(*permission)
	if err != nil {
		return err
	}
	result, err := manager.SetPermission(ctx, actorID, userID, t, *granted)
	if err != nil {
		return err
	}
	return printSet(out, userID, result)
}

func applyTemplate(ctx context.Context, manager *permissions.Manager, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("apply-template", pflag.ContinueOnError)
	actor := flags.String("actor", "", "acting administrator id")
	user := flags.String("user", "", "target user id")
	role := flags.String("role", "", "role template to apply")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	actorID, err := parseID("actor", *actor)
	if err != nil {
		return err
	}
	userID, err := parseID("user", *user)
	if err != nil {
		return err
	}
	r, err := permissions.ParseRole(*role)
	if err != nil {
		return err
	}
	result, err := manager.ApplyTemplate(ctx, actorID, userID, r)
	if err != nil {
		return err
	}
	return printSet(out, userID, result)
}

func reconcile(ctx context.Context, cfg *app.Config, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
	broadcast := flags.Bool("broadcast", false, "ask dashboards to re-fetch after the run")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	info, err := client.EnqueuePermissionsReconcile(ctx, *broadcast)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enqueued %s on %s\n", info.ID, info.Queue)
	return nil
}

func parseID(name, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: --%s is required", errUsage, name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}

func printUsers(out io.Writer, users []permissions.UserPermissions) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tGRANTED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			u.Profile.ID, u.Profile.FullName, u.Profile.Email, u.Profile.Role, joinTypes(u.Permissions.Granted()))
	}
	return tw.Flush()
}

func printSet(out io.Writer, userID uuid.UUID, set permissions.Set) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "user\t%s\n", userID)
	for _, t := range permissions.All() {
		fmt.Fprintf(tw, "%s\t%t\n", t, set.Get(t))
	}
	return tw.Flush()
}

func joinTypes(types []permissions.Type) string {
	if len(types) == 0 {
		return "-"
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return strings.Join(names, ",")
}
