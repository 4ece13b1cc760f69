package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitoshi/cybershield/internal/config"
	"github.com/hitoshi/cybershield/internal/database"
	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
	"github.com/hitoshi/cybershield/internal/topic"
	"github.com/hitoshi/cybershield/internal/user"
)

// cli はサブコマンド間で共有する状態。
type cli struct {
	logOut io.Writer
	cfg    *config.Config
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドなしの場合はserveとして起動する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand はcybershieldのルートコマンドを構築する。
// logOutは構造化ログの出力先。
func NewRootCommand(logOut io.Writer) *cobra.Command {
	c := &cli{logOut: logOut}

	var migrate bool
	root := &cobra.Command{
		Use:           "cybershield",
		Short:         "Cybersecurity education content portal API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c.cfg, migrate)
		},
	}
	root.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")

	root.AddCommand(
		c.serveCommand(),
		c.migrateCommand(),
		c.healthcheckCommand(),
		c.setRoleCommand(),
		c.clearUsersCommand(),
		c.nudgeTopicCommand(),
	)
	return root
}

func (c *cli) init() error {
	cfg, err := Init(c.logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	c.cfg = cfg
	return nil
}

func (c *cli) serveCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), c.cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func (c *cli) migrateCommand() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down > 0 {
				if err := database.RollbackMigrations(c.cfg.DatabaseURL, down); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", down)
				return nil
			}
			return runMigrate(c.cfg)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back the given number of migrations instead of applying")
	return cmd
}

// healthcheckCommand は設定読み込みを行わない軽量サブコマンド。
func (c *cli) healthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local /health endpoint",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "5000"
			}
			return runHealthcheck(cmd.Context(), port)
		},
	}
}

func (c *cli) setRoleCommand() *cobra.Command {
	var email, uid, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change a user's role (use to bootstrap the first admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (email == "") == (uid == "") {
				return errors.New("exactly one of --email or --uid is required")
			}
			return c.withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				svc := user.NewService(repository.NewPostgresUserRepo(db))
				var (
					u   *model.User
					err error
				)
				if email != "" {
					u, err = svc.SetRoleByEmail(ctx, email, role)
				} else {
					u, err = svc.SetRole(ctx, uid, role)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", u.Email, u.UID, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	cmd.Flags().StringVar(&uid, "uid", "", "uid of the user")
	cmd.Flags().StringVar(&role, "role", "", "new role (user|author|admin)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (c *cli) clearUsersCommand() *cobra.Command {
	var emails []string
	cmd := &cobra.Command{
		Use:   "clear-users",
		Short: "Delete test users by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				svc := user.NewService(repository.NewPostgresUserRepo(db))
				result, err := svc.ClearByEmails(ctx, emails)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range result.Deleted {
					fmt.Fprintf(out, "deleted %s\n", e)
				}
				for _, e := range result.Missing {
					fmt.Fprintf(out, "not found %s\n", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&emails, "email", nil, "email of a user to delete (repeatable)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) nudgeTopicCommand() *cobra.Command {
	var id string
	var up, down bool
	cmd := &cobra.Command{
		Use:   "nudge-topic",
		Short: "Move a topic one step up or down in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			direction, err := parseDirection(up, down)
			if err != nil {
				return err
			}
			return c.withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				svc := topic.NewService(repository.NewPostgresTopicRepo(db))
				t, err := svc.Nudge(ctx, id, direction)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s order=%g\n", t.Slug, t.Order)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "topic id")
	cmd.Flags().BoolVar(&up, "up", false, "move towards the front")
	cmd.Flags().BoolVar(&down, "down", false, "move towards the back")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func parseDirection(up, down bool) (topic.Direction, error) {
	switch {
	case up && !down:
		return topic.Up, nil
	case down && !up:
		return topic.Down, nil
	default:
		return 0, errors.New("exactly one of --up or --down is required")
	}
}

// withDB はDBに接続してfnを実行する。管理用サブコマンドで使用する。
func (c *cli) withDB(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	db, err := database.Connect(ctx, c.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}
