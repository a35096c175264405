// Command seed fills the database with a demo account and a starter board.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/Adibmaros/tasks-management/config"
	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/storage"
)

var demoTasks = []struct{ name, description string }{
	{"Implement user authentication", "Need to implement JWT-based authentication with refresh tokens"},
	{"Design database schema", "Design a scalable database schema for the new feature"},
	{"Create API endpoints", "Create RESTful API endpoints with proper validation"},
	{"Write unit tests", "Write comprehensive unit tests to ensure code quality"},
	{"Setup CI/CD pipeline", "Setup automated deployment pipeline using GitHub Actions"},
	{"Refactor legacy code", "Refactor old code to improve maintainability"},
	{"Update documentation", "Update API documentation with latest changes"},
	{"Fix critical bugs", "Fix critical bugs reported by users in production"},
	{"Optimize database queries", "Optimize slow database queries to improve performance"},
	{"Deploy to production", "Deploy the latest version to production environment"},
}

var seedStatuses = []domain.Status{domain.StatusPlan, domain.StatusDoing, domain.StatusDone}

// seedStore is the part of storage.Storage the seeder touches.
type seedStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id int64) error
	ListBoard(ctx context.Context, userID int64) ([]domain.Task, error)
	ListArchived(ctx context.Context, userID int64) ([]domain.Task, error)
}

type options struct {
	name     string
	email    string
	password string
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Create a demo user with ten tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()
			return seed(cmd.Context(), store, opts, log.StandardLogger())
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "Demo User", "display name of the demo account")
	cmd.Flags().StringVar(&opts.email, "email", "demo@example.com", "email of the demo account")
	cmd.Flags().StringVar(&opts.password, "password", "password123", "password of the demo account")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// seed makes sure the demo user exists, clears its tasks and recreates the
// starter board, cycling the tasks through PLAN, DOING and DONE.
func seed(ctx context.Context, store seedStore, opts options, logger *log.Logger) error {
	user, err := store.GetUserByEmail(ctx, opts.email)
	var notFound *domain.NotFoundError
	switch {
	case errors.As(err, &notFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		if user, err = store.CreateUser(ctx, opts.name, opts.email, string(hash)); err != nil {
			return err
		}
		logger.WithField("email", user.Email).Info("created demo user")
	case err != nil:
		return err
	}

	if err := clearTasks(ctx, store, user.ID); err != nil {
		return err
	}

	logger.Info("seeding database...")
	for i, t := range demoTasks {
		desc := t.description
		task, err := store.CreateTask(ctx, domain.NewTask{
			UserID:      user.ID,
			Name:        t.name,
			Description: &desc,
			Status:      seedStatuses[i%len(seedStatuses)],
		})
		if err != nil {
			return fmt.Errorf("creating task %q: %w", t.name, err)
		}
		logger.WithFields(log.Fields{"task": task.ID, "status": task.Status, "position": task.Position}).Infof("created task %d: %s", i+1, task.Name)
	}
	logger.Info("seeding completed")
	return nil
}

func clearTasks(ctx context.Context, store seedStore, userID int64) error {
	board, err := store.ListBoard(ctx, userID)
	if err != nil {
		return err
	}
	archived, err := store.ListArchived(ctx, userID)
	if err != nil {
		return err
	}
	for _, t := range append(board, archived...) {
		if err := store.DeleteTask(ctx, userID, t.ID); err != nil {
			return err
		}
	}
	return nil
}
