// Command taskctl is a terminal client for the task board.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Adibmaros/tasks-management/client"
	"github.com/Adibmaros/tasks-management/deadline"
)

var (
	serverURL string
	locale    string
	verbose   bool
	rootCmd   *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:           "taskctl",
		Short:         "Terminal client for the task board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	defaultURL := os.Getenv("TASKBOARD_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "task board base URL")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", string(deadline.LocaleEN), "wording for countdowns (en, id)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(watchCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// serverKey identifies the stored token for the selected server.
func serverKey() string {
	return strings.TrimRight(serverURL, "/")
}

// authedClient loads the stored token and resolves the current user.
func authedClient(cmd *cobra.Command, opts ...client.Option) (*client.Client, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	token, err := loadToken(ring, serverKey())
	if err != nil {
		return nil, err
	}
	c := client.New(serverURL, token, opts...)
	if _, err := c.Me(cmd.Context()); err != nil {
		return nil, fmt.Errorf("resolving session (try taskctl login): %w", err)
	}
	return c, nil
}
