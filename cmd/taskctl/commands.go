package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Adibmaros/tasks-management/client"
	"github.com/Adibmaros/tasks-management/deadline"
	"github.com/Adibmaros/tasks-management/domain"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token in the system keyring",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if loginPassword == "" {
			loginPassword = os.Getenv("TASKBOARD_PASSWORD")
		}
		if loginEmail == "" || loginPassword == "" {
			return errors.New("--email and --password (or TASKBOARD_PASSWORD) are required")
		}
		c := client.New(serverURL, "")
		res, err := c.Login(cmd.Context(), loginEmail, loginPassword)
		if err != nil {
			return err
		}
		ring, err := openKeyring()
		if err != nil {
			return err
		}
		if err := saveToken(ring, serverKey(), res.Token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", res.Name, res.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ring, err := openKeyring()
		if err != nil {
			return err
		}
		return deleteToken(ring, serverKey())
	},
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the board as columns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := authedClient(cmd)
		if err != nil {
			return err
		}
		tasks, err := c.Board(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderBoard(tasks, time.Now(), deadline.Locale(locale)))
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <task-id> <status> <position>",
	Short: "Move a task to a column and position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, status, position, err := parseMoveArgs(args)
		if err != nil {
			return err
		}
		c, err := authedClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Move(cmd.Context(), taskID, status, position); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved task %d to %s #%d\n", taskID, status, position)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the board live, with countdowns and deadline alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := newBoardWatcher(cmd.OutOrStdout(), cmd.ErrOrStderr(), deadline.Locale(locale), log.StandardLogger())
		c, err := authedClient(cmd, client.WithLocalChange(w.coord.MarkLocalChange))
		if err != nil {
			return err
		}
		w.bind(c, cmd.InOrStdin())
		return w.Run(cmd.Context())
	},
}

// parseMoveArgs reads task id, status and position.
func parseMoveArgs(args []string) (int64, domain.Status, int, error) {
	taskID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid task id %q", args[0])
	}
	status, err := domain.ParseStatus(args[1])
	if err != nil {
		return 0, "", 0, err
	}
	position, err := strconv.Atoi(args[2])
	if err != nil || position < 0 {
		return 0, "", 0, fmt.Errorf("invalid position %q", args[2])
	}
	return taskID, status, position, nil
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
}
