package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reminderbot/internal/app"
	"reminderbot/internal/reminder"
	"reminderbot/internal/storage"
	logx "reminderbot/pkg/logx"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and edit pending reminders",
	Long:  `Operates directly on the configured store. Use a persistent driver (sqlite or postgres); the memory store is empty outside serve.`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reminders",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksAddCmd = &cobra.Command{
	Use:   "add [chat-id] [message]",
	Short: "Add a reminder as if chat-id had sent message",
	Long:  `message uses the chat format, e.g. "01.01.2030 20:00 Do homework".`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTasksAdd,
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a pending reminder",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDelete,
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	rootCmd.AddCommand(tasksCmd)
}

func openOffline() (*app.Offline, error) {
	return app.OpenOffline(cfgPath, logx.NewConsole("WARN"))
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	off, err := openOffline()
	if err != nil {
		return err
	}
	defer func() { _ = off.Close() }()

	tasks, err := off.Store.List(cmd.Context())
	if err != nil {
		return err
	}
	printTasks(cmd.OutOrStdout(), tasks, time.Now())
	return nil
}

func printTasks(w io.Writer, tasks []reminder.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no pending reminders")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHAT\tWHEN\t\tTEXT")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Destination, t.ScheduledAt.Format(reminder.Layout),
			humanize.RelTime(t.ScheduledAt, now, "ago", "from now"), oneLine(t.Text, 60))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%s pending\n", humanize.Comma(int64(len(tasks))))
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

func runTasksAdd(cmd *cobra.Command, args []string) error {
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("chat-id must be an integer: %w", err)
	}
	off, err := openOffline()
	if err != nil {
		return err
	}
	defer func() { _ = off.Close() }()

	id, err := off.Intake.Submit(cmd.Context(), reminder.Destination(chatID), strings.Join(args[1:], " "))
	var pe *reminder.ParseError
	if errors.As(err, &pe) {
		return errors.New(reminder.ErrorText(pe))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (id %s)\n", reminder.ConfirmationText, id)
	return nil
}

func runTasksDelete(cmd *cobra.Command, args []string) error {
	off, err := openOffline()
	if err != nil {
		return err
	}
	defer func() { _ = off.Close() }()

	err = off.Store.Delete(cmd.Context(), reminder.TaskID(args[0]))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no pending reminder with id %s", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
