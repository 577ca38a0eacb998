package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonio1998/snsulms-sub001/internal/app"
	"github.com/tonio1998/snsulms-sub001/internal/freshness"
)

// show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cached LMS data, refreshing it first when online",
}

func printUpdated(a *app.LMSApp, writtenAt *time.Time) {
	fmt.Printf("\nLast updated: %s\n", freshness.Describe(writtenAt, a.Now()))
}

func showErr(what string, err error) error {
	if errors.Is(err, app.ErrNotCached) {
		return fmt.Errorf("no %s cached yet; connect once to load them", what)
	}
	return err
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

var showEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "show-events", true)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.Events(cmd.Context())
		if err != nil {
			return showErr("events", err)
		}
		if len(*e.Data) == 0 {
			fmt.Println("No events.")
		}
		for _, ev := range *e.Data {
			fmt.Printf("%s  %s", formatTime(&ev.StartsAt), ev.Title)
			if ev.Venue != "" {
				fmt.Printf("  @ %s", ev.Venue)
			}
			fmt.Println()
		}
		printUpdated(a, e.WrittenAt)
		return nil
	},
}

var showClassesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Show enrolled classes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "show-classes", true)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.Classes(cmd.Context())
		if err != nil {
			return showErr("classes", err)
		}
		if len(*e.Data) == 0 {
			fmt.Println("No classes.")
		}
		for _, c := range *e.Data {
			fmt.Printf("#%-6d %-10s %s", c.ID, c.Code, c.Name)
			if c.Teacher != "" {
				fmt.Printf("  (%s)", c.Teacher)
			}
			fmt.Println()
		}
		printUpdated(a, e.WrittenAt)
		return nil
	},
}

var showActivitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Show your activities in a class",
	RunE: func(cmd *cobra.Command, args []string) error {
		classID, _ := cmd.Flags().GetInt64("class")

		a, err := newApp(cmd, "show-activities", true)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.Activities(cmd.Context(), classID)
		if err != nil {
			return showErr("activities", err)
		}
		if len(*e.Data) == 0 {
			fmt.Println("No activities.")
		}
		for _, act := range *e.Data {
			done := " "
			if act.Submitted {
				done = "x"
			}
			fmt.Printf("[%s] #%-6d %-10s due %s  %s\n", done, act.ID, act.Type, formatTime(act.DueAt), act.Title)
		}
		printUpdated(a, e.WrittenAt)
		return nil
	},
}

var showClassActivitiesCmd = &cobra.Command{
	Use:   "class-activities",
	Short: "Show a class's activity list with submission counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		classID, _ := cmd.Flags().GetInt64("class")

		a, err := newApp(cmd, "show-class-activities", true)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.ClassActivities(cmd.Context(), classID)
		if err != nil {
			return showErr("class activities", err)
		}
		if len(*e.Data) == 0 {
			fmt.Println("No activities.")
		}
		for _, act := range *e.Data {
			fmt.Printf("#%-6d %-10s %3d/%-3d  %s\n", act.ID, act.Type, act.Submitted, act.TotalCount, act.Title)
		}
		printUpdated(a, e.WrittenAt)
		return nil
	},
}

var showActivityCmd = &cobra.Command{
	Use:   "activity ID",
	Short: "Show one activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		activityID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid activity id %q", args[0])
		}

		a, err := newApp(cmd, "show-activity", true)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.Activity(cmd.Context(), activityID)
		if err != nil {
			return showErr("activity", err)
		}
		act := e.Data
		fmt.Printf("%s (%s)\n", act.Title, act.Type)
		fmt.Printf("Due:    %s\n", formatTime(act.DueAt))
		if act.Points > 0 {
			fmt.Printf("Points: %d\n", act.Points)
		}
		if act.Score != nil {
			fmt.Printf("Score:  %g\n", *act.Score)
		}
		if act.Instruction != "" {
			fmt.Printf("\n%s\n", act.Instruction)
		}
		printUpdated(a, e.WrittenAt)
		return nil
	},
}

var showWallCmd = &cobra.Command{
	Use:   "wall",
	Short: "Show a class wall",
	RunE: func(cmd *cobra.Command, args []string) error {
		classID, _ := cmd.Flags().GetInt64("class")
		pages, _ := cmd.Flags().GetInt("pages")

		a, err := newApp(cmd, "show-wall", true)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.ClassWall(cmd.Context(), classID, false)
		if err != nil {
			return showErr("wall posts", err)
		}
		for i := 1; i < pages; i++ {
			if e, err = a.ClassWall(cmd.Context(), classID, true); err != nil {
				return showErr("wall posts", err)
			}
		}

		if len(*e.Data) == 0 {
			fmt.Println("No posts.")
		}
		for _, p := range *e.Data {
			fmt.Printf("%s  %s (%d comments)\n  %s\n", formatTime(&p.CreatedAt), p.Author, p.Comments, p.Body)
		}
		printUpdated(a, e.WrittenAt)
		return nil
	},
}

var showAttendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show scans recorded on this device for a class",
	RunE: func(cmd *cobra.Command, args []string) error {
		classID, _ := cmd.Flags().GetInt64("class")

		a, err := newApp(cmd, "show-attendance", false)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Attendance(cmd.Context(), classID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No scans recorded.")
			return nil
		}
		for _, en := range entries {
			state := "sent"
			if en.Pending {
				state = "pending"
			}
			fmt.Printf("%s  %-12s  %s\n", formatTime(&en.ScannedAt), en.SubjectID, state)
		}
		return nil
	},
}

func init() {
	showCmd.AddCommand(showEventsCmd)
	showCmd.AddCommand(showClassesCmd)
	showCmd.AddCommand(showActivityCmd)
	for _, c := range []*cobra.Command{showActivitiesCmd, showClassActivitiesCmd, showWallCmd, showAttendanceCmd} {
		c.Flags().Int64("class", 0, "Class id")
		c.MarkFlagRequired("class")
		showCmd.AddCommand(c)
	}
	showWallCmd.Flags().Int("pages", 1, "Number of pages to load")
}
