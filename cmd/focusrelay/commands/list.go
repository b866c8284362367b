package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/FocusRelay/internal/window"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List top-level windows",
	Long: `List the titled top-level windows that can be mirrored.

This command connects to the X11 server and prints each window's handle,
owning process and geometry.`,
	Example: `  # List windows in table format (default)
  focusrelay list

  # List windows whose title contains "player"
  focusrelay list --title player

  # Show the main window of a process as JSON
  focusrelay list --pid 4242 --format json`,
	RunE: runList,
}

var (
	listFormat string
	listTitle  string
	listPID    int
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVarP(&listTitle, "title", "t", "", "only windows whose title contains this text")
	listCmd.Flags().IntVar(&listPID, "pid", 0, "only the main window of this process")
}

func runList(cmd *cobra.Command, args []string) error {
	resolver, err := openResolver()
	if err != nil {
		return err
	}
	defer resolver.Close()

	windows, err := resolver.ListTop()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if listTitle != "" {
		windows = window.FilterByTitle(windows, listTitle)
	}
	if listPID > 0 {
		w, ok := window.MainWindow(windows, listPID)
		if !ok {
			return fmt.Errorf("no titled window for pid %d", listPID)
		}
		windows = []window.WindowInfo{w}
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		return printWindowsTable(windows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printWindowsTable(windows []window.WindowInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "HWND\tPID\tPROCESS\tSIZE\tSTATE\tTITLE")
	fmt.Fprintln(w, "----\t---\t-------\t----\t-----\t-----")

	for _, win := range windows {
		state := ""
		switch {
		case win.Minimized:
			state = "minimized"
		case win.Focused:
			state = "focused"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%dx%d\t%s\t%s\n",
			win.Handle, win.PID, win.Process,
			win.Geometry.Width, win.Geometry.Height,
			state, win.Title)
	}

	return nil
}
