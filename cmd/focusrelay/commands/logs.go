package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show log file locations",
}

var logsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print today's log file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		configMgr, err := openConfig()
		if err != nil {
			return err
		}
		dir := configMgr.Get().LogDir
		if dir == "" {
			if dir, err = logger.DefaultDir(); err != nil {
				return err
			}
		}
		fmt.Println(filepath.Join(dir, logger.FileName(time.Now())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsPathCmd)
}
