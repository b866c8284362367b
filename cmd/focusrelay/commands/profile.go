package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/config"
	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage target profiles",
	Long: `Profiles remember a target window (by title, with optional handle and pid
hints) and the audio device its sound should be routed to.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE:  runProfileList,
}

var profileSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Create or update a profile",
	Example: `  # Save a profile for a window titled "Player One"
  focusrelay profile save game --title "Player One" --device alsa_output.hdmi

  # Update an existing profile by id
  focusrelay profile save game --id 6f1c... --title "Player Two"`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileSave,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete ID|NAME",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var profileApplyCmd = &cobra.Command{
	Use:   "apply ID|NAME",
	Short: "Start mirroring a profile on the running server",
	Long: `Ask the running FocusRelay server to resolve the profile's window, start a
mirroring session on it and route its audio.`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileApply,
}

var (
	profileID     string
	profileTitle  string
	profileDevice string
	profileHwnd   string
	profilePID    int
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileSaveCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileApplyCmd)

	profileSaveCmd.Flags().StringVar(&profileID, "id", "", "id of the profile to update")
	profileSaveCmd.Flags().StringVarP(&profileTitle, "title", "t", "", "window title fragment")
	profileSaveCmd.Flags().StringVarP(&profileDevice, "device", "d", "", "audio output device id")
	profileSaveCmd.Flags().StringVar(&profileHwnd, "hwnd", "", "window handle hint")
	profileSaveCmd.Flags().IntVar(&profilePID, "pid", 0, "process id hint")
	profileSaveCmd.MarkFlagRequired("title")
}

func runProfileList(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	active := configMgr.Get().ActiveProfileID

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tTITLE\tDEVICE\tACTIVE")
	fmt.Fprintln(w, "--\t----\t-----\t------\t------")
	for _, p := range configMgr.ListProfiles() {
		mark := ""
		if p.ID == active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.WindowTitle, p.AudioDeviceID, mark)
	}
	return nil
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}

	p := config.Profile{
		ID:            profileID,
		Name:          args[0],
		WindowTitle:   profileTitle,
		AudioDeviceID: profileDevice,
		PidHint:       profilePID,
	}
	if profileHwnd != "" {
		h, err := protocol.ParseWindowHandle(profileHwnd)
		if err != nil {
			return err
		}
		p.HwndHint = uint32(h)
	}

	saved, err := configMgr.SaveProfile(p)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Saved profile %s (%s)\n", saved.Name, saved.ID)
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	p, err := configMgr.FindProfile(args[0])
	if err != nil {
		return err
	}
	if err := configMgr.DeleteProfile(p.ID); err != nil {
		return err
	}
	fmt.Printf("✅ Deleted profile %s\n", p.Name)
	return nil
}

func runProfileApply(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	p, err := configMgr.FindProfile(args[0])
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("http://localhost:%d/api/profiles/%s/apply", cfg.ServerPort, url.PathEscape(p.ID))
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(endpoint, "application/json", nil)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("apply %s: %s", p.Name, apiErr.Error)
		}
		return fmt.Errorf("apply %s: %s", p.Name, strings.TrimSpace(string(body)))
	}
	fmt.Printf("✅ Mirroring %s\n", p.Name)
	return nil
}
