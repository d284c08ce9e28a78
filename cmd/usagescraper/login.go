package main

import (
	"context"
	"fmt"

	"github.com/gridtools/usagescraper/internal/portal"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the portal and save cookies",
	Long: `Opens a browser window for you to login manually.
After successful login, cookies will be extracted and saved to the config
file so subsequent runs can reuse the session.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Portal.LoginURL == "" {
		return fmt.Errorf("portal login_url is not configured")
	}

	fmt.Println("Opening browser for portal login...")
	fmt.Println("Please log in manually in the browser window.")
	fmt.Println("Then press Enter here to save...")

	driver, err := portal.StartChrome(context.Background(), true)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer driver.Close()

	if err := driver.Navigate(cfg.Portal.LoginURL); err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}

	// Wait for user to press Enter
	fmt.Scanln()

	fmt.Println("Extracting cookies...")
	cookies, err := driver.Cookies()
	if err != nil {
		return fmt.Errorf("extracting cookies: %w", err)
	}

	if len(cookies) == 0 {
		return fmt.Errorf("no cookies found - make sure you're logged in")
	}

	cfg.Cookies = cookies
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Saved %d cookies\n", len(cookies))
	return nil
}
