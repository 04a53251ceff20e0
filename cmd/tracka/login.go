package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/auth"
	"github.com/michaelomichael/tracka/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "session",
	Short:   "Log in as a user",
	Long: `Write a signed token for the user to the token file (auth.token_file).

Every command started afterwards acts as that user, and running 'tracka watch'
or 'tracka dashboard' sessions switch to the new user's data immediately.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user := userFlag
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if user == "" {
			if !ui.IsTerminal(os.Stdin) {
				return fmt.Errorf("no user given: pass --user")
			}
			err := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("User id").
						Value(&user).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return fmt.Errorf("user id is required")
							}
							return nil
						}),
					huh.NewInput().
						Title("Email (optional)").
						Value(&email),
				),
			).WithShowHelp(false).Run()
			if err != nil {
				return err
			}
			user = strings.TrimSpace(user)
		}

		key, err := secret()
		if err != nil {
			return err
		}
		token, err := auth.MintToken(key, user, email, ttl)
		if err != nil {
			return err
		}
		if err := auth.WriteToken(cfg.Auth.TokenFile, token); err != nil {
			return err
		}
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), ui.RenderBold(user))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "session",
	Short:   "Log out",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.RemoveToken(cfg.Auth.TokenFile); err != nil {
			return err
		}
		fmt.Printf("%s Logged out\n", ui.RenderPass("✓"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "session",
	Short:   "Show the logged-in user",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secret()
		if err != nil {
			return err
		}
		u, err := auth.ReadToken(cfg.Auth.TokenFile, key)
		if err != nil {
			return errNotLoggedIn
		}
		if jsonOutput {
			return printJSON(u)
		}
		if u.Email != "" {
			fmt.Printf("%s <%s>\n", u.ID, u.Email)
		} else {
			fmt.Println(u.ID)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "email recorded in the token")
	loginCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime (0 for no expiry)")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
