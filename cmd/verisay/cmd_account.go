package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"verisay/go-client/internal/composition/client"
	"verisay/go-client/pkg/models"
)

type sessionView struct {
	UserID      int64     `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

func viewOf(s models.Session) sessionView {
	return sessionView{UserID: s.UserID, Email: s.Email, DisplayName: s.DisplayName, ExpiresAt: s.ExpiresAt}
}

func newSignupCmd(c *cli) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.promptMissing(&username, "Username: ", false); err != nil {
				return err
			}
			if err := c.promptMissing(&email, "Email: ", false); err != nil {
				return err
			}
			if err := c.promptMissing(&password, "Password: ", true); err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(app *client.App) error {
				session, err := app.Accounts.Signup(cmd.Context(), username, email, password)
				if err != nil {
					return err
				}
				return c.printSession("Welcome, "+username, session)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.promptMissing(&email, "Email: ", false); err != nil {
				return err
			}
			if err := c.promptMissing(&password, "Password: ", true); err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(app *client.App) error {
				session, err := app.Accounts.Login(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				name := session.DisplayName
				if name == "" {
					name = session.Email
				}
				return c.printSession("Signed in as "+name, session)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *client.App) error {
				if err := app.Accounts.Logout(); err != nil {
					return err
				}
				c.printf("Signed out\n")
				return nil
			})
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *client.App) error {
				session, err := app.Session()
				if err != nil {
					return err
				}
				return c.printSession(session.Email, session)
			})
		},
	}
}

func (c *cli) printSession(headline string, session models.Session) error {
	if c.jsonOut {
		return c.printJSON(viewOf(session))
	}
	c.printf("%s (user %d)\n", headline, session.UserID)
	return nil
}

// promptMissing asks for a value that was not given as a flag.
func (c *cli) promptMissing(dst *string, prompt string, secret bool) error {
	if strings.TrimSpace(*dst) != "" {
		return nil
	}
	read := c.readLine
	if secret {
		read = c.readSecret
	}
	v, err := read(prompt)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
