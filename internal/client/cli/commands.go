package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/eventhub/internal/buildinfo"
	"github.com/dmitrijs2005/eventhub/internal/client/client"
	"github.com/dmitrijs2005/eventhub/internal/client/session"
	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/spf13/cobra"
)

func (a *App) newRegisterCommand() *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if username == "" {
				if username, err = GetSimpleText(a.reader, "Enter username", a.out); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = GetSimpleText(a.reader, "Enter email", a.out); err != nil {
					return err
				}
			}
			password, err := GetPassword(a.reader, a.out)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			res, err := a.authService.Register(cmd.Context(), username, email, password)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Registered as %s (%s)\n", res.Username, res.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	return cmd
}

func (a *App) newLoginCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = GetSimpleText(a.reader, "Enter email", a.out); err != nil {
					return err
				}
			}
			password, err := GetPassword(a.reader, a.out)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			res, err := a.authService.Login(cmd.Context(), email, password)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", res.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	return cmd
}

func (a *App) newRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.authService.Refresh(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(a.out, "Access token refreshed")
			return nil
		},
	}
}

func (a *App) newProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.authService.Profile(cmd.Context())
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "id:       %s\nusername: %s\nemail:    %s\n", p.ID, p.Username, p.Email)
			if p.ProfileImage != "" {
				fmt.Fprintf(a.out, "image:    %s\n", p.ProfileImage)
			}
			return nil
		},
	}
}

func (a *App) newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the server and forget local tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authService.Logout(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.PrintBuildData(a.out)
		},
	}
}

// describe turns client errors into messages fit for a terminal.
func describe(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, session.ErrNoSession):
		return errors.New("not logged in, run `eventhub login`")
	case errors.Is(err, client.ErrUnavailable):
		return fmt.Errorf("cannot reach server: %w", err)
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return errors.New(apiErr.Message)
	default:
		return err
	}
}
