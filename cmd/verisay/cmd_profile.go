package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"verisay/go-client/internal/composition/client"
	"verisay/go-client/pkg/models"
)

func newProfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit the account profile",
	}
	cmd.AddCommand(newProfileShowCmd(c), newProfileEditCmd(c))
	return cmd
}

func newProfileShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *client.App) error {
				session, err := app.Session()
				if err != nil {
					return err
				}
				profile, err := app.Profiles.Load(cmd.Context(), session)
				if err != nil {
					return err
				}
				return c.printProfile(profile)
			})
		},
	}
}

func newProfileEditCmd(c *cli) *cobra.Command {
	var name, avatar string
	var useCamera bool
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change the display name or avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *client.App) error {
				return c.editProfile(cmd.Context(), app, name, avatar, useCamera)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&avatar, "avatar", "", "image file to use as avatar")
	cmd.Flags().BoolVar(&useCamera, "camera", false, "take the avatar with the rear camera")
	return cmd
}

func (c *cli) editProfile(ctx context.Context, app *client.App, name, avatar string, useCamera bool) error {
	session, err := app.Session()
	if err != nil {
		return err
	}
	current, err := app.Profiles.Load(ctx, session)
	if err != nil {
		return err
	}
	edit := current
	if strings.TrimSpace(name) != "" {
		edit.DisplayName = name
	}
	switch {
	case useCamera:
		opts := app.CaptureDefaults(models.CaptureKindImage)
		opts.Camera = models.CameraRear
		opts.Source = avatar
		shot, err := app.Capture.Capture(ctx, models.CaptureKindImage, opts)
		if err != nil {
			return err
		}
		defer app.Capture.Discard(&shot)
		edit.AvatarHandle = shot.Handle
	case strings.TrimSpace(avatar) != "":
		edit.AvatarHandle = avatar
	}

	_, saved, err := app.Profiles.Save(ctx, session, edit)
	if err != nil {
		return err
	}
	return c.printProfile(saved)
}

func (c *cli) printProfile(p models.UserProfile) error {
	if c.jsonOut {
		return c.printJSON(p)
	}
	c.printf("Name:   %s\n", p.DisplayName)
	c.printf("Email:  %s\n", p.Email)
	if p.AvatarHandle != "" {
		c.printf("Avatar: %s\n", p.AvatarHandle)
	}
	return nil
}
