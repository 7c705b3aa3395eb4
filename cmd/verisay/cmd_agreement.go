package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"verisay/go-client/internal/composition/client"
	agreementusecase "verisay/go-client/internal/domains/agreement/usecase"
	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/ui/progress"
	"verisay/go-client/pkg/models"
)

var submitSteps = []progress.Step{
	{Key: agreementusecase.StepCreate, Label: "Creating agreement"},
	{Key: agreementusecase.StepAudio, Label: "Uploading voice recording"},
	{Key: agreementusecase.StepFaces, Label: "Uploading face photos"},
}

type captureSources struct {
	audio string
	face1 string
	face2 string
}

func newAgreementCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agreement",
		Short: "Create and list agreements",
	}
	cmd.AddCommand(newAgreementCreateCmd(c), newAgreementTypesCmd(c))
	return cmd
}

func newAgreementTypesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the agreement types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := models.AgreementTypes()
			if c.jsonOut {
				return c.printJSON(types)
			}
			for _, t := range types {
				c.printf("%-10s %s\n", t, t.Label())
			}
			return nil
		},
	}
}

func newAgreementCreateCmd(c *cli) *cobra.Command {
	var agreementType string
	var src captureSources
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record voice and face evidence and submit a new agreement",
		Long: `Captures one voice recording and two face photos, then submits them.

The agreement is created first; the recording and the photos are uploaded
against its id. With the file capture backend the --audio, --face1 and --face2
flags name the files to import.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.AgreementType(strings.ToLower(strings.TrimSpace(agreementType)))
			if !t.Valid() {
				return contracts.NewFlowError(contracts.KindIncompleteSubmission, "agreement.create",
					fmt.Errorf("unknown agreement type %q", agreementType))
			}
			return c.withApp(cmd.Context(), func(app *client.App) error {
				return c.createAgreement(cmd.Context(), app, t, src)
			})
		},
	}
	cmd.Flags().StringVar(&agreementType, "type", string(models.AgreementRental), "agreement type (see 'verisay agreement types')")
	cmd.Flags().StringVar(&src.audio, "audio", "", "voice recording to import (file backend)")
	cmd.Flags().StringVar(&src.face1, "face1", "", "first face photo to import (file backend)")
	cmd.Flags().StringVar(&src.face2, "face2", "", "second face photo to import (file backend)")
	return cmd
}

func (c *cli) createAgreement(ctx context.Context, app *client.App, agreementType models.AgreementType, src captureSources) error {
	session, err := app.Session()
	if err != nil {
		return err
	}

	var audio, face1, face2 models.CaptureResult
	defer app.Capture.Discard(&audio, &face1, &face2)

	audioOpts := app.CaptureDefaults(models.CaptureKindAudio)
	audioOpts.Source = src.audio
	if audio, err = app.Capture.Capture(ctx, models.CaptureKindAudio, audioOpts); err != nil {
		return err
	}
	faceOpts := app.CaptureDefaults(models.CaptureKindImage)
	faceOpts.Source = src.face1
	if face1, err = app.Capture.Capture(ctx, models.CaptureKindImage, faceOpts); err != nil {
		return err
	}
	faceOpts.Source = src.face2
	if face2, err = app.Capture.Capture(ctx, models.CaptureKindImage, faceOpts); err != nil {
		return err
	}

	draft := models.NewAgreementDraft(session.UserID, agreementType, time.Now())
	var result agreementusecase.SubmitResult
	title := "Submitting " + agreementType.Label()
	err = progress.Run(ctx, c.errOut, c.plain || c.jsonOut, title, submitSteps, func(obs contracts.SubmitObserver) error {
		var submitErr error
		result, submitErr = app.Agreements.SubmitWithObserver(ctx, obs, &draft, &audio, &face1, &face2)
		return submitErr
	})
	if err != nil {
		return err
	}

	if c.jsonOut {
		if err := c.printJSON(result); err != nil {
			return err
		}
	} else {
		c.printf("Agreement #%d created\n", result.Record.ID)
	}
	if result.Complete() {
		return nil
	}
	var failed []error
	for _, outcome := range result.Attachments {
		if !outcome.Uploaded {
			failed = append(failed, fmt.Errorf("%s: %s", outcome.Group, outcome.Error))
		}
	}
	return contracts.NewFlowError(contracts.KindAttachmentUploadFailed, "agreement.create", errors.Join(failed...))
}

func newHomeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show the greeting and the agreements created from this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *client.App) error {
				session, err := app.Session()
				if err != nil {
					return err
				}
				view, err := app.Feed.Home(cmd.Context(), session)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(view)
				}
				c.printHome(view)
				return nil
			})
		},
	}
}

func (c *cli) printHome(view agreementusecase.HomeView) {
	c.printf("Hello, %s\n", view.Greeting)
	if len(view.Entries) == 0 {
		c.printf("No agreements yet.\n")
		return
	}
	for _, entry := range view.Entries {
		flag := ""
		if entry.Incomplete() {
			flag = "  [attachments missing]"
		}
		c.printf("#%-5d %-20s %-12s %s%s\n",
			entry.Record.ID,
			entry.Record.Type.Label(),
			entry.Record.Status,
			entry.Record.CreatedAt.Local().Format("2006-01-02 15:04"),
			flag,
		)
	}
}
