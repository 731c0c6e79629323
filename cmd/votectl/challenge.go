// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livevote/client"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/liveness"
	"github.com/danielhkuo/livevote/models"
)

var (
	serverURL   string
	cameraInput string
	cameraFmt   string
	engineBin   string
	modelName   string
	identifier  string
	password    string
	voteFor     string
)

var challengeCmd = &cobra.Command{
	Use:         "challenge",
	Short:       "Run the liveness challenge on a camera, then log in with the captured face",
	Annotations: map[string]string{offline: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if password == "" {
			password = os.Getenv("VOTECTL_PASSWORD")
		}
		if identifier == "" || password == "" {
			return errors.New("--identifier and --password (or VOTECTL_PASSWORD) are required")
		}

		model, err := liveness.ParseModel(modelName)
		if err != nil {
			return err
		}
		detector, err := liveness.NewEngineDetector(model, engineBin)
		if err != nil {
			return fmt.Errorf("failed to start face engine: %w", err)
		}
		defer detector.Close()

		camera, err := liveness.OpenFFmpegCamera(cameraInput, cameraFmt)
		if err != nil {
			return err
		}

		runner := &liveness.Runner{
			Camera:   camera,
			Detector: detector,
			Clock:    clock.Real{},
		}
		capture, err := runChallenge(cmd, runner, func() (liveness.Camera, error) {
			cam, err := liveness.OpenFFmpegCamera(cameraInput, cameraFmt)
			if err != nil {
				return nil, err
			}
			return cam, nil
		})
		if err != nil {
			return err
		}
		if len(capture.Descriptor) == 0 {
			return errors.New("challenge passed but the engine returned no descriptor")
		}

		c := client.New(serverURL, nil, nil)
		profile, err := c.Login(ctx, identifier, password, capture.Descriptor)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Locked() && apiErr.MinutesRemaining != nil {
			return fmt.Errorf("%w (%d minutes remaining)", err, *apiErr.MinutesRemaining)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s (%s)\n", profile.Name, profile.VerificationStatus)

		if profile.VerificationStatus == models.StatusPending {
			res, err := c.VerifyFace(ctx, capture.Descriptor)
			if err != nil {
				return err
			}
			if !res.Verified {
				return fmt.Errorf("face did not match (distance %.3f)", res.Distance)
			}
			fmt.Fprintf(out, "Face verified (distance %.3f)\n", res.Distance)
		}

		if voteFor != "" {
			if err := c.CastVote(ctx, voteFor); err != nil {
				return err
			}
			fmt.Fprintln(out, "Vote recorded.")
		}
		return c.Logout(ctx)
	},
}

// runChallenge runs the challenge with a progress bar. After a timeout it
// offers a retry, which reopens the camera and resumes from position.
func runChallenge(cmd *cobra.Command, runner *liveness.Runner, reopen func() (liveness.Camera, error)) (liveness.Capture, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	for {
		bar := progressbar.NewOptions(int(liveness.ChallengeTimeout/liveness.PollInterval),
			progressbar.OptionSetDescription(prompt(liveness.StateLoading)),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
		)
		runner.OnState = func(s liveness.State) { bar.Describe(prompt(s)) }
		runner.OnObserve = func(liveness.State, float64, bool) { bar.Add(1) }

		capture, err := runner.Run(cmd.Context())
		bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
		if !errors.Is(err, liveness.ErrChallengeFailed) {
			return capture, err
		}

		if !confirm(in, cmd.OutOrStdout(), "Challenge timed out. Retry?") {
			return liveness.Capture{}, err
		}
		camera, err := reopen()
		if err != nil {
			return liveness.Capture{}, err
		}
		runner.Retry(camera)
	}
}

// prompt is the instruction shown for each challenge state
func prompt(s liveness.State) string {
	switch s {
	case liveness.StateLoading:
		return "Starting camera"
	case liveness.StatePosition:
		return "Center your face and hold still"
	case liveness.StateTilt:
		return "Tilt your head to one side"
	case liveness.StateStraighten:
		return "Straighten your head"
	case liveness.StateSuccess:
		return "Captured"
	default:
		return "Challenge failed"
	}
}

func init() {
	challengeCmd.Flags().StringVar(&serverURL, "server", "http://localhost:5000", "livevote API base URL")
	challengeCmd.Flags().StringVar(&cameraInput, "input", "/dev/video0", "Camera device or video file")
	challengeCmd.Flags().StringVar(&cameraFmt, "format", "v4l2", "ffmpeg input format (empty for files)")
	challengeCmd.Flags().StringVar(&engineBin, "engine", "face-engine", "Face engine executable")
	challengeCmd.Flags().StringVar(&modelName, "model", string(liveness.ModelTiny), "Detector model: tiny or ssd")
	challengeCmd.Flags().StringVar(&identifier, "identifier", "", "Email or student ID")
	challengeCmd.Flags().StringVar(&password, "password", "", "Password (prefer VOTECTL_PASSWORD env)")
	challengeCmd.Flags().StringVar(&voteFor, "vote", "", "Candidate ID to vote for after verification")
	rootCmd.AddCommand(challengeCmd)
}
