// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livevote/accounts"
	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/db"
	"github.com/danielhkuo/livevote/handlers"
	"github.com/danielhkuo/livevote/ledger"
	"github.com/danielhkuo/livevote/models"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string

	verifyStatus string
	assumeYes    bool

	electionTitle string
	electionDesc  string
	electionStart string
	electionEnd   string

	candidateName      string
	candidateParty     string
	candidateManifesto string
	candidateImage     string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminPassword == "" {
			adminPassword = os.Getenv("ADMIN_PASSWORD")
		}
		v, err := seedAdmin(cmd.Context(), accounts.New(conn, dbType), adminName, adminEmail, adminPassword, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", v.Email, v.ID)
		return nil
	},
}

var verifyVoterCmd = &cobra.Command{
	Use:   "verify-voter <voter-id>",
	Short: "Verify or reject a pending voter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := accounts.New(conn, dbType).SetVerificationStatus(cmd.Context(), args[0], verifyStatus, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", v.Email, v.VerificationStatus)
		return nil
	},
}

var resetElectionCmd = &cobra.Command{
	Use:   "reset-election",
	Short: "Zero every tally and clear every voter's ballot",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !assumeYes && !confirm(bufio.NewReader(cmd.InOrStdin()), out, "Reset all tallies and ballots?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		stats, err := ledger.New(conn, dbType, clock.Real{}).ResetElection(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Reset %d candidates and %d voters. Results unpublished.\n", stats.CandidatesReset, stats.VotersReset)
		return nil
	},
}

var emergencyStopCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "Close voting immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !assumeYes && !confirm(bufio.NewReader(cmd.InOrStdin()), out, "Stop the election now?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		end, err := ledger.New(conn, dbType, clock.Real{}).EmergencyStop(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Election closed at %s\n", end.Format(time.RFC3339))
		return nil
	},
}

var setElectionCmd = &cobra.Command{
	Use:   "set-election",
	Short: "Create or replace the election window",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := time.Parse(time.RFC3339, electionStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, electionEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		e := models.Election{Title: electionTitle, Description: electionDesc, StartDate: start.UTC(), EndDate: end.UTC()}
		if err := ledger.New(conn, dbType, clock.Real{}).SetElection(cmd.Context(), e); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%q opens %s and closes %s\n", e.Title,
			humanize.Time(e.StartDate), humanize.Time(e.EndDate))
		return nil
	},
}

var addCandidateCmd = &cobra.Command{
	Use:   "add-candidate",
	Short: "Put a candidate on the ballot",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ledger.New(conn, dbType, clock.Real{}).AddCandidate(cmd.Context(), models.Candidate{
			Name:      candidateName,
			Party:     candidateParty,
			Manifesto: candidateManifesto,
			ImageURL:  candidateImage,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as %s\n", c.Name, c.Party, c.ID)
		return nil
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Drop every table and recreate an empty schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !assumeYes && !confirm(bufio.NewReader(cmd.InOrStdin()), out, "DROP all voters, candidates and the election?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		if err := db.DropSchema(conn); err != nil {
			return err
		}
		if err := db.CreateSchema(conn); err != nil {
			return err
		}
		fmt.Fprintln(out, "Database wiped.")
		return nil
	},
}

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Print the live tally, published or not",
	RunE: func(cmd *cobra.Command, args []string) error {
		results, total, err := ledger.New(conn, dbType, clock.Real{}).Tally(cmd.Context())
		if err != nil {
			return err
		}
		return printTally(cmd.OutOrStdout(), results, total)
	},
}

func init() {
	seedAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "Display name")
	seedAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Login email")
	seedAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Password (prefer ADMIN_PASSWORD env)")
	seedAdminCmd.MarkFlagRequired("email")

	verifyVoterCmd.Flags().StringVar(&verifyStatus, "status", models.StatusVerified, "verified or rejected")

	resetElectionCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	emergencyStopCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	wipeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")

	setElectionCmd.Flags().StringVar(&electionTitle, "title", "", "Election title")
	setElectionCmd.Flags().StringVar(&electionDesc, "description", "", "Election description")
	setElectionCmd.Flags().StringVar(&electionStart, "start", "", "Opening time (RFC 3339)")
	setElectionCmd.Flags().StringVar(&electionEnd, "end", "", "Closing time (RFC 3339)")
	setElectionCmd.MarkFlagRequired("title")
	setElectionCmd.MarkFlagRequired("start")
	setElectionCmd.MarkFlagRequired("end")

	addCandidateCmd.Flags().StringVar(&candidateName, "name", "", "Candidate name")
	addCandidateCmd.Flags().StringVar(&candidateParty, "party", "", "Party or slate")
	addCandidateCmd.Flags().StringVar(&candidateManifesto, "manifesto", "", "Short manifesto")
	addCandidateCmd.Flags().StringVar(&candidateImage, "image", "", "Image URL")

	rootCmd.AddCommand(seedAdminCmd, verifyVoterCmd, resetElectionCmd, emergencyStopCmd,
		setElectionCmd, addCandidateCmd, tallyCmd, wipeCmd)
}

// seedAdmin creates a verified admin account with a bcrypt-hashed password
func seedAdmin(ctx context.Context, store *accounts.Store, name, email, password string, now time.Time) (models.Voter, error) {
	email = accounts.NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return models.Voter{}, errors.New("a valid --email is required")
	}
	if len(password) < handlers.MinPasswordLength {
		return models.Voter{}, fmt.Errorf("password must be at least %d characters", handlers.MinPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.Voter{}, err
	}

	v := models.Voter{
		ID:                 auth.NewRecordID(),
		Name:               name,
		Email:              email,
		PasswordHash:       hash,
		Role:               models.RoleAdmin,
		VerificationStatus: models.StatusVerified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := store.Create(ctx, v); err != nil {
		return models.Voter{}, err
	}
	return v, nil
}

// printTally writes one row per candidate, highest first, with its share
func printTally(w io.Writer, results []models.CandidateResult, total int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CANDIDATE\tPARTY\tVOTES\tSHARE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%%\n", r.Name, r.Party, humanize.Comma(int64(r.Votes)), voteShare(r.Votes, total))
	}
	fmt.Fprintf(tw, "TOTAL\t\t%s\t\n", humanize.Comma(int64(total)))
	return tw.Flush()
}

// voteShare is votes/total as a percentage rounded half up to one place
func voteShare(votes, total int) string {
	if total == 0 {
		return "0.0"
	}
	return decimal.NewFromInt(int64(votes)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 1).
		StringFixed(1)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
