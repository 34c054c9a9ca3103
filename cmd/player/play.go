package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-player/internal/backend"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/fingerprint"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/player"
	"github.com/stemsi/exstem-player/internal/session"
	"golang.org/x/term"
)

func newPlayCmd(opts *options, cfg *config.Config) *cobra.Command {
	var (
		quizID      string
		identity    model.Identity
		sectionSize int
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take a quiz in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, opts, cfg, quizID, identity, sectionSize)
		},
	}

	f := cmd.Flags()
	f.StringVar(&quizID, "quiz", "", "quiz id")
	f.StringVar(&identity.ParticipantName, "name", "", "participant name")
	f.StringVar(&identity.Email, "email", "", "participant email")
	f.StringVar(&identity.StudentClass, "class", "", "class")
	f.StringVar(&identity.Division, "division", "", "division")
	f.StringVar(&identity.RollNo, "roll", "", "roll number")
	f.IntVar(&sectionSize, "section-size", cfg.SectionSize, "questions per section when the quiz does not set one")
	for _, name := range []string{"quiz", "name", "email", "class", "division", "roll"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runPlay(cmd *cobra.Command, opts *options, cfg *config.Config, quizID string, identity model.Identity, sectionSize int) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("play needs an interactive terminal")
	}

	log, closeLog, err := opts.openLog()
	if err != nil {
		return err
	}
	defer closeLog()

	policy, err := config.LoadPolicy(opts.policyFile)
	if err != nil {
		return err
	}

	device, err := opts.openStore()
	if err != nil {
		return err
	}
	defer device.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, state)

	shell := player.NewShell(os.Stdin, os.Stdout, log)
	ctrl := session.New(session.Deps{
		Backend:     backend.NewClient(opts.backendURL, opts.apiKey, cfg.BackendTimeout, nil),
		Store:       device,
		Fingerprint: fingerprint.Compute(fingerprint.Local()),
		Fullscreen:  shell,
		Confirmer:   shell,
		Notifier:    shell,
		Policy:      &policy,
		SectionSize: sectionSize,
		Log:         log,
	})
	defer ctrl.Close()

	runErr := shell.Run(ctx, ctrl, identity, quizID)
	ctrl.Close()
	shell.Exit()
	term.Restore(fd, state)

	switch {
	case runErr == nil:
		st := ctrl.State()
		fmt.Printf("Session finished: %s\n", st)
		if st.Kind == session.Terminated {
			return fmt.Errorf("attempt terminated: %s", st.Reason)
		}
		return nil
	case errors.Is(runErr, player.ErrRulesDeclined):
		fmt.Println("Rules not accepted; nothing was started.")
		return nil
	case errors.Is(runErr, player.ErrQuit):
		fmt.Println("Attempt abandoned.")
		return nil
	}

	var se *session.Error
	if errors.As(runErr, &se) {
		for field, msg := range se.Fields {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
		}
		return errors.New(se.Message)
	}
	return runErr
}
