package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/fingerprint"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/scoring"
	"github.com/stemsi/exstem-player/internal/store"
)

// newEncodeKeyCmd prints the obfuscated form of a plain option key, for
// authoring quizzes that carry encoded answers.
func newEncodeKeyCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "encode-key <opt1|opt2|opt3|opt4>",
		Short: "Encode a correct-option key the way quiz backends ship it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.IsOptionKey(args[0]) {
				return fmt.Errorf("%q is not one of opt1..opt4", args[0])
			}
			codec, err := scoring.NewCodec(secret)
			if err != nil {
				return err
			}
			token, err := codec.Encode(model.OptionKey(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", scoring.DefaultSecret, "obfuscation secret")
	return cmd
}

// newUnlockCmd clears this device's replay lock so support staff can allow
// a retake.
func newUnlockCmd(opts *options) *cobra.Command {
	var (
		quizID string
		lease  bool
	)
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Clear this device's submitted-lock for a quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := opts.openStore()
			if err != nil {
				return err
			}
			defer device.Close()

			ctx := commandContext(cmd)
			fp := fingerprint.Compute(fingerprint.Local())
			if err := store.ClearReplayLock(ctx, device, quizID, fp); err != nil {
				return err
			}
			if lease {
				if err := device.Delete(ctx, config.CacheKey.AccessLeaseKey(quizID, fp)); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlocked quiz %s on this device.\n", quizID)
			return nil
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	cmd.Flags().BoolVar(&lease, "lease", false, "also reset the access window")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}
