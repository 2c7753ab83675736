package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newVoicesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Manage saved voices",
	}

	cmd.AddCommand(
		newVoicesListCmd(opts),
		newVoicesTableCmd(opts),
		newVoicesSaveCmd(opts),
		newVoicesDeleteCmd(opts),
		newVoicesCheckCmd(opts),
	)

	return cmd
}

func newVoicesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved voice names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			names, err := a.manager.ListVoiceNames()
			if err != nil {
				return err
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}

func newVoicesTableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Show saved voices with a transcript preview",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			table, err := a.manager.VoicesTable()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), table)

			return nil
		},
	}
}

func newVoicesSaveCmd(opts *rootOptions) *cobra.Command {
	var audioPath, transcript string

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save or overwrite a voice from a reference clip",
		Long: "Save or overwrite a voice from a reference clip. Without --transcript the clip " +
			"is transcribed automatically.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.manager.SaveVoice(cmd.Context(), args[0], audioPath, transcript)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Status)

			return nil
		},
	}

	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "Reference clip to store")
	cmd.Flags().StringVarP(&transcript, "transcript", "t", "", "What is said in the clip")
	_ = cmd.MarkFlagRequired("audio")

	return cmd
}

func newVoicesDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a voice and its reference clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.manager.DeleteVoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Status)

			return nil
		},
	}
}

func newVoicesCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report voices whose reference clip is missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			dangling, err := a.manager.CheckIntegrity()
			if err != nil {
				return err
			}

			if len(dangling) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All voices have their reference clip.")

				return nil
			}

			return fmt.Errorf("missing reference clips for: %s", strings.Join(dangling, ", "))
		},
	}
}
