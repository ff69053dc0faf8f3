package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/panyam/questauth"
)

func newAuthURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url",
		Short: "Print the authorization URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, done, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer done()

			fmt.Fprintln(cmd.OutOrStdout(), sess.AuthorizationURL())
			return nil
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <redirect-url>",
		Short: "Store the credential from the URL the browser was redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, done, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := sess.Authorize(cmd.Context(), args[0]); err != nil {
				return err
			}
			printStatus(cmd, sess)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential without its tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, done, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer done()

			printStatus(cmd, sess)
			return nil
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, done, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := sess.Refresh(cmd.Context()); err != nil {
				return err
			}
			printStatus(cmd, sess)
			return nil
		},
	}
}

func newRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Revoke the credential and remove it from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, done, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer done()

			// The credential is forgotten even when the server call fails.
			err = sess.Revoke(cmd.Context())
			printStatus(cmd, sess)
			return err
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a path on the API server and print the body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, done, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer done()

			body, err := sess.Execute(cmd.Context(), questauth.Get(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			out.Write(body)
			if len(body) > 0 && body[len(body)-1] != '\n' {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, sess *questauth.Session) {
	out := cmd.OutOrStdout()
	cred := sess.Credential(cmd.Context())
	if cred == nil {
		fmt.Fprintln(out, "not authorized")
		return
	}

	state := "valid"
	if cred.IsExpired() {
		state = "expired"
	}
	fmt.Fprintln(out, "authorized")
	fmt.Fprintf(out, "  api server: %s\n", cred.APIServer)
	fmt.Fprintf(out, "  expires:    %s (%s)\n", cred.Expiry.Local().Format(time.RFC3339), state)
	fmt.Fprintf(out, "  refreshable: %t\n", cred.HasRefreshToken())
}
