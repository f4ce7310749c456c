package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sessionlake/internal/core"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
)

func newInitCmd(rt *state) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "init <user> <session>",
		Short: "Bind sources into a session",
		Long: `init reads an initialization request from a JSON file and binds every
source into the session. The file holds either a full request object
({"sources": [...], "mappings": {...}}) or a bare array of sources.
Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readInitRequest(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.InitSession(cmd.Context(), args[0], args[1], req)
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string { return renderInit(res) })
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Request file (JSON), or - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readInitRequest(stdin io.Reader, file string) (core.InitRequest, error) {
	var (
		raw []byte
		err error
	)
	if file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return core.InitRequest{}, apperr.Wrap(apperr.Configuration, "read request file", err)
	}

	var req core.InitRequest
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &req.Sources)
	} else {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return core.InitRequest{}, apperr.Wrap(apperr.Configuration, "parse request file", err)
	}
	return req, nil
}

func newQueryCmd(rt *state) *cobra.Command {
	var rowCap int
	cmd := &cobra.Command{
		Use:   "query <user> <session> <sql>",
		Short: "Run one SQL statement against a session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ExecuteSQL(cmd.Context(), args[0], args[1], args[2], rowCap)
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string { return renderSQL(res) })
		},
	}
	cmd.Flags().IntVar(&rowCap, "cap", 0, "Maximum rows returned (0 uses the server default)")
	return cmd
}

func newAnalyzeCmd(rt *state) *cobra.Command {
	var req core.AnalysisRequest
	cmd := &cobra.Command{
		Use:   "analyze <user> <session>",
		Short: "Profile views or an artifact file",
		Long: `analyze reports row counts, null counts and numeric statistics. With no
flags every view in the session is analyzed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.QuickAnalysis(cmd.Context(), args[0], args[1], req)
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string { return renderAnalysis(res) })
		},
	}
	cmd.Flags().StringSliceVar(&req.Views, "view", nil, "View to analyze (repeatable)")
	cmd.Flags().StringVar(&req.File, "file", "", "Artifact file inside the session to analyze")
	cmd.MarkFlagsMutuallyExclusive("view", "file")
	return cmd
}

func newViewsCmd(rt *state) *cobra.Command {
	var counts bool
	cmd := &cobra.Command{
		Use:   "views <user> <session>",
		Short: "List views with their columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ListViews(cmd.Context(), args[0], args[1], counts)
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string { return renderViews(res) })
		},
	}
	cmd.Flags().BoolVar(&counts, "counts", true, "Include row counts")
	return cmd
}

func newFilesCmd(rt *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files <user> <session>",
		Short: "List artifact files in a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ListFiles(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string { return renderFiles(res) })
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <user> <session> <name>",
		Short: "Delete one artifact file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.DeleteFile(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string {
				return pterm.Success.Sprintf("deleted %s\n", res.Deleted)
			})
		},
	})
	return cmd
}

func newResetCmd(rt *state) *cobra.Command {
	var (
		req core.ResetRequest
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete session data",
		Long: `reset wipes session directories. --scope all removes every session,
--scope user removes one user's sessions and --scope session removes one
session. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset of scope %q needs --yes", req.Scope)
			}
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Reset(cmd.Context(), req)
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string {
				return pterm.Success.Sprintf("removed %d entr(ies)\n", res.DeletedCount)
			})
		},
	}
	cmd.Flags().StringVar(&req.Scope, "scope", "", "all, user or session")
	cmd.Flags().StringVar(&req.UserID, "user", "", "User id for user and session scopes")
	cmd.Flags().StringVar(&req.SessionID, "session", "", "Session id for session scope")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newScriptCmd(rt *state) *cobra.Command {
	var (
		file    string
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "script <user> <session>",
		Short: "Run a script inside the session directory",
		Long: `script runs a caller script with the configured interpreter, using the
session directory as its working directory. The script is read from
--file, or from standard input when --file is "-" or omitted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src []byte
				err error
			)
			if file == "" || file == "-" {
				src, err = io.ReadAll(cmd.InOrStdin())
			} else {
				src, err = os.ReadFile(file)
			}
			if err != nil {
				return apperr.Wrap(apperr.Configuration, "read script", err)
			}
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.RunScript(cmd.Context(), args[0], args[1], core.ScriptRequest{
				Script:         string(src),
				TimeoutSeconds: timeout,
			})
			if err != nil {
				return err
			}
			return rt.emit(cmd.OutOrStdout(), res, func() string { return renderScript(res) })
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Script file, or - for stdin")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Timeout in seconds (0 uses the server default)")
	return cmd
}

// describe renders a command error for the terminal, including the
// user-facing guidance when one exists.
func describe(err error) string {
	msg := core.MapError(err)
	if msg.Code == "ERR000" {
		return pterm.Error.Sprintln(err.Error())
	}
	return pterm.Error.Sprintf("%s\n  %s (%s)\n", err.Error(), msg.Action, msg.Code)
}
