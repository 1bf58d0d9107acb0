package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/embedcore/ai/core/retrieval"
	"github.com/hrygo/embedcore/ai/pipeline"
	"github.com/hrygo/embedcore/internal/profile"
	"github.com/hrygo/embedcore/internal/result"
	"github.com/hrygo/embedcore/internal/version"
	"github.com/hrygo/embedcore/server"
	apiv1 "github.com/hrygo/embedcore/server/router/api/v1"
	"github.com/hrygo/embedcore/store"
)

var (
	embedCmd = &cobra.Command{
		Use:   "embed TEXT",
		Short: "Embed, obfuscate and store a message for a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			msg := pipeline.Message{Text: strings.Join(args, " ")}
			msg.UserID, _ = flags.GetString("user")
			msg.SessionID, _ = flags.GetString("session")
			msg.Platform, _ = flags.GetString("platform")
			msg.ItemType, _ = flags.GetString("item-type")
			msg.ItemID, _ = flags.GetString("item-id")

			return withComponents(cmd.Context(), func(_ *profile.Profile, _ *store.Store, c *server.Components) error {
				res := c.Pipeline.ProcessMessage(cmd.Context(), msg)
				// The vectors are long; the summary is what a terminal user needs.
				res.Embedding, res.ObfuscatedEmbedding = nil, nil
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Status == result.StatusFailed {
					return errors.New(res.Reason)
				}
				return nil
			})
		},
	}

	searchCmd = &cobra.Command{
		Use:   "search TEXT",
		Short: "Find stored items similar to TEXT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topK, _ := cmd.Flags().GetInt("top-k")
			return withComponents(cmd.Context(), func(_ *profile.Profile, _ *store.Store, c *server.Components) error {
				matches, err := c.Facade.SearchText(cmd.Context(), strings.Join(args, " "), topK)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), matches)
			})
		},
	}

	rotateKeyCmd = &cobra.Command{
		Use:   "rotate-key",
		Short: "Replace a user's obfuscation key; stored records are not re-obfuscated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withComponents(cmd.Context(), func(_ *profile.Profile, _ *store.Store, c *server.Components) error {
				if _, err := c.Vault.RotateKey(cmd.Context(), userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rotated key for user %s\n", userID)
				return nil
			})
		},
	}

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Copy stored embeddings into the configured vector index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vacuum, _ := cmd.Flags().GetBool("vacuum")
			return withComponents(cmd.Context(), func(_ *profile.Profile, st *store.Store, c *server.Components) error {
				return reindex(cmd.Context(), cmd.OutOrStdout(), st, c.Facade, vacuum)
			})
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			p, err := loadProfile()
			if err != nil {
				return err
			}
			if !p.IsAPIEnabled() {
				return errors.New("EMBEDCORE_JWT_SECRET is not set")
			}
			token, err := apiv1.GenerateAccessToken(userID, p.AccessTokenExpiry, []byte(p.JWTSecret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.StringFull())
		},
	}
)

func init() {
	embedCmd.Flags().String("user", "", "user id")
	embedCmd.Flags().String("session", "cli", "session id")
	embedCmd.Flags().String("platform", "cli", "source platform")
	embedCmd.Flags().String("item-type", pipeline.DefaultItemType, "item type")
	embedCmd.Flags().String("item-id", "", "item id (generated when empty)")
	_ = embedCmd.MarkFlagRequired("user")

	searchCmd.Flags().Int("top-k", retrieval.DefaultTopK, "number of results")

	rotateKeyCmd.Flags().String("user", "", "user id")
	_ = rotateKeyCmd.MarkFlagRequired("user")

	reindexCmd.Flags().Bool("vacuum", false, "reclaim database space afterwards")

	tokenCmd.Flags().String("user", "", "user id (token subject)")
	_ = tokenCmd.MarkFlagRequired("user")
}

func reindex(ctx context.Context, w io.Writer, st *store.Store, facade *retrieval.Facade, vacuum bool) error {
	n, err := facade.Reindex(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Indexed %d embeddings\n", n)

	if vacuum {
		if err := st.Vacuum(ctx); err != nil {
			return errors.Wrap(err, "failed to vacuum database")
		}
		fmt.Fprintln(w, "Vacuumed database")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
