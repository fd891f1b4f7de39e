package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bsky-autoposter/internal/domain"
)

func postCmd() *cobra.Command {
	var (
		file string
		post domain.Post
		tags []string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Share a post now, ignoring whether it was shared before",
		Example: `  autoposter post --id 42 --title "Hello World" --link https://example.com/hello --tag news
  autoposter post --file post.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(b, &post); err != nil {
					return fmt.Errorf("decode %s: %w", file, err)
				}
			}
			for _, t := range tags {
				post.Tags = append(post.Tags, domain.Tag{Name: t})
			}
			if post.ID == 0 {
				return fmt.Errorf("--id is required")
			}
			if post.Status == "" {
				post.Status = domain.StatusPublish
			}

			uri, err := wire.Publisher.Publish(cmd.Context(), post)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file holding the post; flags add to it")
	cmd.Flags().Int64Var(&post.ID, "id", 0, "post id")
	cmd.Flags().StringVar(&post.Title, "title", "", "post title")
	cmd.Flags().StringVar(&post.Excerpt, "excerpt", "", "post excerpt")
	cmd.Flags().StringVar(&post.Link, "link", "", "post permalink")
	cmd.Flags().StringVar(&post.Slug, "slug", "", "post slug")
	cmd.Flags().StringVar(&post.ImageURL, "image", "", "featured image URL")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "post tag (repeatable)")
	return cmd
}
