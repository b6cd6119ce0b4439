package main

import (
	"fmt"
	"time"

	"smartblog/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParallelDeletes bounds concurrent delete requests.
const maxParallelDeletes = 4

// postsCmd groups post management commands
var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List, create, publish and delete posts",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts, most recently updated first",
	RunE:  listPosts,
}

var postsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an untitled draft",
	RunE:  newPost,
}

var postsPublishCmd = &cobra.Command{
	Use:   "publish [id]",
	Short: "Publish a post",
	Args:  cobra.ExactArgs(1),
	RunE:  publishPost,
}

var postsDeleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete one or more posts",
	Long: `Deletes posts by id. Posts that are already gone count as deleted.

Example:
  smartblog posts delete 3f2a... 9b1c...`,
	Args: cobra.MinimumNArgs(1),
	RunE: deletePosts,
}

func init() {
	postsCmd.AddCommand(postsListCmd)
	postsCmd.AddCommand(postsNewCmd)
	postsCmd.AddCommand(postsPublishCmd)
	postsCmd.AddCommand(postsDeleteCmd)
}

func listPosts(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := requireSession(a); err != nil {
		return err
	}

	posts, err := a.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to list posts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(posts) == 0 {
		fmt.Fprintln(out, "No posts yet. Create a draft with 'smartblog posts new'.")
		return nil
	}
	for _, p := range posts {
		fmt.Fprintf(out, "%-36s  %-9s  %s  %s\n", p.ID, p.Status, p.UpdatedAt.Local().Format(time.DateTime), postTitle(p))
	}
	return nil
}

func newPost(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := requireSession(a); err != nil {
		return err
	}

	post, err := a.NewDraft(ctx)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	logger.Info("Created post", zap.String("id", post.ID))
	fmt.Fprintln(cmd.OutOrStdout(), post.ID)
	return nil
}

func publishPost(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := requireSession(a); err != nil {
		return err
	}

	if !a.Select(args[0]) {
		return fmt.Errorf("post %s not found", args[0])
	}
	post, err := a.Publish(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", post.ID, post.Status)
	return nil
}

func deletePosts(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := requireSession(a); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelDeletes)
	for _, id := range args {
		id := id
		eg.Go(func() error {
			if err := a.Delete(egCtx, id); err != nil {
				logger.Warn("Delete failed", zap.String("id", id), zap.Error(err))
				return fmt.Errorf("delete %s: %w", id, err)
			}
			logger.Debug("Deleted post", zap.String("id", id))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d %s\n", len(args), plural(len(args), "post", "posts"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// postTitle returns a printable title.
func postTitle(p types.Post) string {
	if p.Title == "" {
		return "Untitled"
	}
	return p.Title
}
