package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/adapters"
	"github.com/brettbedarf/webmirror/server"
	"github.com/brettbedarf/webmirror/view"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dirStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Faint(true)
	starStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [path]",
		Short: "Reconcile a directory with the remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openMirror(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			n, err := m.Resolve(ctx, argOr(args, "/"), true)
			if err != nil {
				return err
			}
			res, err := m.Sync(ctx, n.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s listed=%d created=%d replaced=%d unchanged=%d pruned=%d\n",
				headerStyle.Render(displayPath(n)), res.Listed, res.Created, res.Replaced, res.Unchanged, res.Pruned)
			for _, f := range res.Failed {
				fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("  %s: %v", f.Name, f.Err)))
			}
			return nil
		},
	}
}

func newLsCmd() *cobra.Command {
	var search string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory grouped by initial",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openMirror(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			n, err := m.Resolve(ctx, argOr(args, "/"), true)
			if err != nil {
				return err
			}
			if refresh {
				if _, err := m.Sync(ctx, n.ID); err != nil {
					return err
				}
			}
			sections, err := m.Sections(n.ID, search)
			if err != nil {
				return err
			}
			printSections(cmd.OutOrStdout(), sections)
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only list names containing this text")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "sync the directory before listing")
	return cmd
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print the content of a leaf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openMirror(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			n, err := m.Resolve(ctx, args[0], true)
			if err != nil {
				return err
			}
			data, err := m.LoadContent(ctx, n.ID)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newFavCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fav <path>",
		Short: "Toggle the favorite state of a text or image leaf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openMirror(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			n, err := m.Resolve(ctx, args[0], true)
			if err != nil {
				return err
			}
			on, err := m.ToggleFavorite(ctx, n.ID)
			if err != nil {
				return err
			}
			state := "unpinned"
			if on {
				state = starStyle.Render("★ pinned")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", displayPath(n), state)
			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory on the remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := openMirror(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			parent, name, err := resolveParent(cmd, m, args[0])
			if err != nil {
				return err
			}
			n, err := m.CreateDirectory(ctx, parent.ID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dirStyle.Render(n.Path+"/"))
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	var mimetype string

	cmd := &cobra.Command{
		Use:   "put <local-file> <remote-path>",
		Short: "Upload a local file to the remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := openMirror(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			parent, name, err := resolveParent(cmd, m, args[1])
			if err != nil {
				return err
			}
			if mimetype == "" {
				mimetype = adapters.ContentTypeFor(webmirror.KindUnknown, name)
			}
			n, err := m.CreateItem(ctx, parent.ID, name, webmirror.KindFromMimetype(mimetype), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", n.Path, humanize.Bytes(uint64(len(data))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mimetype, "type", "t", "", "mimetype of the upload (default guessed from the name)")
	return cmd
}

func resolveParent(cmd *cobra.Command, m *server.Mirror, p string) (webmirror.Node, string, error) {
	clean := path.Clean("/" + p)
	dir, name := path.Split(clean)
	if name == "" {
		return webmirror.Node{}, "", fmt.Errorf("missing item name in %q", p)
	}
	parent, err := m.Resolve(cmd.Context(), dir, true)
	return parent, name, err
}

func printSections(w io.Writer, sections []view.Section) {
	if view.Count(sections) == 0 {
		fmt.Fprintln(w, pendingStyle.Render("(empty)"))
		return
	}
	for _, s := range sections {
		fmt.Fprintln(w, headerStyle.Render(s.Key))
		for _, n := range s.Items {
			fmt.Fprintln(w, "  "+renderEntry(n))
		}
	}
}

func renderEntry(n webmirror.Node) string {
	var b strings.Builder
	switch {
	case !n.HasMetadata():
		b.WriteString(pendingStyle.Render(n.Name + " …"))
	case n.Kind.IsDir():
		b.WriteString(dirStyle.Render(n.Name + "/"))
	default:
		b.WriteString(n.Name)
	}
	if n.Size != nil && !n.Kind.IsDir() {
		b.WriteString(pendingStyle.Render("  " + humanize.Bytes(uint64(max(*n.Size, 0)))))
	}
	if n.ModifiedAt != nil {
		b.WriteString(pendingStyle.Render("  " + humanize.Time(*n.ModifiedAt)))
	}
	if n.IsFavorite {
		b.WriteString(" " + starStyle.Render("★"))
	}
	return b.String()
}

func displayPath(n webmirror.Node) string {
	if n.IsRoot {
		return "/"
	}
	return n.Path
}

func argOr(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}
