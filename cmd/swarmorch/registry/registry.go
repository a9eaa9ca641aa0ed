package registrycmd

import (
	"fmt"
	"strings"

	"swarmorch/cmd/swarmorch/cmdutil"
	"swarmorch/cmd/swarmorch/ui"

	"github.com/spf13/cobra"
)

// Cmd returns the "swarmorch registry" command group.
func Cmd(endpointFlag, contextFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Browse and prune the image registry",
	}
	cmd.AddCommand(listCmd(endpointFlag, contextFlag))
	cmd.AddCommand(showCmd(endpointFlag, contextFlag))
	cmd.AddCommand(removeCmd(endpointFlag, contextFlag))
	return cmd
}

func listCmd(endpointFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List repositories and their tags",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			repos, err := client.ListRepositories(cmd.Context())
			if err != nil {
				return err
			}
			if len(repos) == 0 {
				fmt.Println(ui.InfoMsg("Registry is empty."))
				return nil
			}
			rows := make([][]string, 0, len(repos))
			for _, r := range repos {
				rows = append(rows, []string{r.Name, ui.Int(len(r.Tags)), ui.OrDash(strings.Join(r.Tags, ", "))})
			}
			fmt.Println(ui.Table([]string{"REPOSITORY", "TAGS", "NAMES"}, rows))
			return nil
		},
	}
}

func showCmd(endpointFlag, contextFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <repository>",
		Short: "Show per-tag manifest details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			detail, err := client.GetRepository(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(detail.Tags))
			for _, t := range detail.Tags {
				platform := "-"
				if t.OS != "" || t.Architecture != "" {
					platform = t.OS + "/" + t.Architecture
				}
				rows = append(rows, []string{t.Tag, shortDigest(t.Digest), ui.Size(t.Size), platform, ui.OrDash(t.Created)})
			}
			fmt.Println(ui.Table([]string{"TAG", "DIGEST", "SIZE", "PLATFORM", "CREATED"}, rows))
			return nil
		},
	}
}

func removeCmd(endpointFlag, contextFlag *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <repository>:<tag>",
		Aliases: []string{"remove"},
		Short:   "Delete the manifest a tag points at",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, tag, err := splitRef(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := ui.Confirm(
					fmt.Sprintf("Delete %s? Other tags sharing its manifest go too.", ui.Bold(args[0])),
					"use --yes to skip",
				)
				if err != nil || !ok {
					return err
				}
			}
			client, err := cmdutil.Connect(*endpointFlag, *contextFlag)
			if err != nil {
				return err
			}
			res, err := client.DeleteTag(cmd.Context(), repo, tag)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Deleted %s:%s (%s).", res.Repository, res.Tag, shortDigest(res.Digest)))
			if res.RepositoryEmpty {
				fmt.Println(ui.InfoMsg("Repository %s has no tags left.", ui.Bold(res.Repository)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// splitRef splits "repo:tag" on the last colon after the last slash, so
// registry hosts with ports are not mistaken for tags.
func splitRef(ref string) (string, string, error) {
	slash := strings.LastIndex(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if colon <= slash || colon == len(ref)-1 {
		return "", "", fmt.Errorf("reference %q must be <repository>:<tag>", ref)
	}
	return ref[:colon], ref[colon+1:], nil
}

func shortDigest(d string) string {
	_, hex, ok := strings.Cut(d, ":")
	if !ok || len(hex) < 12 {
		return ui.OrDash(d)
	}
	return hex[:12]
}
