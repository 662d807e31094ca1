package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

// shellCompletion describes how to generate and install the script for one shell.
type shellCompletion struct {
	generate func(w io.Writer) error
	// target is the install path under the user's home; empty when the
	// shell has no user-local completion directory.
	target  func(home string) string
	session string
	after   func(target string) []string
}

var completionShells = map[string]shellCompletion{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "bash-completion", "completions", "staffdesk")
		},
		session: `eval "$(staffdesk completion bash)"`,
		after: func(target string) []string {
			return []string{"Restart your shell or run: source " + target}
		},
	},
	"zsh": {
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_staffdesk")
		},
		session: `eval "$(staffdesk completion zsh)"`,
		after: func(target string) []string {
			return []string{
				"Ensure this directory is in your fpath. Add to ~/.zshrc if needed:",
				fmt.Sprintf("  fpath=(%s $fpath)", filepath.Dir(target)),
				"  autoload -Uz compinit && compinit",
			}
		},
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		target: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions", "staffdesk.fish")
		},
		session: "staffdesk completion fish | source",
		after: func(string) []string {
			return []string{"Completions will be available in new fish sessions automatically."}
		},
	},
	"powershell": {
		generate: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
		session:  "staffdesk completion powershell | Out-String | Invoke-Expression",
	},
}

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for staffdesk",
	Long: `Print or install shell tab-completions for staffdesk.

Record ids, entity types, panels and note actions complete from the CRM.

Quick install (bash, zsh, fish):

  staffdesk completion zsh --install

Or print the script to stdout for manual setup:

  staffdesk completion bash > /etc/bash_completion.d/staffdesk
  staffdesk completion powershell | Out-String | Invoke-Expression`,
	ValidArgs: shellNames(),
	Args:      cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		shell, ok := completionShells[args[0]]
		if !ok {
			return fmt.Errorf("unsupported shell %q (supported: %v)", args[0], shellNames())
		}
		if completionInstall {
			return installCompletion(cmd, args[0], shell)
		}
		// Hints go to stderr so eval "$(staffdesk completion bash)" still works.
		errOut := cmd.ErrOrStderr()
		_, _ = fmt.Fprintf(errOut, "# Load completions in the current session with:\n#   %s\n", shell.session)
		if shell.target != nil {
			_, _ = fmt.Fprintf(errOut, "# Install permanently with:\n#   staffdesk completion %s --install\n", args[0])
		}
		return shell.generate(cmd.OutOrStdout())
	},
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your shell's user completion directory")

	// Replace Cobra's default completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func shellNames() []string {
	names := make([]string, 0, len(completionShells))
	for name := range completionShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func installCompletion(cmd *cobra.Command, name string, shell shellCompletion) error {
	if shell.target == nil {
		return fmt.Errorf("automatic install is not supported for %s; run 'staffdesk completion %s' and add the output to your profile", name, name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target := shell.target(home)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	if err := writeCompletionFile(target, shell.generate); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s completions installed to %s\n", name, target)
	for _, line := range shell.after(target) {
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

// writeCompletionFile writes the generated script to target, reporting a
// failed close as well as a failed write.
func writeCompletionFile(target string, generate func(io.Writer) error) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}
	writeErr := generate(f)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("writing completion file %s: %w", target, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}
