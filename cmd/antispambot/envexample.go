package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type envSection struct {
	title string
	flags []string
}

var envSections = []envSection{
	{"Telegram Configuration", []string{"telegram-enabled", "telegram-bot-token", "source-url"}},
	{"Challenge Configuration", []string{"salt", "language", "ban-respects-unban-timeout"}},
	{"State and Housekeeping", []string{
		"state-path", "store-chat-messages", "gc-interval-secs", "flush-interval-secs",
		"at-admins-ratelimit-secs", "max-update-age-secs",
	}},
	{"Display Name Scoring", []string{
		"spam-scorer", "llm-model", "llm-api-key", "llm-base-url", "llm-timeout-secs", "score-cache-size",
	}},
	{"HTTP Server Configuration", []string{"server-host", "server-port"}},
	{"Logging Configuration", []string{"log-level", "log-format"}},
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# antispambot Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		generateSection(&content, cmd, section)
	}

	return content.String()
}

func generateSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")

	for _, name := range section.flags {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			continue
		}
		fmt.Fprintf(content, "# %s (default: %q)\n", flag.Usage, flag.DefValue)
		fmt.Fprintf(content, "%s=%s\n", flagToEnvVar(name), flag.DefValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
