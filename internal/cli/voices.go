package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	voicesTest     string
	voicesTestText string
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List available voices",
	Long: `List the voices offered by the speech service.

When the service is not configured a built-in list is shown and audio is
generated as silent placeholders.

Examples:
  sheetvoice voices
  sheetvoice voices --test Amy
  sheetvoice voices --test Brian --text "Good morning"`,
	Args: cobra.NoArgs,
	RunE: runVoices,
}

func init() {
	voicesCmd.Flags().StringVar(&voicesTest, "test", "", "synthesize a test clip with this voice")
	voicesCmd.Flags().StringVar(&voicesTestText, "text", "", "text for the test clip")
}

func runVoices(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if voicesTest != "" {
		clip, err := apiClient.TestVoice(ctx, voicesTest, voicesTestText)
		if err != nil {
			return fmt.Errorf("test voice: %w", err)
		}
		fmt.Fprintf(out, "Synthesized %s with %s (%s)\n", clip.AudioFile, clip.Voice, clip.Method)
		if clip.Note != "" {
			fmt.Fprintf(out, "  Note: %s\n", clip.Note)
		}
		fmt.Fprintf(out, "  Play: %s%s\n", apiClient.Endpoint(), clip.AudioURL)
		return nil
	}

	list, err := apiClient.Voices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}

	if list.FallbackMode {
		fmt.Fprintln(out, "Speech service unavailable, showing built-in voices")
	}
	fmt.Fprintf(out, "%-12s %-8s %-8s %s\n", "ID", "GENDER", "LANG", "LANGUAGE")
	fmt.Fprintln(out, "------------------------------------------------")
	for _, v := range list.Voices {
		fmt.Fprintf(out, "%-12s %-8s %-8s %s\n", v.ID, v.Gender, v.LanguageCode, v.LanguageName)
	}
	return nil
}
