package cli

import (
	"github.com/spf13/cobra"
)

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	var video videoFlags

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the video hash for a file or URL",
		Long: `Print the 32-byte video hash the ledger would key a video by.

Files hash to the SHA-256 of their contents. URLs hash to the SHA-256 of
the trimmed, lowercased URL.

Examples:
  vidproof hash --file clip.mp4
  vidproof hash --url "https://example.com/v.mp4"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			h, err := video.parsed()
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to hash video", err)
			}
			source := "video-hash"
			switch {
			case video.file != "":
				source = "file"
			case video.url != "":
				source = "url"
			}
			return out.Success(hashView{VideoHash: h.String(), Source: source})
		},
	}
	video.register(cmd)
	return cmd
}
