package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/digest"
	"github.com/roach88/vidproof/internal/ledger"
)

// videoFlags selects a video by raw hash, file contents or URL.
type videoFlags struct {
	hash string
	file string
	url  string
}

func (v *videoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.hash, "video-hash", "", "64 hex character video hash")
	cmd.Flags().StringVar(&v.file, "file", "", "hash this video file")
	cmd.Flags().StringVar(&v.url, "url", "", "hash this video URL")
	cmd.MarkFlagsMutuallyExclusive("video-hash", "file", "url")
	cmd.MarkFlagsOneRequired("video-hash", "file", "url")
}

// raw returns the hash string to submit. A --video-hash value is passed
// through unchecked so the ledger reports malformed hashes itself.
func (v *videoFlags) raw() (string, error) {
	switch {
	case v.hash != "":
		return v.hash, nil
	case v.file != "":
		h, err := digest.File(v.file)
		if err != nil {
			return "", err
		}
		return h.String(), nil
	case v.url != "":
		h, err := digest.URL(v.url)
		if err != nil {
			return "", err
		}
		return h.String(), nil
	}
	return "", fmt.Errorf("one of --video-hash, --file or --url is required")
}

// parsed returns the selected hash, rejecting malformed --video-hash.
func (v *videoFlags) parsed() (ledger.VideoHash, error) {
	s, err := v.raw()
	if err != nil {
		return ledger.VideoHash{}, err
	}
	return ledger.ParseVideoHash(s)
}

// loadKey reads the signing key from path.
func loadKey(path string) (*auth.KeyPair, error) {
	if path == "" {
		return nil, fmt.Errorf("no key file configured")
	}
	return auth.LoadKeyFile(path)
}
