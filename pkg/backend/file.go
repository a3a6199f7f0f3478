package backend

import (
	"os"

	"github.com/herdctl/herdctl/pkg/log"
)

// WriteUnitFile writes contents to path only when they differ from what is
// already on disk, so unchanged units never cause spurious backend churn.
// It reports whether the file was written.
func WriteUnitFile(path, contents, name string) (bool, error) {
	logger := log.WithComponent("backend")

	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == contents {
		logger.Debug().Str("unit", name).Msg("no changes to unit file")
		return false, nil
	}

	verb := "adding"
	if err == nil {
		verb = "updating"
	}
	logger.Info().Str("unit", name).Msgf("%s unit file", verb)

	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
