package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/herdctl/herdctl/pkg/rolling"
	"github.com/herdctl/herdctl/pkg/types"
)

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, exitConfiguration, exitCode(types.NewConfigurationError("bad yaml")))
	assert.Equal(t, exitConfiguration, exitCode(fmt.Errorf("loading: %w", types.NewConfigurationError("bad"))))
	assert.Equal(t, exitPartialRestart, exitCode(&rolling.PartialRestartFailure{Service: "web", Failed: 1}))
	assert.Equal(t, exitFailure, exitCode(errors.New("backend unavailable")))
}
