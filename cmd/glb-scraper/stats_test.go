package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/glb-scraper/internal/models"
)

func TestRenderStats(t *testing.T) {
	var out bytes.Buffer
	renderStats(&out, &models.LedgerStats{Total: 7, Downloaded: 5, Missing: 2})

	rendered := out.String()
	assert.Contains(t, rendered, "VARIANTS")
	assert.Contains(t, rendered, "7")
	assert.Contains(t, rendered, "5")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}

	for input, expected := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, parseLevel(input).String())
		})
	}
}
