package main

import (
	"bytes"
	"log/slog"
	"testing"

	"moalmanac-api/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportValidation(t *testing.T) {
	tests := []struct {
		name      string
		result    *config.ValidationResult
		wantErr   bool
		wantInLog []string
	}{
		{
			name:   "clean result",
			result: &config.ValidationResult{},
		},
		{
			name: "warnings only",
			result: &config.ValidationResult{
				Warnings: []config.ValidationWarning{
					{Field: "cache.about_ttl", Message: "about caching is disabled", Hint: "set a positive duration"},
				},
			},
			wantInLog: []string{"configuration warning", "cache.about_ttl"},
		},
		{
			name: "errors fail",
			result: &config.ValidationResult{
				Errors: []config.ValidationError{
					{Field: "database.path", Message: "path is required"},
				},
				Warnings: []config.ValidationWarning{
					{Field: "server.cors_allowed_origins", Message: "wildcard origin"},
				},
			},
			wantErr:   true,
			wantInLog: []string{"configuration error", "database.path", "configuration warning"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			err := reportValidation(logger, tt.result)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "1 error(s)")
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantInLog {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
