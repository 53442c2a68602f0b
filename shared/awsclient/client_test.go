package awsclient

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		wantEndpoint  bool
		wantPathStyle bool
		wantStatic    bool
	}{
		{
			name:          "local endpoint with static credentials",
			config:        Config{Region: "us-east-1", Endpoint: "http://localhost:4566", AccessKeyID: "test", SecretAccessKey: "test"},
			wantEndpoint:  true,
			wantPathStyle: true,
			wantStatic:    true,
		},
		{
			name:   "default chain",
			config: Config{Region: "eu-west-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), &tt.config, slog.New(slog.NewTextHandler(io.Discard, nil)))
			require.NoError(t, err)
			assert.Equal(t, tt.config.Region, client.cfg.Region)

			s3Opts := client.S3().Options()
			assert.Equal(t, tt.wantPathStyle, s3Opts.UsePathStyle)

			dynamoOpts := client.DynamoDB().Options()
			if tt.wantEndpoint {
				require.NotNil(t, s3Opts.BaseEndpoint)
				assert.Equal(t, tt.config.Endpoint, *s3Opts.BaseEndpoint)
				require.NotNil(t, dynamoOpts.BaseEndpoint)
				assert.Equal(t, tt.config.Endpoint, *dynamoOpts.BaseEndpoint)
			} else {
				assert.Nil(t, s3Opts.BaseEndpoint)
				assert.Nil(t, dynamoOpts.BaseEndpoint)
			}

			if tt.wantStatic {
				creds, err := client.cfg.Credentials.Retrieve(context.Background())
				require.NoError(t, err)
				assert.Equal(t, "test", creds.AccessKeyID)
			}
		})
	}
}
