package config_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anchorpoint/pkg/cli/config"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
)

func TestGeneration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Generation
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  config.NewGenerationForTest(4, time.Minute, 3, 500*time.Millisecond, 8*time.Second),
		},
		{
			name: "zero retry budget",
			cfg:  config.NewGenerationForTest(1, time.Second, 0, time.Millisecond, time.Millisecond),
		},
		{
			name:    "zero concurrency",
			cfg:     config.NewGenerationForTest(0, time.Minute, 3, time.Second, time.Second),
			wantErr: true,
		},
		{
			name:    "no timeout",
			cfg:     config.NewGenerationForTest(1, 0, 3, time.Second, time.Second),
			wantErr: true,
		},
		{
			name:    "negative retries",
			cfg:     config.NewGenerationForTest(1, time.Minute, -1, time.Second, time.Second),
			wantErr: true,
		},
		{
			name:    "backoff max below base",
			cfg:     config.NewGenerationForTest(1, time.Minute, 3, time.Second, time.Millisecond),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				gt.Error(t, err).Is(config.ErrInvalidConfig)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestGeneration_BatchOptions(t *testing.T) {
	cfg := config.NewGenerationForTest(3, time.Minute, 3, time.Second, time.Second)
	opts := cfg.BatchOptions()
	gt.Value(t, opts.Concurrency).Equal(3)
	gt.False(t, opts.FailFast)
	gt.Value(t, opts.CancelPolicy).Equal(usecase.CancelFinishInFlight)

	cfg.SetCancelPolicyForTest(true, true)
	opts = cfg.BatchOptions()
	gt.True(t, opts.FailFast)
	gt.Value(t, opts.CancelPolicy).Equal(usecase.CancelAbandonInFlight)

	gt.A(t, cfg.RatingOptions("")).Length(3)
	gt.A(t, cfg.RatingOptions("gemini-2.5-flash")).Length(4)
	gt.A(t, cfg.GeneratorOptions()).Length(3)
}
