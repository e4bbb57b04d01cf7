package etl

import (
	"context"

	"github.com/harvx/reddit-etl/internal/integrity"
	"github.com/harvx/reddit-etl/internal/zstdio"
)

// CheckIntegrity runs C10 and maps its outcome onto the exit-code contract:
// any suspect file makes this a *RunError with ExitIntegrity, even though
// integrity.Check itself only reports, never errors, on finding one.
func (e *Engine) CheckIntegrity(ctx context.Context, opts integrity.Options) ([]zstdio.Suspect, error) {
	suspects, err := integrity.Check(ctx, opts)
	if err != nil {
		return nil, NewConfigError("integrity check failed", err)
	}
	if len(suspects) > 0 {
		return suspects, NewIntegrityError("integrity check found suspect files")
	}
	return suspects, nil
}
