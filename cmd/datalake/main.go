// Command datalake builds the song-play star schema from the JSON catalog and
// listening logs and writes it as partitioned Parquet.
//
//	datalake run --config configs/datalake.yaml
//	datalake run --stage catalog --output s3://lake/sparkify
//	datalake validate --config configs/datalake.yaml
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// embedded zoneinfo so transform.time_zone works on minimal images.
	_ "time/tzdata"

	"datalake/internal/logging"

	// register every storage and warehouse backend; the config picks one.
	_ "datalake/internal/storage/all"
	_ "datalake/internal/warehouse/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("datalake: failed")
		stop()
		os.Exit(1)
	}
}
