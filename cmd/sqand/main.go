// Command sqand runs the SQAN daemon without the CLI. It reads the config
// path from SQAN_CONFIG and the component selection from SQAN_MODE, which
// suits container entrypoints.
package main

import (
	"context"
	"log"
	"os"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("SQAN_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	opts, err := optionsFromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		log.Fatalf("sqand: %v", err)
	}
}
