package main

import (
	"context"

	"mmp-pipeline/cmd/mmp/commands"
	"mmp-pipeline/lib/serviceutil"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional, secrets may come from the real environment
	_ = godotenv.Load()
	commands.ExecuteContext(serviceutil.SignalContext(context.Background()))
}
