// Command demoengine starts a stand-in scan engine speaking the ZAP wire
// protocol, for demonstrating OpenEye without a ZAP install.
// Usage: go run ./cmd/demoengine [port]
// Default port: 8080
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/Sharonmee/OpenEye/internal/demoengine"
	"github.com/Sharonmee/OpenEye/internal/logging"
)

func main() {
	cfg := demoengine.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   OpenEye Demo Engine")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("This server mimics the ZAP JSON API so the")
	fmt.Println("OpenEye orchestrator can run full scans locally.")
	fmt.Println()
	fmt.Println("Checks performed during the crawl:")
	fmt.Println("  - Content-Security-Policy header")
	fmt.Println("  - X-Frame-Options header")
	fmt.Println("  - X-Content-Type-Options header")
	fmt.Println("  - Strict-Transport-Security header")
	fmt.Println("  - Server version disclosure")
	fmt.Println("  - Cookies without HttpOnly")
	fmt.Println()

	engine := demoengine.NewDemoEngine(cfg, logging.NewStdoutLogger("DemoEngine"))
	if err := engine.Start(); err != nil {
		log.Fatalf("Engine error: %v", err)
	}
}
