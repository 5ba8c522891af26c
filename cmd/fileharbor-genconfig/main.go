// Command fileharbor-genconfig writes a default server configuration
// document to disk. It is grounded on the teacher's cmd/generate-schema: a
// small standalone tool that derives a starting artifact from the config
// struct rather than hand-maintaining a sample file, shipped as its own
// binary instead of a subcommand of the main entrypoint.
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fileharbor/fileharbor/pkg/config"
)

func main() {
	cfg := config.ServerConfig{
		Libraries: []config.LibraryConfig{
			{
				ID:   "docs",
				Name: "Documents",
				Root: "/var/lib/fileharbor/docs",
			},
		},
		Security: config.ServerSecurity{
			ServerCertPath: "/etc/fileharbor/server.crt",
			ServerKeyPath:  "/etc/fileharbor/server.key",
			CACertPath:     "/etc/fileharbor/ca.crt",
		},
	}
	config.ApplyServerDefaults(&cfg)

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileharbor-genconfig: marshal default config: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "fileharbor-genconfig: write %s: %v\n", outputFile, err)
		os.Exit(1)
	}

	fmt.Printf("default server config written to %s\n", outputFile)
}
