// Command docchat runs the documentation chat backend.
//
//	@title			DocChat API
//	@version		1.0
//	@description	Documentation ingestion and retrieval-augmented chat with resumable streams.
//	@BasePath		/api/v1
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
