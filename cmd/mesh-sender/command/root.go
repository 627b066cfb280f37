package command

// root.go defines the root command for the mesh-sender application.
// set up the global flags here.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL     string // Global flag for the receiver admin API
	serverAddr string // receiver ingestion address
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mesh-sender",
	Short: "mesh-sender - push triangle meshes to a mesh receiver",
	Long: `mesh-sender streams triangle meshes to a running mesh receiver over TCP,
the same way the Blender add-on does. Use it to:
- Send an OBJ file or a test cube
- Check what the receiver currently holds

Use "mesh-sender command -h" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8084", "receiver admin API URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "127.0.0.1:8080", "receiver mesh address")
}
